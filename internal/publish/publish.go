// Package publish provides the adapters that deliver readings to external
// state stores: an MQTT bridge, a local SQLite latest-value store, a zap
// debug sink, and a fanout combining them. All adapters are safe for
// concurrent delivery from multiple module pipelines.
package publish

import (
	"context"

	"go.uber.org/zap"

	"github.com/boardscout/boardscout/pkg/metric"
)

// Compile-time interface guards.
var (
	_ metric.Publisher = (*Fanout)(nil)
	_ metric.Publisher = (*LogPublisher)(nil)
)

// Fanout delivers each reading to every configured adapter. A failing
// adapter is logged and skipped; delivery problems must not fail the
// collection pipeline or starve the other adapters.
type Fanout struct {
	sinks  []metric.Publisher
	logger *zap.Logger
}

// NewFanout creates a fanout over the given adapters.
func NewFanout(logger *zap.Logger, sinks ...metric.Publisher) *Fanout {
	return &Fanout{sinks: sinks, logger: logger}
}

// Publish delivers the reading to all adapters.
func (f *Fanout) Publish(ctx context.Context, r metric.Reading) error {
	for _, s := range f.sinks {
		if err := s.Publish(ctx, r); err != nil {
			f.logger.Warn("publish failed",
				zap.String("reading", r.Name),
				zap.Error(err),
			)
		}
	}
	return nil
}

// LogPublisher writes readings to the debug log. Always wired in; it is the
// publisher of last resort when no external store is configured.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a log sink.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the reading.
func (l *LogPublisher) Publish(_ context.Context, r metric.Reading) error {
	l.logger.Debug("reading",
		zap.String("name", r.Name),
		zap.Any("value", r.Value),
		zap.String("unit", r.Unit),
		zap.String("quality", string(r.Quality)),
	)
	return nil
}
