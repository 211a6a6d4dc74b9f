// Package pipeline runs one collection for one module: read the source,
// extract records, convert each captured field, and build a
// CollectionResult. Every failure is caught at the module boundary and
// becomes a status; nothing here can crash the scheduler or touch sibling
// modules.
package pipeline

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/boardscout/boardscout/internal/convert"
	"github.com/boardscout/boardscout/internal/extract"
	"github.com/boardscout/boardscout/internal/registry"
	"github.com/boardscout/boardscout/internal/source"
	"github.com/boardscout/boardscout/pkg/metric"
)

// ReaderFactory builds the source reader for a module. Swapped out in tests
// for a fake reader.
type ReaderFactory func(src registry.Source) source.Reader

// Runner executes module collections.
type Runner struct {
	readers ReaderFactory
	logger  *zap.Logger
	now     func() time.Time
}

// NewRunner creates a Runner whose command readers share the given spawn
// rate limiter.
func NewRunner(limiter *rate.Limiter, logger *zap.Logger) *Runner {
	return &Runner{
		readers: func(src registry.Source) source.Reader {
			return source.ForSource(src, limiter)
		},
		logger: logger,
		now:    time.Now,
	}
}

// SetReaderFactory replaces the reader factory. For tests.
func (r *Runner) SetReaderFactory(f ReaderFactory) {
	r.readers = f
}

// SetClock replaces the time source. For tests.
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
}

// Collect runs the full pipeline for one module. Record failures in
// multi-match mode are independent: one record failing conversion does not
// touch readings produced by its siblings.
func (r *Runner) Collect(ctx context.Context, mod *registry.Module) metric.CollectionResult {
	result := metric.CollectionResult{
		ModuleID:  mod.ID,
		Timestamp: r.now().UTC(),
	}

	raw, err := r.readers(mod.Source).Read(ctx)
	if err != nil {
		switch {
		case errors.Is(err, source.ErrTimeout):
			result.Status = metric.StatusTimeout
			r.logger.Warn("source timed out", zap.String("module", mod.ID), zap.Error(err))
		default:
			result.Status = metric.StatusSourceUnavailable
			r.logger.Warn("source unavailable", zap.String("module", mod.ID), zap.Error(err))
		}
		return result
	}

	records, err := mod.Pattern.Extract(raw)
	if err != nil {
		// Single-mode no-match: the pattern no longer fits what the OS
		// produces, which is a configuration or OS-version mismatch.
		result.Status = metric.StatusParseFailure
		r.logger.Error("pattern did not match", zap.String("module", mod.ID), zap.Error(err))
		return result
	}

	for _, rec := range records {
		readings, failed := r.convertRecord(mod, rec, result.Timestamp)
		result.Readings = append(result.Readings, readings...)
		result.FailedReadings = append(result.FailedReadings, failed...)
	}

	if len(result.Readings) == 0 && len(result.FailedReadings) > 0 {
		result.Status = metric.StatusConversionFailure
		result.Readings = nil
		return result
	}
	result.Status = metric.StatusSuccess
	return result
}

// convertRecord converts every declared target of one record. A target that
// fails conversion is skipped; its siblings in the same record still
// succeed.
func (r *Runner) convertRecord(mod *registry.Module, rec extract.Record, ts time.Time) ([]metric.Reading, []string) {
	groups := make([]string, 0, len(mod.Targets))
	for g := range mod.Targets {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	var readings []metric.Reading
	var failed []string
	for _, group := range groups {
		tgt := mod.Targets[group]
		name := registry.ExpandName(tgt.Reading, rec)
		value, err := convert.Apply(mod.Convert[group], rec, group, tgt.Type)
		if err != nil {
			failed = append(failed, name)
			r.logger.Warn("conversion failed",
				zap.String("module", mod.ID),
				zap.String("reading", name),
				zap.Error(err),
			)
			continue
		}
		readings = append(readings, metric.Reading{
			Name:      name,
			Value:     value,
			Unit:      tgt.Unit,
			Timestamp: ts,
			Quality:   metric.QualityGood,
		})
	}
	return readings, failed
}
