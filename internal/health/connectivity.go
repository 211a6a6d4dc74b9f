// Package health derives the aggregate connectivity signal: a single
// boolean reading saying whether at least one core module succeeded
// recently, so downstream consumers have a liveness check for the agent as
// a whole.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/boardscout/boardscout/pkg/metric"
)

// OnlineReading is the name of the aggregate connectivity reading.
const OnlineReading = "agent.online"

// Connectivity tracks recent successes per core module and publishes
// agent.online transitions.
type Connectivity struct {
	mu          sync.Mutex
	window      time.Duration
	core        map[string]bool // empty means every module counts
	lastSuccess map[string]time.Time
	online      bool
	published   bool

	pub    metric.Publisher
	logger *zap.Logger
	now    func() time.Time
}

// NewConnectivity creates a tracker. A success within the window keeps the
// agent online; coreModules restricts which modules count (nil/empty: all).
func NewConnectivity(window time.Duration, coreModules []string, pub metric.Publisher, logger *zap.Logger) *Connectivity {
	core := make(map[string]bool, len(coreModules))
	for _, id := range coreModules {
		core[id] = true
	}
	return &Connectivity{
		window:      window,
		core:        core,
		lastSuccess: make(map[string]time.Time),
		pub:         pub,
		logger:      logger,
		now:         time.Now,
	}
}

// SetClock replaces the time source. For tests.
func (c *Connectivity) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Observe folds one collection result into the signal and publishes
// agent.online when the state changes (and once initially).
func (c *Connectivity) Observe(ctx context.Context, res metric.CollectionResult) {
	c.mu.Lock()
	if len(c.core) > 0 && !c.core[res.ModuleID] {
		c.mu.Unlock()
		return
	}
	if res.Status == metric.StatusSuccess {
		c.lastSuccess[res.ModuleID] = res.Timestamp
	}
	c.mu.Unlock()

	c.Recheck(ctx)
}

// Recheck re-evaluates the window and publishes on transition. Called from
// Observe and from a periodic timer so the signal also decays to offline
// when every module goes quiet.
func (c *Connectivity) Recheck(ctx context.Context) {
	c.mu.Lock()
	cutoff := c.now().Add(-c.window)
	online := false
	for _, ts := range c.lastSuccess {
		if ts.After(cutoff) {
			online = true
			break
		}
	}
	changed := !c.published || online != c.online
	c.online = online
	c.published = true
	now := c.now().UTC()
	c.mu.Unlock()

	if !changed {
		return
	}

	quality := metric.QualityGood
	if !online {
		quality = metric.QualityUnavailable
	}
	if err := c.pub.Publish(ctx, metric.Reading{
		Name:      OnlineReading,
		Value:     online,
		Timestamp: now,
		Quality:   quality,
	}); err != nil {
		c.logger.Warn("publish connectivity signal", zap.Error(err))
	}
	c.logger.Info("connectivity changed", zap.Bool("online", online))
}

// Online returns the current aggregate state.
func (c *Connectivity) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// Run re-evaluates the signal periodically until the context is cancelled.
func (c *Connectivity) Run(ctx context.Context) {
	interval := c.window / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Recheck(ctx)
		}
	}
}
