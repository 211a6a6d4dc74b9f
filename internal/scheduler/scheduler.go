// Package scheduler owns one collection loop per enabled module. Modules
// are independent: a slow command stalls only its own loop, and within one
// module ticks are strictly sequential, so the same metric never has two
// subprocesses in flight.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/boardscout/boardscout/internal/backoff"
	"github.com/boardscout/boardscout/internal/health"
	"github.com/boardscout/boardscout/internal/pipeline"
	"github.com/boardscout/boardscout/internal/registry"
	"github.com/boardscout/boardscout/internal/telemetry"
	"github.com/boardscout/boardscout/pkg/metric"
)

// DefaultGracePeriod bounds how long Stop waits for outstanding collection
// runs.
const DefaultGracePeriod = 10 * time.Second

// Config carries the scheduler's optional collaborators.
type Config struct {
	GracePeriod  time.Duration
	Metrics      *telemetry.Metrics
	Connectivity *health.Connectivity
}

// ModuleStatus is the observable state of one scheduled module.
type ModuleStatus struct {
	ID                  string        `json:"id"`
	Enabled             bool          `json:"enabled"`
	Interval            time.Duration `json:"interval"`
	LastStatus          metric.Status `json:"last_status,omitempty"`
	LastRun             time.Time     `json:"last_run,omitzero"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	NextAllowedAttempt  time.Time     `json:"next_allowed_attempt,omitzero"`
}

type setting struct {
	enabled  bool
	interval time.Duration
}

type loop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler drives per-module collection loops.
type Scheduler struct {
	reg    *registry.Registry
	runner *pipeline.Runner
	policy *backoff.Policy
	pub    metric.Publisher
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	baseCtx  context.Context
	cancel   context.CancelFunc
	loops    map[string]*loop
	settings map[string]setting
	last     map[string]metric.CollectionResult
	started  bool
	stopped  bool
}

// New creates a scheduler over the given registry. Initial enabled/interval
// settings come from the registry (which already folded in configuration
// overrides).
func New(reg *registry.Registry, runner *pipeline.Runner, policy *backoff.Policy, pub metric.Publisher, logger *zap.Logger, cfg Config) *Scheduler {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	settings := make(map[string]setting)
	for _, mod := range reg.Modules() {
		settings[mod.ID] = setting{enabled: mod.Enabled, interval: mod.Interval}
	}
	return &Scheduler{
		reg:      reg,
		runner:   runner,
		policy:   policy,
		pub:      pub,
		cfg:      cfg,
		logger:   logger,
		loops:    make(map[string]*loop),
		settings: settings,
		last:     make(map[string]metric.CollectionResult),
	}
}

// Start arms a collection loop for every enabled module. It must be called
// once; a stopped scheduler cannot be restarted.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	s.baseCtx, s.cancel = context.WithCancel(ctx)

	for _, mod := range s.reg.Modules() {
		if s.settings[mod.ID].enabled {
			s.startLoopLocked(mod, s.settings[mod.ID].interval)
		}
	}
	s.logger.Info("scheduler started", zap.Int("loops", len(s.loops)))
}

// Stop cancels all loops, which also cancels any outstanding source reads,
// and waits up to the grace period for them to drain. Safe to call twice.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.stopped = true
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.cancel()
	loops := make([]*loop, 0, len(s.loops))
	for _, l := range s.loops {
		loops = append(loops, l)
	}
	s.loops = make(map[string]*loop)
	s.mu.Unlock()

	deadline := time.After(s.cfg.GracePeriod)
	for _, l := range loops {
		select {
		case <-l.done:
		case <-deadline:
			s.logger.Warn("grace period expired with collection loops still outstanding")
			return
		}
	}
	s.logger.Info("scheduler stopped")
}

// Reload applies per-module configuration overrides, re-arming only the
// modules whose enabled flag or interval actually changed. Re-enabling a
// module starts a fresh interval window (no catch-up of missed ticks) and
// clears its failure state.
//
// Loops are cancelled under the lock but awaited outside it: an in-flight
// run needs the mutex to record its result, so waiting while holding it
// would deadlock the scheduler.
func (s *Scheduler) Reload(overrides map[string]registry.Override) {
	type restart struct {
		mod      *registry.Module
		interval time.Duration
		reset    bool
	}
	var stops []*loop
	var starts []restart

	s.mu.Lock()
	for _, mod := range s.reg.Modules() {
		ov, ok := overrides[mod.ID]
		if !ok {
			continue
		}
		cur := s.settings[mod.ID]
		want := cur
		if ov.Enabled != nil {
			want.enabled = *ov.Enabled
		}
		if ov.Interval >= registry.MinInterval {
			want.interval = ov.Interval
		}
		if want == cur {
			continue
		}
		s.settings[mod.ID] = want
		s.logger.Info("module re-armed",
			zap.String("module", mod.ID),
			zap.Bool("enabled", want.enabled),
			zap.Duration("interval", want.interval),
		)

		if l, running := s.loops[mod.ID]; running {
			delete(s.loops, mod.ID)
			l.cancel()
			stops = append(stops, l)
		}
		if want.enabled && s.started && !s.stopped {
			starts = append(starts, restart{mod: mod, interval: want.interval, reset: !cur.enabled})
		}
	}
	s.mu.Unlock()

	for _, l := range stops {
		<-l.done
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	for _, r := range starts {
		if r.reset {
			s.policy.Reset(r.mod.ID)
		}
		s.startLoopLocked(r.mod, r.interval)
	}
}

// Collect runs one module once, outside the schedule. Used by the -check
// command; shares the exact pipeline, policy, and publish path of scheduled
// ticks.
func (s *Scheduler) Collect(ctx context.Context, mod *registry.Module) metric.CollectionResult {
	return s.runOnce(ctx, mod, mod.Interval)
}

// Status returns the observable state of every module.
func (s *Scheduler) Status() []ModuleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	failures := s.policy.Snapshot()
	out := make([]ModuleStatus, 0, len(s.settings))
	for _, id := range s.reg.IDs() {
		st := ModuleStatus{
			ID:       id,
			Enabled:  s.settings[id].enabled,
			Interval: s.settings[id].interval,
		}
		if res, ok := s.last[id]; ok {
			st.LastStatus = res.Status
			st.LastRun = res.Timestamp
		}
		if f, ok := failures[id]; ok {
			st.ConsecutiveFailures = f.ConsecutiveFailures
			st.NextAllowedAttempt = f.NextAllowedAttempt
		}
		out = append(out, st)
	}
	return out
}

// startLoopLocked launches a module's tick loop. Caller holds s.mu.
func (s *Scheduler) startLoopLocked(mod *registry.Module, interval time.Duration) {
	if _, running := s.loops[mod.ID]; running {
		return
	}
	ctx, cancel := context.WithCancel(s.baseCtx)
	l := &loop{cancel: cancel, done: make(chan struct{})}
	s.loops[mod.ID] = l

	go func() {
		defer close(l.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Synchronous: the next tick for this module is not
				// considered until this run completes.
				s.runOnce(ctx, mod, interval)
			}
		}
	}()
}

// runOnce executes one tick: consult the failure policy, run the pipeline,
// record the outcome, publish.
func (s *Scheduler) runOnce(ctx context.Context, mod *registry.Module, interval time.Duration) metric.CollectionResult {
	if !s.policy.Allow(mod.ID) {
		s.logger.Debug("tick skipped by backoff", zap.String("module", mod.ID))
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.ObserveSkip(mod.ID)
		}
		return metric.CollectionResult{ModuleID: mod.ID, Status: metric.StatusSourceUnavailable}
	}

	start := time.Now()
	res := s.runner.Collect(ctx, mod)
	elapsed := time.Since(start)

	s.policy.Record(mod.ID, res.Status, interval)
	s.publishResult(ctx, mod, res)

	s.mu.Lock()
	s.last[mod.ID] = res
	s.mu.Unlock()

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ObserveResult(res, elapsed, s.policy.Failures(mod.ID))
	}
	if s.cfg.Connectivity != nil {
		s.cfg.Connectivity.Observe(ctx, res)
	}
	return res
}

// publishResult delivers a run's readings. Failed modules and failed
// individual readings publish explicit Unavailable quality rather than
// going silent, so consumers can tell "device absent" from "no data yet".
func (s *Scheduler) publishResult(ctx context.Context, mod *registry.Module, res metric.CollectionResult) {
	for _, r := range res.Readings {
		if err := s.pub.Publish(ctx, r); err != nil {
			s.logger.Warn("publish reading",
				zap.String("reading", r.Name), zap.Error(err))
		}
	}

	// Partial conversion failures carry their expanded reading names; for
	// whole-module failures fall back to the declared target names.
	unavailable := res.FailedReadings
	if res.Status.Failed() && len(unavailable) == 0 {
		unavailable = mod.FailureReadings()
	}

	for _, name := range unavailable {
		if err := s.pub.Publish(ctx, metric.Reading{
			Name:      name,
			Timestamp: res.Timestamp,
			Quality:   metric.QualityUnavailable,
		}); err != nil {
			s.logger.Warn("publish unavailable reading",
				zap.String("reading", name), zap.Error(err))
		}
	}
}
