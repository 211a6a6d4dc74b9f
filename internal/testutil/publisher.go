package testutil

import (
	"context"
	"sync"

	"github.com/boardscout/boardscout/pkg/metric"
)

// Compile-time interface check.
var _ metric.Publisher = (*MockPublisher)(nil)

// MockPublisher is a thread-safe in-memory publisher that records all
// delivered readings for later inspection.
type MockPublisher struct {
	mu       sync.Mutex
	readings []metric.Reading
	err      error
}

// NewMockPublisher returns a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// Fail makes every subsequent Publish return err.
func (p *MockPublisher) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Publish records a reading.
func (p *MockPublisher) Publish(_ context.Context, r metric.Reading) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.readings = append(p.readings, r)
	return nil
}

// Readings returns a copy of all recorded readings.
func (p *MockPublisher) Readings() []metric.Reading {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]metric.Reading, len(p.readings))
	copy(out, p.readings)
	return out
}

// Named returns recorded readings with the given name.
func (p *MockPublisher) Named(name string) []metric.Reading {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []metric.Reading
	for _, r := range p.readings {
		if r.Name == name {
			out = append(out, r)
		}
	}
	return out
}

// Reset clears all recorded readings.
func (p *MockPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readings = nil
}
