package testutil

import (
	"context"
	"sync/atomic"
	"time"
)

// FakeReader is a configurable source reader: fixed output, fixed error,
// optional delay that respects context cancellation. It counts reads so
// tests can assert how often a module was collected.
type FakeReader struct {
	Data  []byte
	Err   error
	Delay time.Duration

	reads atomic.Int64
}

// Read returns the configured output or error after the configured delay.
func (r *FakeReader) Read(ctx context.Context) ([]byte, error) {
	r.reads.Add(1)
	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Data, nil
}

// Reads returns how many times Read was called.
func (r *FakeReader) Reads() int {
	return int(r.reads.Load())
}
