package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boardscout/boardscout/internal/testutil"
	"github.com/boardscout/boardscout/pkg/metric"
)

func sample(name string) metric.Reading {
	return metric.Reading{
		Name:      name,
		Value:     45.0,
		Unit:      "C",
		Timestamp: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
		Quality:   metric.QualityGood,
	}
}

func TestFanoutDeliversToAllSinks(t *testing.T) {
	a := testutil.NewMockPublisher()
	b := testutil.NewMockPublisher()
	f := NewFanout(testutil.Logger(), a, b)

	if err := f.Publish(context.Background(), sample("thermal.soc.celsius")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(a.Readings()) != 1 || len(b.Readings()) != 1 {
		t.Errorf("sink deliveries = %d/%d, want 1/1", len(a.Readings()), len(b.Readings()))
	}
}

func TestFanoutIsolatesFailingSink(t *testing.T) {
	bad := testutil.NewMockPublisher()
	bad.Fail(errors.New("broker gone"))
	good := testutil.NewMockPublisher()
	f := NewFanout(testutil.Logger(), bad, good)

	if err := f.Publish(context.Background(), sample("cpu.load.1m")); err != nil {
		t.Fatalf("Publish() error = %v, want nil despite failing sink", err)
	}
	if len(good.Readings()) != 1 {
		t.Errorf("healthy sink got %d readings, want 1", len(good.Readings()))
	}
}

func TestFanoutWithNoSinks(t *testing.T) {
	f := NewFanout(testutil.Logger())
	if err := f.Publish(context.Background(), sample("x")); err != nil {
		t.Errorf("Publish() error = %v, want nil", err)
	}
}

func TestLogPublisher(t *testing.T) {
	p := NewLogPublisher(testutil.Logger())
	if err := p.Publish(context.Background(), sample("cpu.load.1m")); err != nil {
		t.Errorf("Publish() error = %v", err)
	}
}
