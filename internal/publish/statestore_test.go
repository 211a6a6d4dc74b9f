package publish

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/boardscout/boardscout/pkg/metric"
)

func newTestStore(t *testing.T) *StateStore {
	t.Helper()
	store, err := NewStateStore(filepath.Join(t.TempDir(), "boardscout.db"))
	if err != nil {
		t.Fatalf("NewStateStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStateStorePublishAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ts := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	err := store.Publish(ctx, metric.Reading{
		Name:      "thermal.soc.celsius",
		Value:     45.2,
		Unit:      "C",
		Timestamp: ts,
		Quality:   metric.QualityGood,
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	row, err := store.Get(ctx, "thermal.soc.celsius")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if row.Value != "45.2" {
		t.Errorf("Value = %q, want %q", row.Value, "45.2")
	}
	if row.Unit != "C" {
		t.Errorf("Unit = %q, want %q", row.Unit, "C")
	}
	if row.Quality != metric.QualityGood {
		t.Errorf("Quality = %s, want %s", row.Quality, metric.QualityGood)
	}
	if !row.UpdatedAt.Equal(ts) {
		t.Errorf("UpdatedAt = %v, want %v", row.UpdatedAt, ts)
	}
}

func TestStateStoreUpsertKeepsLatestOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := metric.Reading{
		Name: "cpu.load.1m", Value: 0.52,
		Timestamp: time.Now().UTC(), Quality: metric.QualityGood,
	}
	second := metric.Reading{
		Name: "cpu.load.1m", Value: 1.87,
		Timestamp: time.Now().UTC().Add(15 * time.Second), Quality: metric.QualityGood,
	}
	if err := store.Publish(ctx, first); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := store.Publish(ctx, second); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	row, err := store.Get(ctx, "cpu.load.1m")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if row.Value != "1.87" {
		t.Errorf("Value = %q, want latest %q", row.Value, "1.87")
	}
}

func TestStateStoreUnavailableReading(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Publish(ctx, metric.Reading{
		Name:      "disk.root.used_pct",
		Timestamp: time.Now().UTC(),
		Quality:   metric.QualityUnavailable,
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	row, err := store.Get(ctx, "disk.root.used_pct")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if row.Quality != metric.QualityUnavailable {
		t.Errorf("Quality = %s, want %s", row.Quality, metric.QualityUnavailable)
	}
	if row.Value != "null" {
		t.Errorf("Value = %q, want JSON null", row.Value)
	}
}

func TestStateStoreGetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "never.published")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Get() error = %v, want sql.ErrNoRows", err)
	}
}
