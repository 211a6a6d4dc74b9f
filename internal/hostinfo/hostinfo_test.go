package hostinfo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/boardscout/boardscout/internal/testutil"
	"github.com/boardscout/boardscout/pkg/metric"
)

func TestReadings(t *testing.T) {
	readings := Readings(context.Background())
	if len(readings) == 0 {
		t.Skip("host facts unavailable on this platform")
	}

	seen := make(map[string]bool, len(readings))
	for _, r := range readings {
		if !strings.HasPrefix(r.Name, "agent.host.") {
			t.Errorf("reading %q lacks agent.host. prefix", r.Name)
		}
		if r.Quality != metric.QualityGood {
			t.Errorf("%s Quality = %s, want %s", r.Name, r.Quality, metric.QualityGood)
		}
		if r.Timestamp.IsZero() {
			t.Errorf("%s has zero timestamp", r.Name)
		}
		seen[r.Name] = true
	}
	for _, name := range []string{"agent.host.name", "agent.host.os", "agent.host.kernel"} {
		if !seen[name] {
			t.Errorf("missing reading %q", name)
		}
	}
}

func TestPublish(t *testing.T) {
	if len(Readings(context.Background())) == 0 {
		t.Skip("host facts unavailable on this platform")
	}

	pub := testutil.NewMockPublisher()
	if err := Publish(context.Background(), pub); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(pub.Readings()) == 0 {
		t.Error("no host facts published")
	}

	pub.Fail(errors.New("sink down"))
	if err := Publish(context.Background(), pub); err == nil {
		t.Error("Publish() error = nil with failing sink, want error")
	}
}
