package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/boardscout/boardscout/internal/registry"
)

func TestFileReaderReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp")
	if err := os.WriteFile(path, []byte("45000\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	data, err := NewFileReader(path).Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got := string(data); got != "45000\n" {
		t.Errorf("Read() = %q, want %q", got, "45000\n")
	}
}

func TestFileReaderMissingFileIsUnavailable(t *testing.T) {
	r := NewFileReader(filepath.Join(t.TempDir(), "sys", "class", "net", "wlan0", "statistics", "rx_bytes"))

	_, err := r.Read(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Read() error = %v, want ErrUnavailable", err)
	}
}

func TestFileReaderCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFileReader("/proc/uptime").Read(ctx)
	if err == nil {
		t.Error("Read() error = nil, want context error")
	}
}

func TestCommandReaderCapturesStdout(t *testing.T) {
	r := NewCommandReader("echo hello board", 2*time.Second, nil)

	out, err := r.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got := strings.TrimSpace(string(out)); got != "hello board" {
		t.Errorf("Read() = %q, want %q", got, "hello board")
	}
}

func TestCommandReaderTimeout(t *testing.T) {
	r := NewCommandReader("sleep 5", 100*time.Millisecond, nil)

	start := time.Now()
	_, err := r.Read(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Read() error = %v, want ErrTimeout", err)
	}
	// The subprocess must be killed and reaped well before its natural end.
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Read() took %v, command was not killed on timeout", elapsed)
	}
}

func TestCommandReaderCommandNotFound(t *testing.T) {
	r := NewCommandReader("definitely-not-a-command-on-this-box --flag", time.Second, nil)

	_, err := r.Read(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Read() error = %v, want ErrUnavailable", err)
	}
}

func TestCommandReaderNonZeroExitIsUnavailable(t *testing.T) {
	r := NewCommandReader("false", time.Second, nil)

	_, err := r.Read(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Read() error = %v, want ErrUnavailable", err)
	}
}

func TestCommandReaderEmptyCommand(t *testing.T) {
	r := NewCommandReader("   ", time.Second, nil)

	_, err := r.Read(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Read() error = %v, want ErrUnavailable", err)
	}
}

func TestCommandReaderHonorsRateLimiter(t *testing.T) {
	// Limiter with no burst: Wait fails immediately under a cancelled
	// deadline rather than spawning the command.
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	r := NewCommandReader("echo hi", time.Second, limiter)

	if _, err := r.Read(context.Background()); err != nil {
		t.Fatalf("first Read() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := r.Read(ctx); err == nil {
		t.Error("second Read() error = nil, want limiter wait failure")
	}
}

func TestForSource(t *testing.T) {
	if _, ok := ForSource(registry.Source{File: "/proc/uptime"}, nil).(*FileReader); !ok {
		t.Error("ForSource(file) did not return a FileReader")
	}
	if _, ok := ForSource(registry.Source{Command: "df -P /"}, nil).(*CommandReader); !ok {
		t.Error("ForSource(command) did not return a CommandReader")
	}
}
