// Package source executes a module's source descriptor: read a pseudo-file
// or run an external command, producing raw bytes or a typed failure. No
// parsing and no retries happen here; retry policy belongs to the failure
// policy.
package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/boardscout/boardscout/internal/registry"
)

// Sentinel errors mapping onto the collection status taxonomy.
var (
	// ErrUnavailable covers missing files, permission problems, and
	// commands that cannot run or exit non-zero. Expected on some hardware.
	ErrUnavailable = errors.New("source unavailable")
	// ErrTimeout means the command did not complete within its budget.
	ErrTimeout = errors.New("source timed out")
)

// Reader produces the raw bytes for one module.
type Reader interface {
	Read(ctx context.Context) ([]byte, error)
}

// ForSource builds the reader matching a module's source descriptor. The
// limiter, shared across modules, bounds the command spawn rate; it may be
// nil and is ignored for file reads.
func ForSource(src registry.Source, limiter *rate.Limiter) Reader {
	if src.File != "" {
		return NewFileReader(src.File)
	}
	return NewCommandReader(src.Command, src.Timeout, limiter)
}

// FileReader reads a kernel pseudo-file such as /proc/loadavg.
type FileReader struct {
	path string
}

// NewFileReader creates a reader for the given path.
func NewFileReader(path string) *FileReader {
	return &FileReader{path: path}
}

// Read returns the file contents. A missing file or permission failure is
// ErrUnavailable: hardware (a hot-pluggable wlan interface, an absent
// thermal zone) may legitimately not be there.
func (r *FileReader) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("%w: read %q: %v", ErrUnavailable, r.path, err)
	}
	return data, nil
}

// CommandReader runs an external diagnostic command with a hard timeout.
// The command line is split on whitespace and executed directly, never
// through a shell, so catalog data cannot inject shell syntax.
type CommandReader struct {
	argv    []string
	timeout time.Duration
	limiter *rate.Limiter
}

// NewCommandReader creates a reader for the given command line.
func NewCommandReader(command string, timeout time.Duration, limiter *rate.Limiter) *CommandReader {
	if timeout <= 0 {
		timeout = registry.DefaultTimeout
	}
	return &CommandReader{
		argv:    strings.Fields(command),
		timeout: timeout,
		limiter: limiter,
	}
}

// Read runs the command and returns its stdout. The command gets its own
// process group; on timeout the whole group is killed and reaped, so a
// misbehaving command leaks neither processes nor descriptors.
func (r *CommandReader) Read(ctx context.Context) ([]byte, error) {
	if len(r.argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrUnavailable)
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.argv[0], r.argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative pid signals the whole process group, catching any
		// children the command spawned.
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %q exceeded %v", ErrTimeout, r.argv[0], r.timeout)
		}
		return nil, fmt.Errorf("%w: run %q: %v", ErrUnavailable, r.argv[0], err)
	}
	return out, nil
}
