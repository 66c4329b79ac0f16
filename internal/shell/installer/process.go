package installer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/domain"
)

// =============================================================================
// Install
// =============================================================================

// LineCollector receives subprocess output one line at a time. Calls are
// serialized across streams.
type LineCollector func(stream, line string)

// InstallOptions configures one install run.
type InstallOptions struct {
	Collector     LineCollector
	UsePullPolicy bool
	Timeout       time.Duration
}

// composeArgs builds the argument list after the compose command itself.
func composeArgs(descriptorPath, appID string, pull bool) []string {
	args := []string{
		"--project-name", appID,
		"--file", descriptorPath,
		"up", "--detach", "--remove-orphans",
	}
	if pull {
		args = append(args, "--pull", "always")
	}
	return args
}

// Install brings the application up from a finalized descriptor and waits
// for the compose process to exit. The returned result is always populated;
// the error is non-nil exactly when the result is unsuccessful and wraps
// domain.ErrTimeout or domain.ErrExternalTool.
//
// On timeout the process receives SIGTERM, and SIGKILL once the configured
// grace period passes.
func (a *Adapter) Install(ctx context.Context, descriptorPath, appID string, opts InstallOptions) (domain.Result, error) {
	logger := a.logger.With("app_id", appID)

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	command := a.cfg.ComposeCommand
	args := append(append([]string{}, command[1:]...), composeArgs(descriptorPath, appID, opts.UsePullPolicy)...)
	cmd := exec.CommandContext(runCtx, command[0], args...)
	cmd.Dir = filepath.Dir(descriptorPath)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = a.cfg.KillGrace

	var mu sync.Mutex
	stdout := newLineWriter("stdout", &mu, opts.Collector)
	stderr := newLineWriter("stderr", &mu, opts.Collector)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	logger.Info("install started", "command", command[0], "args", args)
	start := time.Now()
	err := cmd.Run()
	stdout.Flush()
	stderr.Flush()
	elapsed := time.Since(start)

	if err == nil {
		logger.Info("install finished", "duration", elapsed)
		return domain.Result{Success: true, Message: fmt.Sprintf("%s installed", appID)}, nil
	}

	var runErr error
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		runErr = fmt.Errorf("%w: install of %s exceeded %s", domain.ErrTimeout, appID, opts.Timeout)
	case ctx.Err() != nil:
		runErr = fmt.Errorf("%w: install of %s cancelled: %v", domain.ErrExternalTool, appID, ctx.Err())
	default:
		runErr = fmt.Errorf("%w: %s", domain.ErrExternalTool, describeExit(err, stderr.Tail()))
	}
	logger.Error("install failed", "duration", elapsed, "error", runErr)
	return domain.Result{Success: false, Message: runErr.Error()}, runErr
}

func describeExit(err error, tail string) string {
	var exitErr *exec.ExitError
	msg := err.Error()
	if errors.As(err, &exitErr) {
		msg = fmt.Sprintf("compose exited with code %d", exitErr.ExitCode())
	}
	if tail != "" {
		msg += ": " + tail
	}
	return msg
}

// =============================================================================
// Line Splitting
// =============================================================================

// lineWriter splits a byte stream into lines for a collector. Writers that
// share a mutex never call the collector concurrently.
type lineWriter struct {
	stream string
	mu     *sync.Mutex
	emit   LineCollector
	buf    []byte
	tail   string
}

func newLineWriter(stream string, mu *sync.Mutex, emit LineCollector) *lineWriter {
	return &lineWriter{stream: stream, mu: mu, emit: emit}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx < 0 {
			break
		}
		w.line(string(w.buf[:idx]))
		w.buf = w.buf[idx+1:]
	}
	return len(p), nil
}

// Flush emits a trailing partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.line(string(w.buf))
		w.buf = nil
	}
}

// Tail returns the last non-empty line written.
func (w *lineWriter) Tail() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tail
}

func (w *lineWriter) line(s string) {
	s = strings.TrimRight(s, "\r")
	if strings.TrimSpace(s) == "" {
		return
	}
	w.tail = s
	if w.emit != nil {
		w.emit(w.stream, s)
	}
}
