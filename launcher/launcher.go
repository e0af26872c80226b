// Package launcher starts job commands as independent OS processes and lets
// the coordinator poll them for completion.
package launcher

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/teranos/gridpulse/errors"
)

// DefaultShell runs commands when shell mode is enabled.
const DefaultShell = "/bin/sh"

// Handle tracks one launched process.
type Handle interface {
	PID() int
	// Exited reports, without blocking, whether the process has finished.
	Exited() bool
	// ExitCode is the exit status once Exited is true, -1 before or when killed by a signal.
	ExitCode() int
	StartedAt() time.Time
	// Duration is the wall-clock run time, measured up to now while still running.
	Duration() time.Duration
	// Wait blocks until the process exits or ctx is done.
	Wait(ctx context.Context) error
}

// Launcher starts commands.
type Launcher interface {
	Launch(ctx context.Context, command string) (Handle, error)
}

// ExecLauncher starts commands with os/exec. Children are not tied to the
// caller's context: cancelling a pass never kills a running job.
type ExecLauncher struct {
	// Shell runs the command through ShellPath -c instead of splitting it.
	Shell     bool
	ShellPath string
	Dir       string
	Env       []string
	Stdout    io.Writer
	Stderr    io.Writer

	timeNow func() time.Time
}

// NewExecLauncher returns a launcher that forwards child output to ours.
func NewExecLauncher(shell bool) *ExecLauncher {
	return &ExecLauncher{
		Shell:     shell,
		ShellPath: DefaultShell,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		timeNow:   time.Now,
	}
}

// Command builds the exec.Cmd for command without starting it.
func (l *ExecLauncher) Command(command string) (*exec.Cmd, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, errors.New("empty command")
	}

	var cmd *exec.Cmd
	if l.Shell {
		shell := l.ShellPath
		if shell == "" {
			shell = DefaultShell
		}
		cmd = exec.Command(shell, "-c", command)
	} else {
		args, err := shellquote.Split(command)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse command %q", command)
		}
		if len(args) == 0 {
			return nil, errors.Newf("no program in command %q", command)
		}
		cmd = exec.Command(args[0], args[1:]...)
	}
	cmd.Dir = l.Dir
	if len(l.Env) > 0 {
		cmd.Env = append(os.Environ(), l.Env...)
	}
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	return cmd, nil
}

// Launch starts command and returns immediately.
func (l *ExecLauncher) Launch(ctx context.Context, command string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd, err := l.Command(command)
	if err != nil {
		return nil, err
	}

	now := l.timeNow
	if now == nil {
		now = time.Now
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to start %q", command)
	}

	h := &procHandle{
		cmd:      cmd,
		started:  now(),
		timeNow:  now,
		done:     make(chan struct{}),
		exitCode: -1,
	}
	go h.wait()
	return h, nil
}

type procHandle struct {
	cmd     *exec.Cmd
	started time.Time
	timeNow func() time.Time
	done    chan struct{}

	mu       sync.Mutex
	ended    time.Time
	exitCode int
	waitErr  error
}

func (h *procHandle) wait() {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.ended = h.timeNow()
	h.waitErr = err
	if h.cmd.ProcessState != nil {
		h.exitCode = h.cmd.ProcessState.ExitCode()
	}
	h.mu.Unlock()
	close(h.done)
}

func (h *procHandle) PID() int { return h.cmd.Process.Pid }

func (h *procHandle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *procHandle) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode
}

func (h *procHandle) StartedAt() time.Time { return h.started }

func (h *procHandle) Duration() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ended.IsZero() {
		return h.timeNow().Sub(h.started)
	}
	return h.ended.Sub(h.started)
}

func (h *procHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		var exitErr *exec.ExitError
		if h.waitErr != nil && !errors.As(h.waitErr, &exitErr) {
			return errors.Wrap(h.waitErr, "wait failed")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
