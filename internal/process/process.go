// Package process runs external tools with captured diagnostics and a two-phase shutdown
// for long-running builds.
package process

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/crossbuild/internal/logfields"
)

// ErrCanceled is returned (wrapped) when a process was stopped by timeout or cancellation.
var ErrCanceled = errors.New("process canceled")

// DefaultGrace is the wait between interrupt and kill.
const DefaultGrace = 10 * time.Second

// tailSize bounds the diagnostic output kept for errors.
const tailSize = 8 << 10

// Command describes one invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string // nil inherits the current environment

	// Stdout and Stderr receive live output. nil streams to the parent's stderr.
	Stdout io.Writer
	Stderr io.Writer
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Runner is the interface collaborators use, so tests can substitute a fake.
type Runner interface {
	Run(ctx context.Context, c Command) error
	Output(ctx context.Context, c Command) (string, error)
	RunWithTimeout(ctx context.Context, c Command, timeout, grace time.Duration) error
}

// Exec runs commands on the host.
type Exec struct{}

func (Exec) Run(ctx context.Context, c Command) error { return Run(ctx, c) }

func (Exec) Output(ctx context.Context, c Command) (string, error) { return Output(ctx, c) }

func (Exec) RunWithTimeout(ctx context.Context, c Command, timeout, grace time.Duration) error {
	return RunWithTimeout(ctx, c, timeout, grace)
}

// Run executes c and fails on a non-zero exit status. The tail of stderr is attached to
// the error.
func Run(ctx context.Context, c Command) error {
	cmd, tail := c.build(ctx, nil)
	slog.Info("Running command", logfields.Command(c.String()))
	start := time.Now()
	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return ferrors.Canceled(c.Name, errors.Join(ErrCanceled, ctx.Err()))
		}
		return commandFailed(c, err, tail.String())
	}
	slog.Debug("Command finished", logfields.Command(c.Name), logfields.Duration(time.Since(start)))
	return nil
}

// Output executes c and returns its stdout with surrounding whitespace trimmed.
func Output(ctx context.Context, c Command) (string, error) {
	var stdout bytes.Buffer
	cmd, tail := c.build(ctx, &stdout)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ferrors.Canceled(c.Name, errors.Join(ErrCanceled, ctx.Err()))
		}
		return "", commandFailed(c, err, tail.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}

// RunWithTimeout executes c in its own process group. When timeout (0 disables) expires or
// ctx is canceled, the group is interrupted, given grace to exit, then killed. The returned
// error then wraps ErrCanceled.
func RunWithTimeout(ctx context.Context, c Command, timeout, grace time.Duration) error {
	if grace <= 0 {
		grace = DefaultGrace
	}
	cmd, tail := c.build(context.WithoutCancel(ctx), nil)
	setProcessGroup(cmd)

	slog.Info("Running command", logfields.Command(c.String()), slog.Duration("timeout", timeout))
	if err := cmd.Start(); err != nil {
		return commandFailed(c, err, "")
	}
	term := newGroupTerminator(cmd)
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case err := <-done:
		if err != nil {
			return commandFailed(c, err, tail.String())
		}
		return nil
	case <-expired:
		slog.Warn("Command timed out, interrupting process group", logfields.Command(c.Name), slog.Duration("timeout", timeout))
		return ferrors.Canceled(c.Name, Shutdown(term, done, grace))
	case <-ctx.Done():
		slog.Warn("Run canceled, interrupting process group", logfields.Command(c.Name))
		return ferrors.Canceled(c.Name, errors.Join(Shutdown(term, done, grace), ctx.Err()))
	}
}

// Terminator stops a running process in two phases.
type Terminator interface {
	Interrupt() error
	Kill() error
}

// Shutdown interrupts t, waits up to grace for done, then kills. It always returns
// ErrCanceled.
func Shutdown(t Terminator, done <-chan error, grace time.Duration) error {
	if err := t.Interrupt(); err != nil {
		slog.Debug("Interrupt failed", logfields.Error(err))
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		return ErrCanceled
	case <-timer.C:
	}
	slog.Warn("Process did not exit after interrupt, killing", slog.Duration("grace", grace))
	if err := t.Kill(); err != nil {
		slog.Debug("Kill failed", logfields.Error(err))
	}
	<-done
	return ErrCanceled
}

func (c Command) build(ctx context.Context, stdout io.Writer) (*exec.Cmd, *tailBuffer) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	tail := &tailBuffer{max: tailSize}

	switch {
	case stdout != nil:
		cmd.Stdout = stdout
	case c.Stdout != nil:
		cmd.Stdout = c.Stdout
	default:
		cmd.Stdout = os.Stderr
	}
	errOut := c.Stderr
	if errOut == nil {
		errOut = os.Stderr
	}
	cmd.Stderr = io.MultiWriter(errOut, tail)
	return cmd, tail
}

func commandFailed(c Command, err error, output string) error {
	b := ferrors.WrapError(err, ferrors.CategoryBuild, "command failed").
		WithContext("command", c.String()).
		Fatal()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		b = b.WithContext("exit_code", exitErr.ExitCode())
	}
	if c.Dir != "" {
		b = b.WithContext("dir", c.Dir)
	}
	if output = strings.TrimSpace(output); output != "" {
		b = b.WithContext("output", output)
	}
	return b.Build()
}

// tailBuffer keeps the last max bytes written.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.buf) }
