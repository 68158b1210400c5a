package sound

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

const (
	// defaultTimeout bounds one playback when Config.Timeout is zero.
	defaultTimeout = 30 * time.Second

	// stopGrace is how long a program gets after SIGTERM before it is killed.
	stopGrace = 2 * time.Second

	// stderrLimit caps the stderr kept for error messages.
	stderrLimit = 4096
)

// Argument placeholders.
const (
	placeholderFile  = "{file}"
	placeholderText  = "{text}"
	placeholderVoice = "{voice}"
)

// Config describes one external program.
type Config struct {
	// Command is the program name or path.
	Command string

	// Args may contain {file}, {text} and {voice} placeholders.
	Args []string

	// Voice is the default voice for speech when the action names none.
	Voice string

	// Timeout bounds one call. Zero means 30 seconds.
	Timeout time.Duration
}

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// command runs a configured program once per call.
type command struct {
	kind    string
	path    string
	args    []string
	timeout time.Duration
	logger  Logger
}

func newCommand(kind string, cfg Config) (*command, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, kind)
	}
	path, err := exec.LookPath(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCommandNotFound, cfg.Command, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &command{
		kind:    kind,
		path:    path,
		args:    append([]string(nil), cfg.Args...),
		timeout: timeout,
		logger:  noopLogger{},
	}, nil
}

// expandArgs substitutes placeholders. It reports whether placeholder
// appeared in any argument.
func expandArgs(args []string, vars map[string]string, placeholder string) (out []string, used bool) {
	out = make([]string, len(args))
	for i, arg := range args {
		if strings.Contains(arg, placeholder) {
			used = true
		}
		for k, v := range vars {
			arg = strings.ReplaceAll(arg, k, v)
		}
		out[i] = arg
	}
	return out, used
}

// run executes the program with args and optional stdin, and waits for it.
func (c *command) run(ctx context.Context, args []string, stdin io.Reader) error {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.path, args...) //nolint:gosec // Program comes from operator config
	cmd.Stdin = stdin
	stderr := &limitedBuffer{limit: stderrLimit}
	cmd.Stderr = stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = stopGrace

	start := time.Now()
	err := cmd.Run()
	c.logger.Debug("sound command finished",
		"kind", c.kind,
		"command", c.path,
		"duration", time.Since(start),
	)
	if err == nil {
		return nil
	}

	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %s after %v", ErrTimeout, c.kind, c.timeout)
	}

	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		return fmt.Errorf("%w: %s: %w", ErrCommandFailed, c.kind, err)
	}
	return fmt.Errorf("%w: %s: %w: %s", ErrCommandFailed, c.kind, err, msg)
}

// limitedBuffer keeps the first limit bytes written and discards the rest.
type limitedBuffer struct {
	buf   []byte
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - len(b.buf); room > 0 {
		if len(p) > room {
			b.buf = append(b.buf, p[:room]...)
		} else {
			b.buf = append(b.buf, p...)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return string(b.buf)
}
