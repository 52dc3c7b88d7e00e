// Package proc runs engine subprocesses with a deadline. On timeout or
// cancellation the child gets an interrupt first and is killed if it has not
// exited shortly after.
package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrNoOutput is returned when a command succeeds but writes nothing.
var ErrNoOutput = errors.New("command produced no output")

// killGrace is how long a child has to exit after the interrupt.
const killGrace = 100 * time.Millisecond

// Command describes one subprocess invocation.
type Command struct {
	Path    string
	Args    []string
	Stdin   io.Reader // nil means an empty stdin
	Timeout time.Duration
	Dir     string

	// MaxOutput bounds stdout; 0 means unlimited
	MaxOutput int
}

// Result holds a finished command's output.
type Result struct {
	Stdout   []byte
	Stderr   string
	Duration time.Duration
}

// Run executes c and returns its output. Timeouts are reported wrapping
// context.DeadlineExceeded so callers can classify them.
func Run(ctx context.Context, c Command) (Result, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...) //nolint:gosec
	cmd.Dir = c.Dir
	// Stdin is wired before Start so the child never races an empty pipe
	if c.Stdin != nil {
		cmd.Stdin = c.Stdin
	} else {
		cmd.Stdin = strings.NewReader("")
	}
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = killGrace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   strings.TrimSpace(stderr.String()),
		Duration: time.Since(start),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("%s: %w", c.Path, ctxErr)
	}
	if err != nil {
		if res.Stderr != "" {
			return res, fmt.Errorf("%s failed: %w, stderr: %s", c.Path, err, res.Stderr)
		}
		return res, fmt.Errorf("%s failed: %w", c.Path, err)
	}
	if c.MaxOutput > 0 && len(res.Stdout) > c.MaxOutput {
		return res, fmt.Errorf("%s output too large: %d bytes (max %d)", c.Path, len(res.Stdout), c.MaxOutput)
	}
	return res, nil
}

// RequireOutput is Run but treats empty stdout as an error.
func RequireOutput(ctx context.Context, c Command) (Result, error) {
	res, err := Run(ctx, c)
	if err != nil {
		return res, err
	}
	if len(res.Stdout) == 0 {
		if res.Stderr != "" {
			return res, fmt.Errorf("%s: %w, stderr: %s", c.Path, ErrNoOutput, res.Stderr)
		}
		return res, fmt.Errorf("%s: %w", c.Path, ErrNoOutput)
	}
	return res, nil
}

// Find resolves a binary on PATH, returning a helpful error when missing.
func Find(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return path, nil
}
