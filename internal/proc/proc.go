// Package proc runs the external tools momo depends on (whisper.cpp, piper,
// arecord, the local LLM binary) with a deadline and a typed failure.
package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors. Use errors.Is against an *Error.
var (
	ErrTimeout  = errors.New("proc: timed out")
	ErrNotFound = errors.New("proc: executable not found")
	ErrNoArgv   = errors.New("proc: empty command")
)

// WaitDelay is how long a killed process gets to release its pipes.
const WaitDelay = 2 * time.Second

// maxStderr caps the stderr kept on an Error.
const maxStderr = 512

// Error describes a failed run.
type Error struct {
	Name     string // argv[0]
	ExitCode int    // -1 when the process never exited normally
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("proc: %s: %v", e.Name, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Run executes argv under ctx, feeding stdin when non-nil, and returns
// stdout. A run cut short by the ctx deadline fails with ErrTimeout.
func Run(ctx context.Context, argv []string, stdin io.Reader) ([]byte, error) {
	if len(argv) == 0 {
		return nil, ErrNoArgv
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = WaitDelay

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}

	perr := &Error{
		Name:     filepath.Base(argv[0]),
		ExitCode: -1,
		Stderr:   tail(stderr.String(), maxStderr),
		Err:      err,
	}
	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		perr.Err = fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	case ctx.Err() != nil:
		perr.Err = ctx.Err()
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		perr.Err = fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.As(err, &exitErr):
		perr.ExitCode = exitErr.ExitCode()
	}
	return stdout.Bytes(), perr
}

// Require checks that name resolves to an executable.
func Require(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return &Error{Name: filepath.Base(name), ExitCode: -1, Err: fmt.Errorf("%w: %w", ErrNotFound, err)}
	}
	return nil
}

// Expand replaces {key} placeholders in every argument.
func Expand(argv []string, vars map[string]string) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		for k, v := range vars {
			a = strings.ReplaceAll(a, "{"+k+"}", v)
		}
		out[i] = a
	}
	return out
}

// HasPlaceholder reports whether any argument mentions {key}.
func HasPlaceholder(argv []string, key string) bool {
	for _, a := range argv {
		if strings.Contains(a, "{"+key+"}") {
			return true
		}
	}
	return false
}

// TempPath returns a unique file name under dir (os.TempDir when empty).
// The file is not created.
func TempPath(dir, prefix, ext string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, prefix+"-"+uuid.NewString()+ext)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
