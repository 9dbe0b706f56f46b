package proc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCapturesStdout(t *testing.T) {
	out, err := Run(context.Background(), []string{"echo", "hello"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))
}

func TestRunFeedsStdin(t *testing.T) {
	out, err := Run(context.Background(), []string{"cat"}, strings.NewReader("멍멍"))
	require.NoError(t, err)
	assert.Equal(t, "멍멍", string(out))
}

func TestRunExitCode(t *testing.T) {
	_, err := Run(context.Background(), []string{"sh", "-c", "echo boom >&2; exit 3"}, nil)
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "sh", perr.Name)
	assert.Equal(t, 3, perr.ExitCode)
	assert.Equal(t, "boom", perr.Stderr)
	assert.Contains(t, err.Error(), "boom")
}

func TestRunTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Run(ctx, []string{"sleep", "5"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, []string{"sleep", "5"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestRunMissingBinary(t *testing.T) {
	_, err := Run(context.Background(), []string{"momo-no-such-tool"}, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Run(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNoArgv)
}

func TestRequire(t *testing.T) {
	assert.NoError(t, Require("sh"))
	assert.ErrorIs(t, Require("momo-no-such-tool"), ErrNotFound)
}

func TestExpand(t *testing.T) {
	argv := []string{"arecord", "-d", "{seconds}", "{output}", "--tag={output}"}
	got := Expand(argv, map[string]string{"seconds": "5", "output": "/tmp/a.wav"})
	assert.Equal(t, []string{"arecord", "-d", "5", "/tmp/a.wav", "--tag=/tmp/a.wav"}, got)
	assert.Equal(t, "{seconds}", argv[2], "input is not modified")

	assert.True(t, HasPlaceholder(argv, "output"))
	assert.False(t, HasPlaceholder(argv, "input"))
}

func TestTempPath(t *testing.T) {
	dir := t.TempDir()
	a := TempPath(dir, "rec", ".wav")
	b := TempPath(dir, "rec", ".wav")
	assert.NotEqual(t, a, b)
	assert.Equal(t, dir, filepath.Dir(a))
	assert.True(t, strings.HasSuffix(a, ".wav"))
	_, err := os.Stat(a)
	assert.True(t, os.IsNotExist(err))
}

func TestTail(t *testing.T) {
	assert.Equal(t, "abc", tail("  abc\n", 10))
	assert.Equal(t, "...cde", tail("abcde", 3))
}
