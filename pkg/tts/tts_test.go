package tts_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sptcnl/momo/internal/log"
	"github.com/sptcnl/momo/internal/proc"
	"github.com/sptcnl/momo/pkg/tts"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

// fakePiper copies stdin to the --output_file argument; the player appends
// the WAV to played.
func fakePiper(t *testing.T, piperBody string) (*tts.Piper, string) {
	t.Helper()
	dir := t.TempDir()
	model := filepath.Join(dir, "voice.onnx")
	require.NoError(t, os.WriteFile(model, []byte("onnx"), 0o644))
	played := filepath.Join(dir, "played")

	if piperBody == "" {
		piperBody = `cat > "$4"`
	}
	bin := writeScript(t, dir, "piper", piperBody)

	p, err := tts.NewPiper(
		tts.WithBinary(bin),
		tts.WithModel(model),
		tts.WithPlayCommand("sh", "-c", "cat {input} >> "+played),
		tts.WithTmpDir(dir),
		tts.WithLogger(log.Discard()),
	)
	require.NoError(t, err)
	return p, played
}

func TestPiperSpeak(t *testing.T) {
	p, played := fakePiper(t, "")

	require.NoError(t, p.Speak(context.Background(), "안녕하세요! 🐶"))

	got, err := os.ReadFile(played)
	require.NoError(t, err)
	assert.Equal(t, "안녕하세요!", string(got), "emoji are stripped before synthesis")

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(played), "momo-tts-*.wav"))
	assert.Empty(t, leftovers, "temporary WAV is removed")
}

func TestPiperEmptyText(t *testing.T) {
	p, played := fakePiper(t, "")

	err := p.Speak(context.Background(), "  🐾 ")
	assert.ErrorIs(t, err, tts.ErrEmptyText)
	_, statErr := os.Stat(played)
	assert.True(t, os.IsNotExist(statErr), "nothing played")
}

func TestPiperSynthFailure(t *testing.T) {
	p, _ := fakePiper(t, `echo "bad model" >&2; exit 2`)

	err := p.Speak(context.Background(), "hello")
	require.Error(t, err)

	var perr *tts.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "piper", perr.Provider)
	assert.Contains(t, err.Error(), "bad model")
}

func TestPiperTimeout(t *testing.T) {
	p, _ := fakePiper(t, `exec sleep 5`)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Speak(ctx, "hello"), proc.ErrTimeout)
}

func TestNewPiperValidation(t *testing.T) {
	t.Run("model required", func(t *testing.T) {
		_, err := tts.NewPiper(tts.WithBinary("sh"))
		assert.ErrorIs(t, err, tts.ErrNoModel)
	})

	t.Run("model must exist", func(t *testing.T) {
		_, err := tts.NewPiper(tts.WithBinary("sh"), tts.WithModel(filepath.Join(t.TempDir(), "none.onnx")))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("player needs input placeholder", func(t *testing.T) {
		model := filepath.Join(t.TempDir(), "v.onnx")
		require.NoError(t, os.WriteFile(model, nil, 0o644))
		_, err := tts.NewPiper(tts.WithBinary("sh"), tts.WithModel(model), tts.WithPlayCommand("aplay"))
		assert.Error(t, err)
	})
}

func TestEspeakSpeak(t *testing.T) {
	dir := t.TempDir()
	played := filepath.Join(dir, "played")
	// -v VOICE -w WAV TEXT
	bin := writeScript(t, dir, "espeak-ng", `printf "%s:%s" "$2" "$5" > "$4"`)

	e, err := tts.NewEspeak(
		tts.WithBinary(bin),
		tts.WithPlayCommand("sh", "-c", "cat {input} >> "+played),
		tts.WithTmpDir(dir),
		tts.WithLogger(log.Discard()),
	)
	require.NoError(t, err)
	assert.Equal(t, "espeak", e.Name())

	require.NoError(t, e.Speak(context.Background(), "멍멍 💕"))
	got, err := os.ReadFile(played)
	require.NoError(t, err)
	assert.Equal(t, "ko:멍멍", string(got))
}

func TestChain(t *testing.T) {
	ctx := context.Background()

	t.Run("first success wins", func(t *testing.T) {
		a, b := tts.NewMock(), tts.NewMock()
		chain, err := tts.NewChainWithLogger(log.Discard(), a, b)
		require.NoError(t, err)

		require.NoError(t, chain.Speak(ctx, "hi"))
		assert.Equal(t, 1, a.CallCount("Speak"))
		assert.Equal(t, 0, b.CallCount("Speak"))
	})

	t.Run("falls through", func(t *testing.T) {
		a := tts.WithError(errors.New("no piper"))
		b := tts.NewMock()
		chain, err := tts.NewChainWithLogger(log.Discard(), a, b)
		require.NoError(t, err)

		require.NoError(t, chain.Speak(ctx, "hi"))
		assert.Equal(t, "hi", b.LastCall().Text)
	})

	t.Run("all fail", func(t *testing.T) {
		e1, e2 := errors.New("one"), errors.New("two")
		chain, err := tts.NewChainWithLogger(log.Discard(), tts.WithError(e1), tts.WithError(e2))
		require.NoError(t, err)

		err = chain.Speak(ctx, "hi")
		var cerr *tts.ChainError
		require.ErrorAs(t, err, &cerr)
		assert.Len(t, cerr.Errors, 2)
		assert.ErrorIs(t, err, e1)
		assert.ErrorIs(t, err, e2)
		assert.Contains(t, err.Error(), "all 2 providers failed")
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		b := tts.NewMock()
		chain, err := tts.NewChainWithLogger(log.Discard(), tts.WithError(errors.New("x")), b)
		require.NoError(t, err)

		assert.ErrorIs(t, chain.Speak(cctx, "hi"), context.Canceled)
		assert.Zero(t, b.CallCount("Speak"))
	})

	t.Run("needs a provider", func(t *testing.T) {
		_, err := tts.NewChain()
		assert.ErrorIs(t, err, tts.ErrProviderUnavailable)
	})

	t.Run("name", func(t *testing.T) {
		chain, _ := tts.NewChain(&tts.Mock{NameValue: "piper"}, &tts.Mock{NameValue: "espeak"})
		assert.Equal(t, "piper,espeak", chain.Name())
	})
}

func TestMockWithLatency(t *testing.T) {
	mock := tts.WithLatency(tts.NewMock(), 50*time.Millisecond)

	t.Run("Speak has latency", func(t *testing.T) {
		start := time.Now()
		require.NoError(t, mock.Speak(context.Background(), "hello"))
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("Context cancellation works", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		assert.Error(t, mock.Speak(ctx, "hello"))
	})

	t.Run("Reset clears calls", func(t *testing.T) {
		mock.Reset()
		assert.Empty(t, mock.Calls())
		assert.Nil(t, mock.LastCall())
	})
}

func TestClean(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"🐕 안녕하세요 주인님! 오늘도 화이팅! 💕", "안녕하세요 주인님! 오늘도 화이팅!"},
		{"멋져요! 같이 뛰놀자! 🏃‍♂️", "멋져요! 같이 뛰놀자!"},
		{"line\none\t two", "line one two"},
		{"🐶🐾", ""},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tts.Clean(tt.in), "input %q", tt.in)
	}
}
