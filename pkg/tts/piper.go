package tts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sptcnl/momo/internal/proc"
)

const providerPiper = "piper"

// Piper synthesizes with the piper neural TTS CLI and plays the result.
type Piper struct {
	config *Config
	logger *slog.Logger
}

// NewPiper creates a piper speaker. A model is required; the piper and
// player executables must be on PATH.
func NewPiper(opts ...Option) (*Piper, error) {
	cfg := DefaultConfig()
	cfg.Binary = "piper"
	cfg.Apply(opts...)

	if cfg.Model == "" {
		return nil, WrapError(providerPiper, ErrNoModel)
	}
	if _, err := os.Stat(cfg.Model); err != nil {
		return nil, WrapError(providerPiper, fmt.Errorf("model: %w", err))
	}
	if err := proc.Require(cfg.Binary); err != nil {
		return nil, WrapError(providerPiper, err)
	}
	if err := requirePlayer(cfg.PlayCommand); err != nil {
		return nil, WrapError(providerPiper, err)
	}

	return &Piper{
		config: cfg,
		logger: cfg.Logger.With("provider", providerPiper),
	}, nil
}

// Name returns "piper".
func (p *Piper) Name() string { return providerPiper }

// Speak writes text to piper's stdin, then plays the WAV it produced.
func (p *Piper) Speak(ctx context.Context, text string) error {
	text = Clean(text)
	if text == "" {
		return WrapError(providerPiper, ErrEmptyText)
	}
	start := time.Now()

	wav := proc.TempPath(p.config.TmpDir, "momo-tts", ".wav")
	defer os.Remove(wav)

	argv := []string{p.config.Binary, "--model", p.config.Model, "--output_file", wav}
	if _, err := proc.Run(ctx, argv, strings.NewReader(text)); err != nil {
		return WrapError(providerPiper, fmt.Errorf("synthesize: %w", err))
	}
	synth := time.Since(start)

	if err := play(ctx, p.config.PlayCommand, wav); err != nil {
		return WrapError(providerPiper, err)
	}

	p.logger.Debug("spoke",
		"chars", len([]rune(text)),
		"synth_ms", synth.Milliseconds(),
		"total_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func requirePlayer(argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("play command: %w", proc.ErrNoArgv)
	}
	if !proc.HasPlaceholder(argv, "input") {
		return fmt.Errorf("play command needs an {input} argument")
	}
	return proc.Require(argv[0])
}

func play(ctx context.Context, argv []string, wav string) error {
	if _, err := proc.Run(ctx, proc.Expand(argv, map[string]string{"input": wav}), nil); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	return nil
}

var _ Speaker = (*Piper)(nil)
