package tts

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sptcnl/momo/internal/proc"
)

const providerEspeak = "espeak"

// Espeak is the formant synthesizer fallback: robotic, but always
// installed on Raspberry Pi OS.
type Espeak struct {
	config *Config
	logger *slog.Logger
}

// NewEspeak creates an espeak-ng speaker. Voice defaults to "ko".
func NewEspeak(opts ...Option) (*Espeak, error) {
	cfg := DefaultConfig()
	cfg.Binary = "espeak-ng"
	cfg.Voice = "ko"
	cfg.Apply(opts...)

	if err := proc.Require(cfg.Binary); err != nil {
		return nil, WrapError(providerEspeak, err)
	}
	if err := requirePlayer(cfg.PlayCommand); err != nil {
		return nil, WrapError(providerEspeak, err)
	}
	return &Espeak{
		config: cfg,
		logger: cfg.Logger.With("provider", providerEspeak),
	}, nil
}

// Name returns "espeak".
func (e *Espeak) Name() string { return providerEspeak }

// Speak renders text to a WAV with espeak-ng and plays it.
func (e *Espeak) Speak(ctx context.Context, text string) error {
	text = Clean(text)
	if text == "" {
		return WrapError(providerEspeak, ErrEmptyText)
	}

	wav := proc.TempPath(e.config.TmpDir, "momo-tts", ".wav")
	defer os.Remove(wav)

	argv := []string{e.config.Binary, "-v", e.config.Voice, "-w", wav, text}
	if _, err := proc.Run(ctx, argv, nil); err != nil {
		return WrapError(providerEspeak, fmt.Errorf("synthesize: %w", err))
	}
	if err := play(ctx, e.config.PlayCommand, wav); err != nil {
		return WrapError(providerEspeak, err)
	}
	e.logger.Debug("spoke", "chars", len([]rune(text)))
	return nil
}

var _ Speaker = (*Espeak)(nil)
