package tts

import (
	"log/slog"

	"github.com/sptcnl/momo/internal/log"
)

// Config holds TTS provider configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Binary is the synthesizer executable.
	Binary string

	// Model is the voice model file (piper).
	Model string

	// Voice is the voice name (espeak-ng).
	Voice string

	// PlayCommand plays a WAV file; {input} is replaced with its path.
	PlayCommand []string

	// TmpDir holds intermediate WAV files. Empty means os.TempDir.
	TmpDir string

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring TTS providers.
type Option func(*Config)

// WithBinary overrides the synthesizer executable.
func WithBinary(path string) Option {
	return func(c *Config) {
		c.Binary = path
	}
}

// WithModel sets the voice model file.
func WithModel(path string) Option {
	return func(c *Config) {
		c.Model = path
	}
}

// WithVoice sets the voice name.
func WithVoice(voice string) Option {
	return func(c *Config) {
		c.Voice = voice
	}
}

// WithPlayCommand sets the WAV player argv.
func WithPlayCommand(argv ...string) Option {
	return func(c *Config) {
		c.PlayCommand = argv
	}
}

// WithTmpDir sets where intermediate audio is written.
func WithTmpDir(dir string) Option {
	return func(c *Config) {
		c.TmpDir = dir
	}
}

// WithLogger sets the structured logger for the provider.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// DefaultConfig plays through ALSA's aplay.
func DefaultConfig() *Config {
	return &Config{
		PlayCommand: []string{"aplay", "-q", "{input}"},
		Logger:      log.Component("tts"),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
