package conversation

import (
	"log/slog"
	"time"

	"github.com/sptcnl/momo/internal/log"
	"github.com/sptcnl/momo/internal/telemetry"
	"github.com/sptcnl/momo/pkg/reply"
)

// Config bounds every step of a turn.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// RecordWindow is how long the microphone listens.
	RecordWindow time.Duration

	EmotionTimeout time.Duration
	// STTTimeout is added on top of RecordWindow.
	STTTimeout   time.Duration
	ReplyTimeout time.Duration
	SpeakTimeout time.Duration

	// MaxReplyRunes caps what is spoken.
	MaxReplyRunes int

	// FallbackReply is spoken when even the fallback generator has nothing.
	FallbackReply string
	// Fallback answers when the primary generator fails. Defaults to
	// reply.Rules with FallbackReply as the silence phrase.
	Fallback reply.Generator

	Logger  *slog.Logger
	Metrics *telemetry.Metrics

	// OnTurn receives every finished turn.
	OnTurn func(Turn)

	Now func() time.Time
}

// Option is a functional option for configuring a Coordinator.
type Option func(*Config)

// WithRecordWindow sets the listening window.
func WithRecordWindow(d time.Duration) Option {
	return func(c *Config) {
		c.RecordWindow = d
	}
}

// WithTimeouts sets the per-step deadlines. Zero values keep the defaults.
func WithTimeouts(emotion, stt, reply, speak time.Duration) Option {
	return func(c *Config) {
		if emotion > 0 {
			c.EmotionTimeout = emotion
		}
		if stt > 0 {
			c.STTTimeout = stt
		}
		if reply > 0 {
			c.ReplyTimeout = reply
		}
		if speak > 0 {
			c.SpeakTimeout = speak
		}
	}
}

// WithMaxReplyRunes caps the spoken reply.
func WithMaxReplyRunes(n int) Option {
	return func(c *Config) {
		c.MaxReplyRunes = n
	}
}

// WithFallbackReply sets the last-resort phrase.
func WithFallbackReply(s string) Option {
	return func(c *Config) {
		c.FallbackReply = s
	}
}

// WithFallback replaces the fallback generator.
func WithFallback(g reply.Generator) Option {
	return func(c *Config) {
		c.Fallback = g
	}
}

// WithLogger sets the structured logger. Nil keeps the default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithMetrics sets the metric instruments. Nil keeps the default.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Config) {
		if m != nil {
			c.Metrics = m
		}
	}
}

// OnTurn registers a hook for finished turns.
func OnTurn(fn func(Turn)) Option {
	return func(c *Config) {
		c.OnTurn = fn
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		if now != nil {
			c.Now = now
		}
	}
}

// DefaultConfig returns a 5 second record window and the default step budgets.
func DefaultConfig() *Config {
	return &Config{
		RecordWindow:   5 * time.Second,
		EmotionTimeout: 3 * time.Second,
		STTTimeout:     30 * time.Second,
		ReplyTimeout:   15 * time.Second,
		SpeakTimeout:   30 * time.Second,
		MaxReplyRunes:  80,
		FallbackReply:  "woof woof",
		Logger:         log.Component("conversation"),
		Metrics:        telemetry.Noop(),
		Now:            time.Now,
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
