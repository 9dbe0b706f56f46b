package reply

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/sptcnl/momo/internal/log"
	"github.com/sptcnl/momo/internal/proc"
)

const providerLLM = "llm"

// LLMConfig configures a local completion binary with llama.cpp style
// flags (BitNet run_inference, llama-cli).
type LLMConfig struct {
	Binary      string
	Model       string
	Args        []string // appended after the standard flags
	MaxTokens   int
	Threads     int
	Temperature float64

	// Timeout bounds one completion. Zero means DefaultLLMTimeout.
	Timeout time.Duration

	// MaxRunes caps the reply length. Zero means no cap.
	MaxRunes int

	Logger *slog.Logger
}

// DefaultLLMTimeout bounds a completion on a Pi-class CPU.
const DefaultLLMTimeout = 10 * time.Second

// DefaultLLMConfig matches the BitNet b1.58 2B build.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Binary:      "run_inference",
		Model:       "models/ggml-model-i2_s.gguf",
		MaxTokens:   50,
		Threads:     4,
		Temperature: 0.7,
		Timeout:     DefaultLLMTimeout,
		MaxRunes:    80,
	}
}

// LLM runs a local language model binary once per reply.
type LLM struct {
	cfg    LLMConfig
	logger *slog.Logger
}

// NewLLM checks that the binary and model exist.
func NewLLM(cfg LLMConfig) (*LLM, error) {
	def := DefaultLLMConfig()
	if cfg.Binary == "" {
		cfg.Binary = def.Binary
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Threads <= 0 {
		cfg.Threads = def.Threads
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if err := proc.Require(cfg.Binary); err != nil {
		return nil, WrapError(providerLLM, err)
	}
	if _, err := os.Stat(cfg.Model); err != nil {
		return nil, WrapError(providerLLM, fmt.Errorf("model: %w", err))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Component("reply.llm")
	}
	return &LLM{cfg: cfg, logger: logger}, nil
}

// Name returns "llm".
func (l *LLM) Name() string { return providerLLM }

// Reply completes req.Prompt() and extracts the robot's line.
func (l *LLM) Reply(ctx context.Context, req Request) (string, error) {
	if req.Transcript == "" {
		return "", WrapError(providerLLM, ErrEmptyTranscript)
	}

	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	start := time.Now()
	out, err := proc.Run(ctx, l.argv(req.Prompt()), nil)
	if err != nil {
		return "", WrapError(providerLLM, err)
	}

	text := Extract(string(out))
	if text == "" {
		return "", WrapError(providerLLM, ErrEmptyReply)
	}
	if l.cfg.MaxRunes > 0 {
		text = Truncate(text, l.cfg.MaxRunes)
	}
	l.logger.Debug("completion", "latency_ms", time.Since(start).Milliseconds(), "chars", len([]rune(text)))
	return text, nil
}

func (l *LLM) argv(prompt string) []string {
	argv := []string{
		l.cfg.Binary,
		"-m", l.cfg.Model,
		"-p", prompt,
		"-n", strconv.Itoa(l.cfg.MaxTokens),
		"-t", strconv.Itoa(l.cfg.Threads),
	}
	if l.cfg.Temperature > 0 {
		argv = append(argv, "-temp", strconv.FormatFloat(l.cfg.Temperature, 'f', -1, 64))
	}
	return append(argv, l.cfg.Args...)
}

var _ Generator = (*LLM)(nil)
