package stt

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sptcnl/momo/internal/log"
	"github.com/sptcnl/momo/internal/proc"
)

const providerWhisper = "whisper"

// WhisperConfig configures the arecord + whisper.cpp pipeline.
type WhisperConfig struct {
	// RecordCommand records a WAV file. {seconds} and {output} are
	// substituted per turn.
	RecordCommand []string

	Binary   string // whisper-cli
	Model    string // ggml model file
	Language string
	Threads  int

	TmpDir string
	Logger *slog.Logger
}

// DefaultWhisperConfig records 16 kHz mono with arecord and transcribes
// Korean with the base model.
func DefaultWhisperConfig() WhisperConfig {
	return WhisperConfig{
		RecordCommand: []string{"arecord", "-q", "-d", "{seconds}", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "wav", "{output}"},
		Binary:        "whisper-cli",
		Model:         "models/ggml-base.bin",
		Language:      "ko",
		Threads:       4,
	}
}

// Whisper records the microphone, then runs whisper.cpp on the recording.
type Whisper struct {
	cfg    WhisperConfig
	logger *slog.Logger
}

// NewWhisper checks that the recorder, whisper binary and model exist.
func NewWhisper(cfg WhisperConfig) (*Whisper, error) {
	if len(cfg.RecordCommand) == 0 || !proc.HasPlaceholder(cfg.RecordCommand, "output") {
		return nil, ErrNoRecorder
	}
	if cfg.Model == "" {
		return nil, ErrNoModel
	}
	if cfg.Binary == "" {
		cfg.Binary = DefaultWhisperConfig().Binary
	}
	if cfg.Threads <= 0 {
		cfg.Threads = DefaultWhisperConfig().Threads
	}
	if err := proc.Require(cfg.RecordCommand[0]); err != nil {
		return nil, WrapError(providerWhisper, err)
	}
	if err := proc.Require(cfg.Binary); err != nil {
		return nil, WrapError(providerWhisper, err)
	}
	if _, err := os.Stat(cfg.Model); err != nil {
		return nil, WrapError(providerWhisper, fmt.Errorf("model: %w", err))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Component("stt")
	}
	return &Whisper{cfg: cfg, logger: logger}, nil
}

// Transcribe records for window (rounded up to whole seconds) and returns
// the recognized text.
func (w *Whisper) Transcribe(ctx context.Context, window time.Duration) (string, error) {
	wav := proc.TempPath(w.cfg.TmpDir, "momo-rec", ".wav")
	defer os.Remove(wav)

	start := time.Now()
	rec := proc.Expand(w.cfg.RecordCommand, map[string]string{
		"seconds": strconv.Itoa(seconds(window)),
		"output":  wav,
	})
	if _, err := proc.Run(ctx, rec, nil); err != nil {
		return "", WrapError(providerWhisper, fmt.Errorf("record: %w", err))
	}
	recorded := time.Since(start)

	args := []string{w.cfg.Binary, "-m", w.cfg.Model, "-f", wav, "-t", strconv.Itoa(w.cfg.Threads), "-nt"}
	if w.cfg.Language != "" {
		args = append(args, "-l", w.cfg.Language)
	}
	out, err := proc.Run(ctx, args, nil)
	if err != nil {
		return "", WrapError(providerWhisper, fmt.Errorf("transcribe: %w", err))
	}

	text := ParseTranscript(string(out))
	w.logger.Debug("transcribed",
		"chars", len([]rune(text)),
		"record_ms", recorded.Milliseconds(),
		"total_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

var (
	timestampPrefix = regexp.MustCompile(`^\[\d{2}:\d{2}:\d{2}[.,]\d{3} --> \d{2}:\d{2}:\d{2}[.,]\d{3}\]`)
	markerLine      = regexp.MustCompile(`^\[[A-Z_ ]+\]$`)
)

// ParseTranscript extracts the spoken text from whisper.cpp output. Each
// line may start with a "[from --> to]" timestamp; lines that are only a
// marker such as [BLANK_AUDIO] yield nothing.
func ParseTranscript(out string) string {
	var parts []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(timestampPrefix.ReplaceAllString(line, ""))
		if markerLine.MatchString(line) {
			continue
		}
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}

func seconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

var _ Transcriber = (*Whisper)(nil)
