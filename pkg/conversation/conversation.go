// Package conversation runs one listen-think-speak exchange with the owner.
//
// A turn reads the latest perception snapshot, classifies the owner's
// expression, records and transcribes speech, asks a reply generator and
// speaks the answer. Every step has its own deadline and every failure is
// absorbed: the robot always says something.
//
// Example usage:
//
//	c := conversation.New(slot, classifier, whisper, chain, speaker,
//	    conversation.WithRecordWindow(5*time.Second),
//	    conversation.OnTurn(hub.PublishTurn),
//	)
//	for ctx.Err() == nil {
//	    turn := c.Turn(ctx)
//	    log.Println(turn.Reply)
//	}
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sptcnl/momo/pkg/emotion"
	"github.com/sptcnl/momo/pkg/perception"
	"github.com/sptcnl/momo/pkg/reply"
	"github.com/sptcnl/momo/pkg/stt"
	"github.com/sptcnl/momo/pkg/tts"
)

// Step names used in logs and metrics.
const (
	StepEmotion    = "emotion"
	StepTranscribe = "transcribe"
	StepReply      = "reply"
	StepSpeak      = "speak"
)

// Turn is one finished exchange. Turns share no state.
type Turn struct {
	ID         uuid.UUID           `json:"id"`
	Transcript string              `json:"transcript"`
	Emotion    emotion.Label       `json:"emotion"`
	Snapshot   perception.Snapshot `json:"snapshot"`
	Reply      string              `json:"reply"`
	// Fallback is set when the reply did not come from the primary generator.
	Fallback bool `json:"fallback"`
	// Failed lists the steps that failed.
	Failed   []string  `json:"failed,omitempty"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}

// Duration returns how long the turn took.
func (t Turn) Duration() time.Duration {
	return t.Finished.Sub(t.Started)
}

// SnapshotReader returns the most recent perception snapshot.
// *perception.Slot implements it.
type SnapshotReader interface {
	Load() perception.Snapshot
}

// Coordinator sequences the steps of a turn. Any collaborator may be nil:
// no classifier means neutral, no transcriber means silence, no generator
// means the fallback answers, no speaker means the reply is only recorded.
type Coordinator struct {
	snapshots  SnapshotReader
	classifier emotion.Classifier
	stt        stt.Transcriber
	generator  reply.Generator
	speaker    tts.Speaker
	config     *Config
	logger     *slog.Logger
}

// New creates a coordinator.
func New(snapshots SnapshotReader, classifier emotion.Classifier, transcriber stt.Transcriber,
	generator reply.Generator, speaker tts.Speaker, opts ...Option) *Coordinator {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.Fallback == nil {
		cfg.Fallback = &reply.Rules{Silence: cfg.FallbackReply, NearCM: reply.DefaultNearCM}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Coordinator{
		snapshots:  snapshots,
		classifier: classifier,
		stt:        transcriber,
		generator:  generator,
		speaker:    speaker,
		config:     cfg,
		logger:     cfg.Logger,
	}
}

// Turn runs one exchange. It never fails; step errors are logged, counted
// and recorded in Turn.Failed.
func (c *Coordinator) Turn(ctx context.Context) Turn {
	t := Turn{
		ID:      uuid.New(),
		Started: c.config.Now(),
	}
	logger := c.logger.With("turn", t.ID.String())

	if c.snapshots != nil {
		t.Snapshot = c.snapshots.Load()
	}

	label, err := c.classify(ctx)
	if err != nil {
		c.failed(ctx, logger, &t, StepEmotion, err)
		label = emotion.Neutral
	}
	t.Emotion = label

	text, err := c.transcribe(ctx)
	if err != nil {
		c.failed(ctx, logger, &t, StepTranscribe, err)
		text = ""
	}
	t.Transcript = text

	req := reply.NewRequest(t.Transcript, t.Emotion, t.Snapshot, t.Started)
	t.Reply, t.Fallback = c.reply(ctx, logger, &t, req)

	if err := c.speak(ctx, t.Reply); err != nil {
		c.failed(ctx, logger, &t, StepSpeak, err)
	}

	t.Finished = c.config.Now()
	c.config.Metrics.TurnCompleted(ctx, t.Duration(), t.Fallback)
	logger.Info("turn",
		"emotion", t.Emotion,
		"face", t.Snapshot.FaceDetected,
		"transcript", t.Transcript,
		"reply", t.Reply,
		"fallback", t.Fallback,
		"duration_ms", t.Duration().Milliseconds(),
	)

	if c.config.OnTurn != nil {
		c.config.OnTurn(t)
	}
	return t
}

func (c *Coordinator) classify(ctx context.Context) (label emotion.Label, err error) {
	if c.classifier == nil {
		return emotion.Neutral, nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.config.EmotionTimeout)
	defer cancel()

	err = guard(func() error {
		label, err = c.classifier.Classify(ctx)
		return err
	})
	if err != nil {
		return "", err
	}
	if label == "" {
		return emotion.Neutral, nil
	}
	return label, nil
}

func (c *Coordinator) transcribe(ctx context.Context) (text string, err error) {
	if c.stt == nil {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.config.RecordWindow+c.config.STTTimeout)
	defer cancel()

	err = guard(func() error {
		text, err = c.stt.Transcribe(ctx, c.config.RecordWindow)
		return err
	})
	return strings.TrimSpace(text), err
}

// reply asks the primary generator, then the fallback, then settles for
// the fallback phrase. The result is never empty.
func (c *Coordinator) reply(ctx context.Context, logger *slog.Logger, t *Turn, req reply.Request) (string, bool) {
	if c.generator != nil && req.Transcript != "" {
		text, err := c.generate(ctx, c.generator, req)
		if err == nil {
			return text, false
		}
		c.failed(ctx, logger, t, StepReply, err)
	}

	text, err := c.generate(ctx, c.config.Fallback, req)
	if err != nil {
		logger.Warn("fallback reply failed", "error", err)
		text = c.lastResort()
	}
	return text, true
}

func (c *Coordinator) generate(ctx context.Context, g reply.Generator, req reply.Request) (text string, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.ReplyTimeout)
	defer cancel()

	err = guard(func() error {
		text, err = g.Reply(ctx, req)
		return err
	})
	if err != nil {
		return "", err
	}
	text = c.truncate(text)
	if text == "" {
		return "", reply.WrapError(g.Name(), reply.ErrEmptyReply)
	}
	return text, nil
}

func (c *Coordinator) truncate(s string) string {
	s = strings.TrimSpace(s)
	if c.config.MaxReplyRunes > 0 {
		s = reply.Truncate(s, c.config.MaxReplyRunes)
	}
	return s
}

func (c *Coordinator) lastResort() string {
	if s := c.truncate(c.config.FallbackReply); s != "" {
		return s
	}
	return reply.ReplySilence
}

func (c *Coordinator) speak(ctx context.Context, text string) error {
	if c.speaker == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.config.SpeakTimeout)
	defer cancel()

	return guard(func() error {
		return c.speaker.Speak(ctx, text)
	})
}

func (c *Coordinator) failed(ctx context.Context, logger *slog.Logger, t *Turn, step string, err error) {
	t.Failed = append(t.Failed, step)
	c.config.Metrics.StepFailed(ctx, step)
	if errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("step timed out", "step", step, "error", err)
		return
	}
	logger.Warn("step failed", "step", step, "error", err)
}

// guard turns a panic in a collaborator into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
