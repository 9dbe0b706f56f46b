// Package reply turns what the owner said, plus what the robot sees, into
// something to say back.
//
// Generators are a local LLM binary, an OpenAI-compatible server, a remote
// momo AI service and a rule table. Chain tries them in order; Rules never
// fails, so a chain ending in Rules always answers.
package reply

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sptcnl/momo/pkg/emotion"
	"github.com/sptcnl/momo/pkg/perception"
)

// Sentinel errors.
var (
	// ErrEmptyTranscript is returned by generators that need something to
	// respond to.
	ErrEmptyTranscript = errors.New("reply: empty transcript")

	// ErrEmptyReply is returned when a backend produced no text.
	ErrEmptyReply = errors.New("reply: empty reply")

	// ErrProviderUnavailable is returned when no generators are configured.
	ErrProviderUnavailable = errors.New("reply: no providers available")
)

// Request is everything a generator may use for one reply. Each request
// stands alone; no history is kept between turns.
type Request struct {
	Transcript   string
	Emotion      emotion.Label
	FaceDetected bool
	DistanceCM   float64 // valid iff HasDistance
	HasDistance  bool
	Time         time.Time
}

// NewRequest builds a request from a transcript, an expression and the
// perception snapshot taken at the start of the turn.
func NewRequest(transcript string, label emotion.Label, s perception.Snapshot, now time.Time) Request {
	d, ok := s.Distance()
	return Request{
		Transcript:   strings.TrimSpace(transcript),
		Emotion:      label,
		FaceDetected: s.FaceDetected,
		DistanceCM:   d,
		HasDistance:  ok,
		Time:         now,
	}
}

// Context renders the situation tag put in front of the owner's words,
// e.g. "[happy, face:O, 45cm, 14:05]".
func (r Request) Context() string {
	face := "X"
	if r.FaceDetected {
		face = "O"
	}
	label := r.Emotion
	if label == "" {
		label = emotion.Neutral
	}
	parts := []string{string(label), "face:" + face}
	if r.HasDistance {
		parts = append(parts, fmt.Sprintf("%.0fcm", r.DistanceCM))
	}
	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}
	parts = append(parts, t.Format("15:04"))
	return "[" + strings.Join(parts, ", ") + "]"
}

// Speaker markers used in prompts.
const (
	OwnerTag = "주인:"
	RobotTag = "친구 로봇 개:"
)

// Prompt is the completion prompt for raw language models.
func (r Request) Prompt() string {
	return r.Context() + " " + OwnerTag + " " + r.Transcript + "\n" + RobotTag
}

// Generator produces a reply.
type Generator interface {
	// Name identifies the backend in logs and errors.
	Name() string

	Reply(ctx context.Context, req Request) (string, error)
}

// Truncate cuts s to at most n runes without splitting a character.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for j := range s {
		if i == n {
			return strings.TrimSpace(s[:j])
		}
		i++
	}
	return s
}

// Extract pulls the robot's line out of raw model output. Models often echo
// the prompt and then keep writing both sides of the dialogue, so the text
// after the last robot marker is taken up to the next owner marker, first
// non-empty line only.
func Extract(out string) string {
	for _, tag := range []string{RobotTag, "Robot:"} {
		if i := strings.LastIndex(out, tag); i >= 0 {
			out = out[i+len(tag):]
			break
		}
	}
	if i := strings.Index(out, OwnerTag); i >= 0 {
		out = out[:i]
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		line = strings.Trim(line, `"`)
		if line != "" {
			return line
		}
	}
	return ""
}
