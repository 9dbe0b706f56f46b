package reply

import (
	"context"
	"fmt"
	"strings"

	"github.com/sptcnl/momo/pkg/emotion"
)

const providerRules = "rules"

// Canned replies.
const (
	ReplySilence   = "woof woof 🐶"
	ReplyNear      = "🐶 가까이 왔어! 같이 놀자!"
	ReplyFace      = "🐶 얼굴 봤어! 같이 놀자~ 😊"
	ReplyGreeting  = "🐕 안녕하세요 주인님! 오늘도 화이팅! 💕"
	ReplyAffection = "🥰 저도 주인님 사랑해요! 🐾"
)

var (
	greetingWords  = []string{"안녕", "hi", "hello"}
	affectionWords = []string{"사랑", "좋아", "귀여워"}

	moodReplies = map[emotion.Label]string{
		emotion.Happy:   "멋져요! 같이 뛰놀자! 🏃‍♂️",
		emotion.Sad:     "괜찮아요... 같이 산책 갈까요? 🥺",
		emotion.Angry:   "진정하세요... 숨 쉬세요~ 😌",
		emotion.Neutral: "네? 더 말씀해주세요! 🐶",
	}
)

// DefaultNearCM is the distance under which a visible owner counts as close.
const DefaultNearCM = 50

// Rules answers from a fixed table. It never fails, which makes it the
// last link of every chain.
type Rules struct {
	// Silence is said when the transcript is empty.
	Silence string

	// NearCM is the "come play" distance. Zero disables the proximity rule.
	NearCM float64
}

// NewRules creates a rule table with the default phrases.
func NewRules() *Rules {
	return &Rules{Silence: ReplySilence, NearCM: DefaultNearCM}
}

// Name returns "rules".
func (r *Rules) Name() string { return providerRules }

// Reply picks the first matching rule: silence, owner close by, owner in
// view, greeting, affection, then the owner's mood.
func (r *Rules) Reply(_ context.Context, req Request) (string, error) {
	text := strings.TrimSpace(req.Transcript)
	if text == "" {
		if r.Silence != "" {
			return r.Silence, nil
		}
		return ReplySilence, nil
	}

	switch {
	case req.FaceDetected && req.HasDistance && r.NearCM > 0 && req.DistanceCM < r.NearCM:
		return ReplyNear, nil
	case req.FaceDetected:
		return ReplyFace, nil
	case containsAny(strings.ToLower(text), greetingWords):
		return ReplyGreeting, nil
	case containsAny(text, affectionWords):
		return ReplyAffection, nil
	}

	if s, ok := moodReplies[req.Emotion]; ok {
		return s, nil
	}
	return fmt.Sprintf("'%s' 들었어요! 😄", text), nil
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

var _ Generator = (*Rules)(nil)
