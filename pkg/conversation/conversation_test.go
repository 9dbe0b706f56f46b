package conversation_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sptcnl/momo/internal/log"
	"github.com/sptcnl/momo/pkg/conversation"
	"github.com/sptcnl/momo/pkg/emotion"
	"github.com/sptcnl/momo/pkg/perception"
	"github.com/sptcnl/momo/pkg/reply"
	"github.com/sptcnl/momo/pkg/stt"
	"github.com/sptcnl/momo/pkg/tts"
)

func slotWith(s perception.Snapshot) *perception.Slot {
	slot := perception.NewSlot()
	slot.Store(s)
	return slot
}

func TestTurn(t *testing.T) {
	snap := perception.Snapshot{FaceDetected: true, FaceCount: 1, DistanceCM: 120, HasDistance: true}
	classifier := &emotion.Mock{Label: emotion.Happy}
	transcriber := stt.NewMock(" 안녕 모모 ")
	gen := reply.NewMock("반가워요!")
	speaker := tts.NewMock()

	var published []conversation.Turn
	c := conversation.New(slotWith(snap), classifier, transcriber, gen, speaker,
		conversation.WithLogger(log.Discard()),
		conversation.WithRecordWindow(3*time.Second),
		conversation.OnTurn(func(turn conversation.Turn) { published = append(published, turn) }),
	)

	turn := c.Turn(context.Background())

	assert.Equal(t, "안녕 모모", turn.Transcript)
	assert.Equal(t, emotion.Happy, turn.Emotion)
	assert.Equal(t, snap, turn.Snapshot)
	assert.Equal(t, "반가워요!", turn.Reply)
	assert.False(t, turn.Fallback)
	assert.Empty(t, turn.Failed)
	assert.False(t, turn.Finished.Before(turn.Started))

	require.Equal(t, 1, transcriber.CallCount())
	assert.Equal(t, 3*time.Second, transcriber.Calls()[0].Window)

	reqs := gen.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "안녕 모모", reqs[0].Transcript)
	assert.Equal(t, emotion.Happy, reqs[0].Emotion)
	assert.True(t, reqs[0].FaceDetected)
	assert.True(t, reqs[0].HasDistance)

	require.Equal(t, 1, speaker.CallCount("Speak"))
	assert.Equal(t, "반가워요!", speaker.LastCall().Text)

	require.Len(t, published, 1)
	assert.Equal(t, turn.ID, published[0].ID)
}

func TestTurnSilence(t *testing.T) {
	gen := reply.NewMock("should not be asked")
	speaker := tts.NewMock()
	c := conversation.New(perception.NewSlot(), &emotion.Mock{}, stt.NewMock(""), gen, speaker,
		conversation.WithLogger(log.Discard()),
	)

	turn := c.Turn(context.Background())

	assert.Empty(t, turn.Transcript)
	assert.True(t, turn.Fallback)
	assert.Equal(t, "woof woof", turn.Reply)
	assert.Equal(t, 0, gen.CallCount(), "primary generator skipped on silence")
	require.Equal(t, 1, speaker.CallCount("Speak"), "speaks exactly once")
	assert.NotEmpty(t, speaker.LastCall().Text)
}

func TestTurnGeneratorFailure(t *testing.T) {
	tests := []struct {
		name string
		gen  reply.Generator
		opts []conversation.Option
	}{
		{
			name: "error",
			gen:  reply.WithError(errors.New("model crashed")),
		},
		{
			name: "timeout",
			gen:  reply.WithLatency(reply.NewMock("too late"), time.Second),
			opts: []conversation.Option{conversation.WithTimeouts(0, 0, 30*time.Millisecond, 0)},
		},
		{
			name: "empty",
			gen:  reply.NewMock("   "),
		},
		{
			name: "panic",
			gen: &reply.Mock{ReplyFunc: func(context.Context, reply.Request) (string, error) {
				panic("boom")
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			speaker := tts.NewMock()
			opts := append([]conversation.Option{conversation.WithLogger(log.Discard())}, tt.opts...)
			c := conversation.New(perception.NewSlot(), &emotion.Mock{}, stt.NewMock("너무 사랑해"), tt.gen, speaker, opts...)

			start := time.Now()
			turn := c.Turn(context.Background())

			assert.Less(t, time.Since(start), time.Second)
			assert.True(t, turn.Fallback)
			assert.Equal(t, reply.ReplyAffection, turn.Reply)
			assert.Contains(t, turn.Failed, conversation.StepReply)
			require.Equal(t, 1, speaker.CallCount("Speak"))
			assert.Equal(t, reply.ReplyAffection, speaker.LastCall().Text)
		})
	}
}

func TestTurnFallbackFailure(t *testing.T) {
	speaker := tts.NewMock()
	c := conversation.New(perception.NewSlot(), nil, stt.NewMock("hello"),
		reply.WithError(errors.New("down")), speaker,
		conversation.WithLogger(log.Discard()),
		conversation.WithFallback(reply.WithError(errors.New("also down"))),
		conversation.WithFallbackReply("멍멍"),
	)

	turn := c.Turn(context.Background())

	assert.True(t, turn.Fallback)
	assert.Equal(t, "멍멍", turn.Reply)
	assert.Equal(t, "멍멍", speaker.LastCall().Text)
}

func TestTurnEmotionFailure(t *testing.T) {
	gen := reply.NewMock("ok")
	c := conversation.New(perception.NewSlot(), emotion.WithError(errors.New("no face")),
		stt.NewMock("hi"), gen, tts.NewMock(),
		conversation.WithLogger(log.Discard()),
	)

	turn := c.Turn(context.Background())

	assert.Equal(t, emotion.Neutral, turn.Emotion)
	assert.Equal(t, []string{conversation.StepEmotion}, turn.Failed)
	assert.Equal(t, emotion.Neutral, gen.Requests()[0].Emotion)
	assert.False(t, turn.Fallback)
}

func TestTurnEmotionTimeout(t *testing.T) {
	slow := &emotion.Mock{ClassifyFunc: func(ctx context.Context) (emotion.Label, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	c := conversation.New(perception.NewSlot(), slow, stt.NewMock("hi"), reply.NewMock("ok"), tts.NewMock(),
		conversation.WithLogger(log.Discard()),
		conversation.WithTimeouts(20*time.Millisecond, 0, 0, 0),
	)

	turn := c.Turn(context.Background())

	assert.Equal(t, emotion.Neutral, turn.Emotion)
	assert.Contains(t, turn.Failed, conversation.StepEmotion)
}

func TestTurnTranscribeFailure(t *testing.T) {
	gen := reply.NewMock("unused")
	speaker := tts.NewMock()
	c := conversation.New(perception.NewSlot(), nil, stt.WithError(errors.New("mic unplugged")), gen, speaker,
		conversation.WithLogger(log.Discard()),
	)

	turn := c.Turn(context.Background())

	assert.Empty(t, turn.Transcript)
	assert.Contains(t, turn.Failed, conversation.StepTranscribe)
	assert.True(t, turn.Fallback)
	assert.Equal(t, 0, gen.CallCount())
	assert.Equal(t, 1, speaker.CallCount("Speak"))
}

func TestTurnTranscribeDeadline(t *testing.T) {
	var deadline time.Time
	transcriber := &stt.Mock{TranscribeFunc: func(ctx context.Context, _ time.Duration) (string, error) {
		deadline, _ = ctx.Deadline()
		return "hi", nil
	}}
	c := conversation.New(perception.NewSlot(), nil, transcriber, nil, nil,
		conversation.WithLogger(log.Discard()),
		conversation.WithRecordWindow(2*time.Second),
		conversation.WithTimeouts(0, 10*time.Second, 0, 0),
	)

	start := time.Now()
	c.Turn(context.Background())

	assert.WithinDuration(t, start.Add(12*time.Second), deadline, time.Second)
}

func TestTurnSpeakFailure(t *testing.T) {
	speaker := tts.WithError(errors.New("no audio device"))
	var hooked bool
	c := conversation.New(perception.NewSlot(), nil, stt.NewMock("hi"), reply.NewMock("ok"), speaker,
		conversation.WithLogger(log.Discard()),
		conversation.OnTurn(func(conversation.Turn) { hooked = true }),
	)

	turn := c.Turn(context.Background())

	assert.Equal(t, "ok", turn.Reply)
	assert.Equal(t, []string{conversation.StepSpeak}, turn.Failed)
	assert.True(t, hooked, "turn completes after a speech failure")
}

func TestTurnTruncatesReply(t *testing.T) {
	long := strings.Repeat("멍", 100)
	speaker := tts.NewMock()
	c := conversation.New(perception.NewSlot(), nil, stt.NewMock("hi"), reply.NewMock(long), speaker,
		conversation.WithLogger(log.Discard()),
		conversation.WithMaxReplyRunes(80),
	)

	turn := c.Turn(context.Background())

	assert.Equal(t, 80, utf8.RuneCountInString(turn.Reply))
	assert.True(t, utf8.ValidString(speaker.LastCall().Text))
	assert.Equal(t, turn.Reply, speaker.LastCall().Text)
}

func TestTurnWithoutCollaborators(t *testing.T) {
	c := conversation.New(nil, nil, nil, nil, nil, conversation.WithLogger(log.Discard()))

	turn := c.Turn(context.Background())

	assert.Equal(t, emotion.Neutral, turn.Emotion)
	assert.True(t, turn.Fallback)
	assert.Equal(t, "woof woof", turn.Reply)
	assert.Empty(t, turn.Failed)
}

func TestNilOptionsKeepDefaults(t *testing.T) {
	c := conversation.New(perception.NewSlot(), &emotion.Mock{}, stt.NewMock("hi"), reply.NewMock("hello"), tts.NewMock(),
		conversation.WithLogger(nil),
		conversation.WithMetrics(nil),
	)

	var turn conversation.Turn
	require.NotPanics(t, func() { turn = c.Turn(context.Background()) })
	assert.Equal(t, "hello", turn.Reply)
	assert.False(t, turn.Fallback)
}

func TestTurnsAreIndependent(t *testing.T) {
	transcripts := []string{"hi", ""}
	var i int
	transcriber := &stt.Mock{TranscribeFunc: func(context.Context, time.Duration) (string, error) {
		s := transcripts[i]
		i++
		return s, nil
	}}
	c := conversation.New(perception.NewSlot(), nil, transcriber, reply.NewMock("ok"), tts.NewMock(),
		conversation.WithLogger(log.Discard()),
	)

	first := c.Turn(context.Background())
	second := c.Turn(context.Background())

	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, first.Fallback)
	assert.True(t, second.Fallback)
	assert.Empty(t, second.Transcript)
}
