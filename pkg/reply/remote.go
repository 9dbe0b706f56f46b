package reply

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sptcnl/momo/pkg/emotion"
)

const providerRemote = "remote"

// ChatPath is the remote AI service endpoint.
const ChatPath = "/api/chat"

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Text         string   `json:"text"`
	FaceDetected bool     `json:"face_detected"`
	Distance     *float64 `json:"distance,omitempty"` // cm
	Emotion      string   `json:"emotion,omitempty"`
}

// ChatResponse is the reply of POST /api/chat.
type ChatResponse struct {
	Emotion string `json:"emotion"`
	Reply   string `json:"reply"`
}

// NewChatRequest converts a Request to its wire form.
func NewChatRequest(r Request) ChatRequest {
	cr := ChatRequest{
		Text:         r.Transcript,
		FaceDetected: r.FaceDetected,
		Emotion:      string(r.Emotion),
	}
	if r.HasDistance {
		d := r.DistanceCM
		cr.Distance = &d
	}
	return cr
}

// Request converts the wire form back. An unknown or missing emotion is
// left empty so the server can classify it itself.
func (cr ChatRequest) Request(now time.Time) Request {
	r := Request{
		Transcript:   strings.TrimSpace(cr.Text),
		FaceDetected: cr.FaceDetected,
		Time:         now,
	}
	if l, ok := emotion.Normalize(cr.Emotion); ok {
		r.Emotion = l
	}
	if cr.Distance != nil {
		r.DistanceCM, r.HasDistance = *cr.Distance, true
	}
	return r
}

// Remote asks a momo AI service (momo serve-ai) for the reply. This splits
// the robot from a heavier machine that runs the model.
type Remote struct {
	*httpBackend
}

// NewRemote creates a client for the service at WithBaseURL.
func NewRemote(opts ...Option) (*Remote, error) {
	cfg := DefaultHTTPConfig()
	cfg.BaseURL = ""
	cfg.Apply(opts...)
	if cfg.BaseURL == "" {
		return nil, WrapError(providerRemote, errors.New("service URL required"))
	}
	return &Remote{newHTTPBackend(providerRemote, cfg)}, nil
}

// Name returns "remote".
func (r *Remote) Name() string { return providerRemote }

// Reply posts the request and returns the service's reply.
func (r *Remote) Reply(ctx context.Context, req Request) (string, error) {
	if req.Transcript == "" {
		return "", WrapError(providerRemote, ErrEmptyTranscript)
	}

	var resp ChatResponse
	if err := r.post(ctx, ChatPath, NewChatRequest(req), &resp); err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Reply)
	if text == "" {
		return "", WrapError(providerRemote, ErrEmptyReply)
	}
	if n := r.config.MaxRunes; n > 0 {
		text = Truncate(text, n)
	}
	r.logger.Debug("remote reply", "emotion", resp.Emotion)
	return text, nil
}

var _ Generator = (*Remote)(nil)
