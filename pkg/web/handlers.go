package web

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sptcnl/momo/pkg/emotion"
	"github.com/sptcnl/momo/pkg/reply"
)

// maxChatRunes bounds the text accepted by /api/chat.
const maxChatRunes = 500

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleStatus returns uptime, clients, the latest snapshot and turn.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

// handleTurns returns recent turns, oldest first.
func (s *Server) handleTurns(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"turns": s.Turns()})
}

// handleChat answers a robot's transcript: it fills in the emotion when the
// robot did not send one, asks the generator and falls back to the rule
// table. The response always carries a reply.
func (s *Server) handleChat(c *fiber.Ctx) error {
	if s.generator == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "chat is not enabled on this server",
		})
	}

	var body reply.ChatRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	ctx := c.UserContext()
	req := body.Request(time.Now())
	req.Transcript = reply.Truncate(req.Transcript, maxChatRunes)
	if req.Emotion == "" {
		req.Emotion = s.classify(ctx)
	}

	text, fallback := s.generate(ctx, req)
	s.logger.Info("chat",
		"transcript", req.Transcript,
		"emotion", req.Emotion,
		"face", req.FaceDetected,
		"reply", text,
		"fallback", fallback,
	)
	s.speak(text)

	return c.JSON(reply.ChatResponse{
		Emotion: string(req.Emotion),
		Reply:   text,
	})
}

func (s *Server) classify(ctx context.Context) emotion.Label {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	label, err := s.classifier.Classify(ctx)
	if err != nil || label == "" {
		if err != nil {
			s.logger.Debug("emotion classification failed", "error", err)
		}
		return emotion.Neutral
	}
	return label
}

func (s *Server) generate(ctx context.Context, req reply.Request) (string, bool) {
	if req.Transcript != "" {
		gctx, cancel := context.WithTimeout(ctx, s.replyTimeout)
		text, err := s.generator.Reply(gctx, req)
		cancel()
		if err == nil && text != "" {
			return text, false
		}
		if err != nil && !errors.Is(err, reply.ErrEmptyReply) {
			s.logger.Warn("reply generation failed", "error", err)
		}
	}

	text, err := s.fallback.Reply(ctx, req)
	if err != nil || text == "" {
		return reply.ReplySilence, true
	}
	return text, true
}
