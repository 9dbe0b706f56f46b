// Package web serves the momo dashboard (status REST, live websocket feed)
// and the remote reply endpoint used when the robot offloads its language
// model to another machine.
package web

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/sptcnl/momo/internal/log"
	"github.com/sptcnl/momo/pkg/conversation"
	"github.com/sptcnl/momo/pkg/emotion"
	"github.com/sptcnl/momo/pkg/hub"
	"github.com/sptcnl/momo/pkg/perception"
	"github.com/sptcnl/momo/pkg/reply"
	"github.com/sptcnl/momo/pkg/tts"
)

// DefaultHistory is how many turns the dashboard keeps.
const DefaultHistory = 50

// DefaultReplyTimeout bounds one /api/chat generation.
const DefaultReplyTimeout = 15 * time.Second

// SnapshotReader returns the latest perception snapshot.
type SnapshotReader interface {
	Load() perception.Snapshot
}

// Status is the body of GET /api/status.
type Status struct {
	Uptime   string               `json:"uptime"`
	Clients  int                  `json:"clients"`
	Snapshot *perception.Snapshot `json:"snapshot,omitempty"`
	LastTurn *conversation.Turn   `json:"last_turn,omitempty"`
	Turns    int                  `json:"turns"`
	Chat     bool                 `json:"chat"`
}

// Server is the dashboard and AI service.
type Server struct {
	app    *fiber.App
	addr   string
	events *hub.Hub
	logger *slog.Logger

	started time.Time

	snapshots    SnapshotReader
	generator    reply.Generator
	fallback     reply.Generator
	classifier   emotion.Classifier
	speaker      tts.Speaker
	replyTimeout time.Duration
	history      int

	mu    sync.RWMutex
	turns []conversation.Turn
	total int

	speaking sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithSnapshots exposes live perception on /api/status.
func WithSnapshots(r SnapshotReader) Option {
	return func(s *Server) { s.snapshots = r }
}

// WithGenerator enables POST /api/chat.
func WithGenerator(g reply.Generator) Option {
	return func(s *Server) { s.generator = g }
}

// WithClassifier sets the emotion classifier used when a chat request
// carries no emotion. Defaults to a random pick.
func WithClassifier(c emotion.Classifier) Option {
	return func(s *Server) { s.classifier = c }
}

// WithSpeaker makes the service speak every reply it sends.
func WithSpeaker(sp tts.Speaker) Option {
	return func(s *Server) { s.speaker = sp }
}

// WithReplyTimeout bounds each chat generation.
func WithReplyTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.replyTimeout = d
		}
	}
}

// WithHistory sets how many turns are kept.
func WithHistory(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.history = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates the server listening on addr.
func NewServer(addr string, opts ...Option) *Server {
	s := &Server{
		addr:         addr,
		logger:       log.Component("web"),
		started:      time.Now(),
		fallback:     reply.NewRules(),
		classifier:   emotion.NewRandom(nil),
		replyTimeout: DefaultReplyTimeout,
		history:      DefaultHistory,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = hub.New("events").WithLogger(s.logger.With("hub", "events"))
	s.events.OnConnect(s.greeting)

	app := fiber.New(fiber.Config{
		AppName:               "momo",
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/status", s.handleStatus)
	api.Get("/turns", s.handleTurns)
	api.Post("/chat", s.handleChat)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.events.Serve))

	s.app = app
	return s
}

// App returns the fiber app, for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the event hub.
func (s *Server) Hub() *hub.Hub {
	return s.events
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hubDone := make(chan struct{})
	go func() {
		s.events.Run(ctx)
		close(hubDone)
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "addr", s.addr)
		errCh <- s.app.Listen(s.addr)
	}()

	var err error
	select {
	case <-ctx.Done():
		err = s.app.ShutdownWithTimeout(5 * time.Second)
	case err = <-errCh:
	}
	cancel()
	<-hubDone
	s.speaking.Wait()
	return err
}

// PublishSnapshot sends a perception snapshot to dashboards.
func (s *Server) PublishSnapshot(snap perception.Snapshot) {
	if err := s.events.Publish(hub.EventSnapshot, snap); err != nil {
		s.logger.Debug("publish snapshot", "error", err)
	}
}

// PublishTurn records a finished turn and sends it to dashboards. It has
// the conversation.OnTurn signature.
func (s *Server) PublishTurn(t conversation.Turn) {
	s.mu.Lock()
	s.turns = append(s.turns, t)
	if len(s.turns) > s.history {
		s.turns = s.turns[len(s.turns)-s.history:]
	}
	s.total++
	s.mu.Unlock()

	if err := s.events.Publish(hub.EventTurn, t); err != nil {
		s.logger.Debug("publish turn", "error", err)
	}
}

// Turns returns the kept turns, oldest first.
func (s *Server) Turns() []conversation.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]conversation.Turn(nil), s.turns...)
}

// Watch publishes every snapshot from ch until it closes or ctx ends.
func (s *Server) Watch(ctx context.Context, ch <-chan perception.Snapshot) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-ch:
			if !ok {
				return nil
			}
			s.PublishSnapshot(snap)
		}
	}
}

func (s *Server) status() Status {
	st := Status{
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Clients: s.events.ClientCount(),
		Chat:    s.generator != nil,
	}
	if s.snapshots != nil {
		snap := s.snapshots.Load()
		st.Snapshot = &snap
	}
	s.mu.RLock()
	if n := len(s.turns); n > 0 {
		last := s.turns[n-1]
		st.LastTurn = &last
	}
	st.Turns = s.total
	s.mu.RUnlock()
	return st
}

func (s *Server) greeting() []hub.Message {
	msg, err := hub.Encode(hub.EventStatus, s.status())
	if err != nil {
		return nil
	}
	return []hub.Message{msg}
}

// speak plays text in the background; the HTTP reply does not wait.
func (s *Server) speak(text string) {
	if s.speaker == nil {
		return
	}
	s.speaking.Add(1)
	go func() {
		defer s.speaking.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.speaker.Speak(ctx, text); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("speak failed", "error", err)
		}
	}()
}
