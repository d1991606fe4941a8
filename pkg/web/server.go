// Package web is the HTTP and websocket front end of the voice assistant.
package web

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/teslashibe/go-retail-voice/pkg/hub"
	"github.com/teslashibe/go-retail-voice/pkg/pipeline"
	"github.com/teslashibe/go-retail-voice/pkg/session"
)

// ServiceName is reported by GET /.
const ServiceName = "retail-voice"

// DefaultBodyLimit bounds uploaded audio.
const DefaultBodyLimit = 25 << 20

// Runner processes one utterance. *pipeline.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input) *pipeline.State
}

// Config configures a Server.
type Config struct {
	Version string
	Runner  Runner

	// Sessions carries the off-topic counter between requests. Nil disables
	// sessions: every request starts from zero and no sessionId is issued.
	Sessions session.Store

	// Gatherer backs GET /metrics. Nil omits the route.
	Gatherer prometheus.Gatherer

	BodyLimit int
	Logger    *slog.Logger
}

// Server is the fiber application plus the live turn feed.
type Server struct {
	app    *fiber.App
	cfg    Config
	turns  *hub.Hub
	logger *slog.Logger

	metrics fasthttp.RequestHandler
}

// NewServer builds the routes.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = DefaultBodyLimit
	}
	logger := cfg.Logger.With("component", "web")

	s := &Server{
		cfg:    cfg,
		turns:  hub.New("turns", cfg.Logger),
		logger: logger,
	}

	app := fiber.New(fiber.Config{
		AppName:               ServiceName,
		DisableStartupMessage: true,
		BodyLimit:             cfg.BodyLimit,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET, POST, OPTIONS",
		AllowHeaders: "Content-Type, Authorization",
	}))

	app.Get("/", s.handleRoot)
	app.Get("/health", s.handleHealth)
	app.Post("/voice", s.handleVoice)
	app.Post("/text", s.handleText)

	if cfg.Gatherer != nil {
		s.metrics = fasthttpadaptor.NewFastHTTPHandler(
			promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
		app.Get("/metrics", s.handleMetrics)
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/turns", websocket.New(s.handleTurnsWS))
	app.Get("/ws/voice", websocket.New(s.handleVoiceWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

// Turns returns the live turn feed.
func (s *Server) Turns() *hub.Hub { return s.turns }

// Start runs the turn hub and listens on addr until the listener fails or
// Shutdown is called. The hub stops when ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.turns.Run(ctx)
	s.logger.Info("listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
