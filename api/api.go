package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/parlorhq/parlor/pkg/auth"
	"github.com/parlorhq/parlor/pkg/flow"
)

// Server is the API server for chatting and managing session memory.
type Server struct {
	config Config
	engine *flow.Engine
	users  *auth.Repo
	logger *zap.Logger
	app    *fiber.App
}

// NewServer creates a new API server. The engine and user repository are
// injected to allow sharing with the CLI.
func NewServer(config Config, engine *flow.Engine, users *auth.Repo, logger *zap.Logger) (*Server, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if config.MaxPromptChars <= 0 {
		config.MaxPromptChars = DefaultMaxPromptChars
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		engine: engine,
		users:  users,
		logger: logger,
		app:    app,
	}

	app.Get("/health", s.handleHealth)

	app.Use(s.apiKeyMiddleware)

	app.Post("/auth/login", s.handleLogin)

	guarded := app.Group("", s.bearerMiddleware)
	guarded.Post("/chat", s.handleChat)
	guarded.Post("/sessions/new", s.handleNewSession)
	guarded.Get("/sessions", s.handleListSessions)
	guarded.Get("/sessions/:id", s.handleGetSession)
	guarded.Post("/sessions/:id/reset", s.handleResetSession)
	guarded.Delete("/sessions/:id", s.handleDeleteSession)
	guarded.Get("/sessions/:id/summary", s.handleGetSummary)
	guarded.Put("/sessions/:id/summary", s.handlePutSummary)
	guarded.Post("/sessions/:id/summary/reset", s.handleResetSummary)
	guarded.Get("/sessions/:id/memory", s.handleGetMemory)
	guarded.Put("/sessions/:id/memory", s.handlePutMemory)
	guarded.Post("/sessions/:id/memory/reset", s.handleResetMemory)

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
