// Package api is the HTTP surface of claude-web.
package api

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/liamgwallace/claude-web/internal/files"
	"github.com/liamgwallace/claude-web/internal/health"
	"github.com/liamgwallace/claude-web/internal/job"
	"github.com/liamgwallace/claude-web/internal/metrics"
	"github.com/liamgwallace/claude-web/internal/requestid"
	"github.com/liamgwallace/claude-web/internal/store"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "claude-web-api"

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	ListenAddr   string
	CORSOrigins  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Deps are the services the handlers call into.
type Deps struct {
	Projects *store.ProjectStore
	Threads  *store.ThreadStore
	Files    *files.Service
	Engine   *job.Engine
	Checker  *health.Checker
	Metrics  *metrics.Metrics // optional
}

// Server is the API Fiber application.
type Server struct {
	app    *fiber.App
	deps   Deps
	logger zerolog.Logger
	config ServerConfig
}

// NewServer creates and configures a new API server.
func NewServer(cfg ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		UnescapePath:          true,
		Immutable:             true, // params and headers outlive handlers on queued jobs
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	s := &Server{
		app:    app,
		deps:   deps,
		logger: logger.With().Str("component", "api_server").Logger(),
		config: cfg,
	}

	s.setupMiddleware(cfg)
	s.setupRoutes()

	return s
}

func isProbe(path string) bool {
	return path == "/health" || path == "/readyz" || path == "/metrics"
}

func (s *Server) setupMiddleware(cfg ServerConfig) {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(func(c *fiber.Ctx) error {
		reqID := requestid.Resolve(c.Get(requestid.Header))
		c.Set(requestid.Header, reqID)
		c.Locals(requestid.LocalsKey, reqID)
		c.SetUserContext(requestid.WithRequestID(c.UserContext(), reqID))
		return c.Next()
	})

	if cfg.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, X-Request-ID",
			AllowMethods: "GET, POST, DELETE, OPTIONS",
		}))
	}

	// Access log and request metrics.
	s.app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		code := c.Response().StatusCode()
		if err != nil {
			code = fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
		}
		elapsed := time.Since(start)

		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordHTTPRequest(c.Method(), c.Route().Path, code, elapsed)
		}
		if isProbe(c.Path()) {
			return err
		}

		s.logger.Info().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", code).
			Dur("latency", elapsed).
			Str("ip", c.IP()).
			Str("request_id", requestID(c)).
			Msg("api request")

		return err
	})
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.Liveness)
	s.app.Get("/readyz", s.Readiness)

	if s.deps.Metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.deps.Metrics.Handler()))
	}

	s.app.Get("/projects", s.ListProjects)
	s.app.Post("/project/new", s.CreateProject)
	s.app.Delete("/project/:project", s.DeleteProject)

	s.app.Get("/project/:project/threads", s.ListThreads)
	s.app.Post("/project/:project/thread/new", s.CreateThread)
	s.app.Delete("/project/:project/thread/:thread", s.DeleteThread)
	s.app.Get("/project/:project/thread/:thread/status", s.ThreadStatus)
	s.app.Get("/project/:project/thread/:thread/messages", s.Messages)
	s.app.Post("/project/:project/thread/:thread/message", s.SendMessage)

	s.app.Get("/status/:job", s.JobStatus)
	s.app.Get("/jobs", s.ListJobs)

	s.app.Get("/project/:project/files", s.FileTree)
	s.app.Get("/project/:project/file", s.ReadFile)
	s.app.Post("/project/:project/file/*", s.SaveFile)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8000"
	}

	s.logger.Info().Str("addr", addr).Msg("API server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("API server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(requestid.LocalsKey).(string); ok {
		return id
	}
	return ""
}

func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		var msg string
		switch code {
		case fiber.StatusNotFound:
			msg = "Endpoint not found"
		case fiber.StatusInternalServerError:
			msg = "Internal server error"
			logger.Error().
				Err(err).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Msg("unhandled error")
		default:
			msg = err.Error()
		}

		return c.Status(code).JSON(envelope{Success: false, Error: msg})
	}
}
