// Package web serves the facecast control API and live dashboard feeds.
package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-facecast/internal/log"
	"github.com/teslashibe/go-facecast/pkg/hub"
	"github.com/teslashibe/go-facecast/pkg/sensor"
	"github.com/teslashibe/go-facecast/pkg/session"
	"github.com/teslashibe/go-facecast/pkg/transport"
)

// Controller is the session surface the API drives.
type Controller interface {
	Snapshot() session.Snapshot
	Settings() session.Settings
	Apply(s session.Settings) error
	SetFaceTracking(enabled bool) error
	SetEyeTracking(enabled bool)
	SetTransport(enabled bool) error
}

const maxLogs = 500

// LogEntry is one line of the dashboard event log
type LogEntry struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // info, sensor, transport, settings, error
	Message string `json:"message"`
}

// Options configures the server.
type Options struct {
	Version string
	Debug   bool

	// Optional sources for /metrics.
	SenderStats func() transport.Stats
	SensorStats func() sensor.Stats
}

// Server is the HTTP control surface
type Server struct {
	app    *fiber.App
	ctrl   Controller
	opts   Options
	logger *slog.Logger

	logs   []LogEntry
	logsMu sync.RWMutex

	statusHub *hub.Hub
	logHub    *hub.Hub

	// OnSettingsChanged is called after any API request changed settings.
	OnSettingsChanged func(session.Settings)
}

// NewServer creates the server and registers its routes
func NewServer(ctrl Controller, opts Options) *Server {
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := &Server{
		ctrl:      ctrl,
		opts:      opts,
		logger:    log.Component("web"),
		logs:      make([]LogEntry, 0, maxLogs),
		statusHub: hub.New("status"),
		logHub:    hub.New("logs"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "facecast",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if opts.Debug {
		app.Use(logger.New())
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/settings", s.handleGetSettings)
	api.Put("/settings", s.handlePutSettings)
	api.Post("/tracking", s.handleTracking)
	api.Post("/eyes", s.handleEyes)
	api.Post("/transport", s.handleTransport)
	api.Get("/logs", s.handleGetLogs)

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", s.handleMetrics)

	app.Use("/ws/status", upgradeOnly)
	app.Use("/ws/logs", upgradeOnly)
	app.Get("/ws/status", websocket.New(s.handleHubWS(s.statusHub)))
	app.Get("/ws/logs", websocket.New(s.handleHubWS(s.logHub)))

	s.app = app
	return s
}

func upgradeOnly(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// App returns the Fiber app so other components can mount routes.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the feed hubs and serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	go s.statusHub.Run(ctx)
	go s.logHub.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		errc <- s.app.Listen(addr)
	}()
	s.logger.Info("web server listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(shutdownCtx)
}

// PublishSnapshot pushes a session snapshot to status subscribers
func (s *Server) PublishSnapshot(snap session.Snapshot) {
	if err := s.statusHub.BroadcastJSON("status", snap); err != nil {
		s.logger.Warn("status encode failed", "error", err)
	}
}

// AddLog adds a log entry and broadcasts it
func (s *Server) AddLog(logType, message string) {
	entry := LogEntry{
		Time:    time.Now().Format("15:04:05"),
		Type:    logType,
		Message: message,
	}

	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogs {
		s.logs = s.logs[1:]
	}
	s.logsMu.Unlock()

	s.logHub.BroadcastJSON("log", entry)
}

// Logs returns a copy of the retained log entries
func (s *Server) Logs() []LogEntry {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	out := make([]LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
