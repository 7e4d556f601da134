// Package web serves the live gaze dashboard: a JSON API over the
// session store and websocket streams for results and camera preview.
package web

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/hub"
	"github.com/teslashibe/go-gaze/pkg/pipeline"
	"github.com/teslashibe/go-gaze/pkg/store"
)

// Status is the live pipeline snapshot served at /api/status.
type Status struct {
	Running    bool   `json:"running"`
	SessionID  string `json:"session_id"`
	Profile    string `json:"profile"`
	ModelHash  string `json:"model_hash"`
	AutoPaused bool   `json:"auto_paused"`
	Dropped    uint64 `json:"dropped"`
	Clients    int    `json:"clients"`
}

// Server is the dashboard server. Results are pushed in via
// PublishResult; everything else is read from the store.
type Server struct {
	app  *fiber.App
	addr string

	store *store.Store

	streamHub *hub.Hub
	cameraHub *hub.Hub

	// StatusFn supplies the live part of /api/status. Optional.
	StatusFn func() Status

	// MarkerFn receives operator annotations posted to /api/marker.
	// Optional.
	MarkerFn func(label string)
}

// NewServer wires routes and hubs. Call Start to listen.
func NewServer(addr string, st *store.Store) *Server {
	s := &Server{
		addr:      addr,
		store:     st,
		streamHub: hub.New("stream"),
		cameraHub: hub.New("camera"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-gaze dashboard",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/marker", s.handleMarker)
	api.Get("/profiles", s.handleListProfiles)
	api.Get("/sessions", s.handleListSessions)
	api.Get("/session/:id", s.handleGetSession)
	api.Get("/session/:id/events", s.handleSessionEvents)
	api.Get("/session/:id/markers", s.handleSessionMarkers)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/stream", websocket.New(s.handleStreamWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = app
	return s
}

// Start runs the hubs and listens until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	go s.streamHub.Run(ctx)
	go s.cameraHub.Run(ctx)

	log.Info("dashboard listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// PublishResult pushes one pipeline result to all stream viewers.
func (s *Server) PublishResult(r pipeline.Result) {
	if err := s.streamHub.BroadcastJSON(r); err != nil {
		log.Warn("encode stream result", "error", err)
	}
}

// PublishFrame pushes a JPEG preview frame to all camera viewers.
func (s *Server) PublishFrame(jpeg []byte) {
	s.cameraHub.BroadcastBinary(jpeg)
}

// StreamClients returns the number of connected stream viewers.
func (s *Server) StreamClients() int {
	return s.streamHub.ClientCount()
}
