package web

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/hub"
	"github.com/teslashibe/go-gaze/pkg/pipeline"
	"github.com/teslashibe/go-gaze/pkg/store"
)

func (s *Server) handleStatus(c *fiber.Ctx) error {
	var st Status
	if s.StatusFn != nil {
		st = s.StatusFn()
	}
	st.Clients = s.streamHub.ClientCount()
	return c.JSON(st)
}

// MarkerRequest is the body for POST /api/marker.
type MarkerRequest struct {
	Label string `json:"label"`
}

func (s *Server) handleMarker(c *fiber.Ctx) error {
	var req MarkerRequest
	if err := c.BodyParser(&req); err != nil || req.Label == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "label is required",
		})
	}
	if s.MarkerFn == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "no session running",
		})
	}
	s.MarkerFn(req.Label)
	return c.JSON(fiber.Map{"label": req.Label})
}

func (s *Server) handleListProfiles(c *fiber.Ctx) error {
	profiles, err := s.store.ListCalibrations()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if profiles == nil {
		profiles = []store.CalibrationRecord{}
	}
	return c.JSON(profiles)
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil || limit < 1 {
		limit = 50
	}
	sessions, err := s.store.ListSessions(limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if sessions == nil {
		sessions = []store.SessionRecord{}
	}
	return c.JSON(sessions)
}

func (s *Server) handleGetSession(c *fiber.Ctx) error {
	rec, err := s.store.GetSession(c.Params("id"))
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "session not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(rec)
}

func (s *Server) handleSessionEvents(c *fiber.Ctx) error {
	events, err := s.store.Events(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if events == nil {
		events = []gaze.StateEvent{}
	}
	return c.JSON(events)
}

func (s *Server) handleSessionMarkers(c *fiber.Ctx) error {
	markers, err := s.store.Markers(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if markers == nil {
		markers = []pipeline.Marker{}
	}
	return c.JSON(markers)
}

// handleStreamWS attaches a viewer to the live result stream.
func (s *Server) handleStreamWS(c *websocket.Conn) {
	hub.NewClient(s.streamHub, c).Run()
}

// handleCameraWS attaches a viewer to the JPEG preview stream.
func (s *Server) handleCameraWS(c *websocket.Conn) {
	hub.NewClient(s.cameraHub, c).Run()
}
