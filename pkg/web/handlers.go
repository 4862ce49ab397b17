package web

import (
	"context"
	"encoding/json"
	"math"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-ptz/pkg/hub"
)

// SelectRequest is the body of POST /api/track: a pick point in pixels.
type SelectRequest struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// handleStatus returns the latest loop status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.tracker.Snapshot())
}

// handleSelect queues a select request for the next frame
func (s *Server) handleSelect(c *fiber.Ctx) error {
	var req SelectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid body: " + err.Error(),
		})
	}
	if req.X == nil || req.Y == nil || !finite(*req.X) || !finite(*req.Y) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "x and y are required",
		})
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()
	if err := s.tracker.Select(ctx, *req.X, *req.Y); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	s.logger.Debug("select queued", "x", *req.X, "y", *req.Y)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "queued",
		"x":      *req.X,
		"y":      *req.Y,
	})
}

// handleDrop queues a drop request
func (s *Server) handleDrop(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	if err := s.tracker.Drop(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "queued"})
}

// handleStatusWS streams status updates, starting with the current one
func (s *Server) handleStatusWS(c *websocket.Conn) {
	initial, err := json.Marshal(s.tracker.Snapshot())
	if err != nil {
		initial = nil
	}
	s.logger.Debug("status client connected", "remote", c.RemoteAddr().String())
	hub.NewClient(s.statusHub, c, initial).Run()
}

// requestContext bounds a queue request by the configured timeout.
func (s *Server) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), s.timeout)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
