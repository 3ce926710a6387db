package handlers

import (
	"secretsanta/server/internal/apperr"
	"secretsanta/server/internal/chat"
	"secretsanta/server/internal/logger"
	"secretsanta/server/internal/middleware"
	ws "secretsanta/server/internal/websocket"

	"github.com/gofiber/fiber/v2"
)

// Handler serves the chat HTTP API
type Handler struct {
	chat          *chat.Service
	hub           *ws.Hub
	log           *logger.Logger
	maxUploadSize int64
}

// New returns a Handler. maxUploadSize is in bytes.
func New(service *chat.Service, hub *ws.Hub, log *logger.Logger, maxUploadSize int64) *Handler {
	if maxUploadSize <= 0 {
		maxUploadSize = MaxFileSize
	}
	return &Handler{chat: service, hub: hub, log: log, maxUploadSize: maxUploadSize}
}

// Health reports liveness
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"message": "Secret Santa chat API is running",
	})
}

// fail writes the error response for err
func (h *Handler) fail(c *fiber.Ctx, err error) error {
	status := apperr.Status(err)
	if status >= fiber.StatusInternalServerError {
		h.log.Error("request failed", "method", c.Method(), "route", c.Route().Path, "error", err)
	} else if status == fiber.StatusUnprocessableEntity {
		h.log.Warn("message failed integrity check", "route", c.Route().Path, "error", err)
	}

	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   apperr.Message(err),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"error":   msg,
	})
}

func userID(c *fiber.Ctx) string {
	return middleware.GetUserID(c)
}
