package routes

import (
	"secretsanta/server/internal/handlers"
	"secretsanta/server/internal/middleware"
	"secretsanta/server/internal/utils"

	"github.com/gofiber/fiber/v2"
)

// SetupRoutes configures all application routes. sendLimiter guards the
// endpoints that create messages.
func SetupRoutes(app *fiber.App, h *handlers.Handler, tokens *utils.TokenManager, sendLimiter fiber.Handler) {
	auth := middleware.Auth(tokens)

	// API v1 group
	api := app.Group("/api/v1")

	// Health check (public)
	api.Get("/health", h.Health)

	// Room routes (protected)
	rooms := api.Group("/rooms/:roomId", auth)
	rooms.Get("/messages", middleware.RelaxedRateLimiter(), h.GetMessages)
	rooms.Post("/messages", sendLimiter, h.SendMessage)
	rooms.Post("/attachments", middleware.UploadRateLimiter(), h.SendAttachment)
	rooms.Get("/pseudonym", h.GetPseudonym)
	rooms.Put("/pseudonym", middleware.ModerateRateLimiter(), h.SetPseudonym)

	// Message routes (protected)
	messages := api.Group("/messages/:messageId", auth)
	messages.Patch("/", middleware.ModerateRateLimiter(), h.EditMessage)
	messages.Delete("/", h.DeleteMessage)
	messages.Post("/reactions", middleware.ModerateRateLimiter(), h.ToggleReaction)
	messages.Patch("/status", h.UpdateMessageStatus)
	messages.Get("/attachment", h.GetAttachment)

	// WebSocket route (protected)
	api.Get("/ws", auth, handlers.WebSocketUpgrade, h.WebSocket())

	// WebSocket stats (protected, for debugging)
	api.Get("/ws/stats", auth, h.GetWebSocketStats)
}
