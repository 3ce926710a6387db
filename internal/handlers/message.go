package handlers

import (
	"secretsanta/server/internal/models"

	"github.com/gofiber/fiber/v2"
)

// SendMessageRequest represents send message request body
type SendMessageRequest struct {
	Text string `json:"text"`
}

// ReactRequest represents reaction toggle request body
type ReactRequest struct {
	Emoji string `json:"emoji"`
}

// UpdateStatusRequest represents status update request body
type UpdateStatusRequest struct {
	Status models.MessageStatus `json:"status"`
}

// GetMessages returns the full history of a room
func (h *Handler) GetMessages(c *fiber.Ctx) error {
	list, err := h.chat.ListMessages(c.UserContext(), c.Params("roomId"), userID(c))
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    list,
	})
}

// SendMessage posts a text message to a room
func (h *Handler) SendMessage(c *fiber.Ctx) error {
	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	view, err := h.chat.SendMessage(c.UserContext(), c.Params("roomId"), userID(c), req.Text)
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    view,
	})
}

// EditMessage replaces the text of the caller's message
func (h *Handler) EditMessage(c *fiber.Ctx) error {
	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	view, err := h.chat.EditMessage(c.UserContext(), c.Params("messageId"), userID(c), req.Text)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    view,
	})
}

// DeleteMessage soft deletes the caller's message
func (h *Handler) DeleteMessage(c *fiber.Ctx) error {
	if err := h.chat.DeleteMessage(c.UserContext(), c.Params("messageId"), userID(c)); err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Message deleted",
	})
}

// ToggleReaction adds or removes the caller's emoji
func (h *Handler) ToggleReaction(c *fiber.Ctx) error {
	var req ReactRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	reactions, err := h.chat.React(c.UserContext(), c.Params("messageId"), userID(c), req.Emoji)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    reactions,
	})
}

// UpdateMessageStatus updates the delivery status of a message
func (h *Handler) UpdateMessageStatus(c *fiber.Ctx) error {
	var req UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	// Validate status
	if !req.Status.Valid() {
		return badRequest(c, "Invalid status. Must be: sending, sent, delivered, or failed")
	}

	if err := h.chat.UpdateStatus(c.UserContext(), c.Params("messageId"), userID(c), req.Status); err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Message status updated",
	})
}
