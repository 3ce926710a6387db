package handlers

import "github.com/gofiber/fiber/v2"

// SetPseudonymRequest represents pseudonym change request body
type SetPseudonymRequest struct {
	Name string `json:"name"`
}

// GetPseudonym returns the caller's name in a room
func (h *Handler) GetPseudonym(c *fiber.Ctx) error {
	name, err := h.chat.GetPseudonym(c.UserContext(), c.Params("roomId"), userID(c))
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"pseudonym": name},
	})
}

// SetPseudonym renames the caller within a room
func (h *Handler) SetPseudonym(c *fiber.Ctx) error {
	var req SetPseudonymRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	name, err := h.chat.SetPseudonym(c.UserContext(), c.Params("roomId"), userID(c), req.Name)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"pseudonym": name},
	})
}
