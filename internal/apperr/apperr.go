package apperr

import (
	"errors"

	"secretsanta/server/internal/encryption"

	"github.com/gofiber/fiber/v2"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid state")
	ErrNameConflict = errors.New("name already taken")
	ErrInvalidInput = errors.New("invalid input")
)

// Status maps an error from the chat core to an HTTP status code.
func Status(err error) int {
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrNameConflict):
		return fiber.StatusConflict
	case errors.Is(err, ErrInvalidState):
		return fiber.StatusGone
	case errors.Is(err, encryption.ErrIntegrity), errors.Is(err, encryption.ErrDecryption):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// Message returns a client safe description. Internal errors are not echoed.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return err.Error()
	case errors.Is(err, ErrForbidden):
		return "You are not allowed to do this"
	case errors.Is(err, ErrNotFound):
		return "Not found"
	case errors.Is(err, ErrNameConflict):
		return "That name is already used in this room"
	case errors.Is(err, ErrInvalidState):
		return "Message has been deleted"
	case errors.Is(err, encryption.ErrIntegrity), errors.Is(err, encryption.ErrDecryption):
		return "Message could not be decrypted"
	default:
		return "Internal server error"
	}
}
