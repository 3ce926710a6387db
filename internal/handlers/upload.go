package handlers

import (
	"fmt"
	"path/filepath"
	"strings"

	"secretsanta/server/internal/chat"
	"secretsanta/server/internal/models"

	"github.com/gofiber/fiber/v2"
)

// MaxFileSize is the default upload limit
const MaxFileSize = 5 * 1024 * 1024 // 5MB

var allowedExts = map[string][]string{
	models.FileTypeImage: {".jpg", ".jpeg", ".png", ".gif", ".webp"},
	models.FileTypeVideo: {".mp4", ".webm", ".mov"},
	models.FileTypeAudio: {".mp3", ".wav", ".ogg", ".m4a"},
	models.FileTypeFile:  {".pdf", ".doc", ".docx", ".txt", ".zip"},
}

// SendAttachment uploads a file into a room as a message
func (h *Handler) SendAttachment(c *fiber.Ctx) error {
	// Get file from form
	file, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "No file uploaded")
	}

	// Check file size
	if file.Size > h.maxUploadSize {
		return badRequest(c, fmt.Sprintf("File size exceeds limit of %.0fMB (uploaded: %.2fMB)",
			float64(h.maxUploadSize)/(1024*1024), float64(file.Size)/(1024*1024)))
	}

	// Validate file extension
	ext := strings.ToLower(filepath.Ext(file.Filename))
	fileType := fileTypeFor(ext)
	if fileType == "" {
		return badRequest(c, fmt.Sprintf("File extension %s not allowed", ext))
	}

	src, err := file.Open()
	if err != nil {
		return h.fail(c, fmt.Errorf("open upload: %w", err))
	}
	defer src.Close()

	view, err := h.chat.SendAttachment(c.UserContext(), c.Params("roomId"), userID(c), chat.Upload{
		Filename:    file.Filename,
		ContentType: getContentType(ext),
		FileType:    fileType,
		Size:        file.Size,
		Body:        src,
	}, c.FormValue("caption"))
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    view,
	})
}

// GetAttachment streams the attachment of a message to a room member
func (h *Handler) GetAttachment(c *fiber.Ctx) error {
	dl, err := h.chat.OpenAttachment(c.UserContext(), c.Params("messageId"), userID(c))
	if err != nil {
		return h.fail(c, err)
	}

	// Set content type based on extension
	c.Attachment(dl.Filename)
	c.Set(fiber.HeaderContentType, getContentType(strings.ToLower(filepath.Ext(dl.Filename))))

	// The response closes the reader once it is written
	return c.SendStream(dl.Body, int(dl.Size))
}

// fileTypeFor returns the attachment type for an allowed extension, or ""
func fileTypeFor(ext string) string {
	for fileType, exts := range allowedExts {
		for _, allowed := range exts {
			if ext == allowed {
				return fileType
			}
		}
	}
	return ""
}

// getContentType returns content type based on file extension
func getContentType(ext string) string {
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	case ".zip":
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}
