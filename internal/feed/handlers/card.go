package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"log"
	"math"
	"net/http"
	"strings"

	"shameless/internal/feed/repository"
	"shameless/internal/scratch"
	"shameless/internal/scratch/render"

	"github.com/gofiber/fiber/v3"
)

const maxViewportWidth = 4096

type cardRequest struct {
	D             string  `json:"d"`
	ViewportWidth float64 `json:"viewport_width"`
}

// Card renders the reveal card of a position for a stroke path: the image
// under the overlay with the path scratched off. ?format=svg returns the
// mask document instead of a PNG. Rendering may download the image, so the
// caller must be signed in.
func (h *FeedHandler) Card(c fiber.Ctx) error {
	if _, ok := authorize(c, h.sessions); !ok {
		return deny(c, http.StatusUnauthorized)
	}

	var req cardRequest
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
		}
	}

	width := req.ViewportWidth
	if width == 0 {
		width = h.ViewportWidth
	}
	if width <= 0 || width > maxViewportWidth || math.IsNaN(width) {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid viewport_width"})
	}

	var path scratch.Path
	if strings.TrimSpace(req.D) != "" {
		p, err := scratch.ParsePath(req.D)
		if err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid path: " + err.Error()})
		}
		path = p
	}

	pos, err := h.repo.GetPosition(c.Context(), c.Params("id"))
	if errors.Is(err, repository.ErrNotFound) {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "position not found"})
	}
	if err != nil {
		log.Printf("[CARD] get position error: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load position"})
	}

	renderer := render.NewMaskRenderer(scratch.SideForViewport(width), h.Overlay)

	if c.Query("format") == "svg" {
		c.Set("Content-Type", "image/svg+xml")
		return c.SendString(renderer.SVG(path, pos.ImageURL))
	}

	var background image.Image
	if h.images != nil && pos.ImageURL != "" {
		background, err = h.images.Decode(c.Context(), pos)
		if err != nil {
			log.Printf("[CARD] image %s unavailable, rendering overlay only: %v", pos.ID, err)
			background = nil
		}
	}

	var buf bytes.Buffer
	if err := renderer.EncodePNG(&buf, background, path); err != nil {
		log.Printf("[CARD] render error: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to render card"})
	}

	c.Set("Content-Type", "image/png")
	return c.Send(buf.Bytes())
}
