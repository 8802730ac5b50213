// Package gesture streams pointer events from a websocket client into a
// scratch surface and reports progress back over the same connection.
//
// Each connection owns exactly one surface. Showing another position means
// opening a new connection, which starts from a clean state.
package gesture

import (
	"log"
	"math"
	"strconv"
	"strings"
	"sync/atomic"

	"shameless/internal/scratch"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

const maxViewportWidth = 4096

// ============================================================
// Handler
// ============================================================

type Handler struct {
	upgrader websocket.FastHTTPUpgrader
	options  []scratch.Option
	active   atomic.Int64
}

// NewHandler returns a websocket handler. opts are applied to every surface.
func NewHandler(opts ...scratch.Option) *Handler {
	return &Handler{
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(ctx *fasthttp.RequestCtx) bool { return true },
		},
		options: opts,
	}
}

// Active is the number of open gesture connections.
func (h *Handler) Active() int64 {
	return h.active.Load()
}

// Upgrade validates the query and hands the upgraded connection to a new
// session. GET /ws?viewport_width=375&position_id=...&image_url=...
func (h *Handler) Upgrade(c fiber.Ctx) error {
	width, err := strconv.ParseFloat(c.Query("viewport_width"), 64)
	if err != nil || math.IsNaN(width) || width <= 0 || width > maxViewportWidth {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "viewport_width required"})
	}

	if !websocket.FastHTTPIsWebSocketUpgrade(c.RequestCtx()) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "websocket upgrade required"})
	}

	// The request is recycled once the handshake completes.
	image := scratch.ImageRef{
		PositionID: strings.Clone(c.Query("position_id")),
		URL:        strings.Clone(c.Query("image_url")),
	}
	side := scratch.SideForViewport(width)

	err = h.upgrader.Upgrade(c.RequestCtx(), func(conn *websocket.Conn) {
		h.serve(conn, image, side)
	})
	if err != nil {
		log.Printf("[GESTURE] upgrade error: %v", err)
	}
	return nil
}

func (h *Handler) serve(conn wsConn, image scratch.ImageRef, side float64) {
	s := newSession(uuid.NewString(), conn, image, side, h.options)

	h.active.Add(1)
	defer h.active.Add(-1)

	log.Printf("[GESTURE] session %s opened (position=%s side=%.1f)", s.id, image.PositionID, s.surface.Side())
	s.run()
	log.Printf("[GESTURE] session %s closed (state=%s ratio=%.3f)", s.id, s.surface.State(), s.surface.Ratio())
}

// Health reports liveness together with the number of open connections.
func (h *Handler) Health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "alive",
		"connections": h.Active(),
	})
}
