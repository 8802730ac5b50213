package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"shameless/internal/feed/export"
	"shameless/internal/feed/models"
	"shameless/internal/feed/repository"
	"shameless/internal/feed/service"

	"github.com/gofiber/fiber/v3"
)

const (
	prefetchTimeout   = 20 * time.Second
	streamKeepAlive   = 15 * time.Second
	defaultViewport   = 375.0
	maxPositionName   = 200
	pdfContentType    = "application/pdf"
	streamContentType = "text/event-stream"
)

// ============================================================
// Feed Handler
// ============================================================

type FeedHandler struct {
	repo     *repository.Repository
	sessions *service.SessionManager
	hub      *service.ChangeHub
	images   *service.ImageStore

	// ViewportWidth sizes reveal cards when the request does not.
	ViewportWidth float64
	// Overlay is the scratch-off colour of rendered cards.
	Overlay string
	// StreamKeepAlive is how often an idle stream writes a comment line. A
	// departed client is noticed on the next write.
	StreamKeepAlive time.Duration
}

func NewFeedHandler(repo *repository.Repository, sessions *service.SessionManager, hub *service.ChangeHub, images *service.ImageStore) *FeedHandler {
	return &FeedHandler{
		repo:            repo,
		sessions:        sessions,
		hub:             hub,
		images:          images,
		ViewportWidth:   defaultViewport,
		StreamKeepAlive: streamKeepAlive,
	}
}

type interactionRequest struct {
	PositionID      string                 `json:"position_id"`
	InteractionType models.InteractionType `json:"interaction_type"`
}

type positionRequest struct {
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
}

// NextPosition serves a position the user has not swiped yet and warms the
// image cache for it in the background.
func (h *FeedHandler) NextPosition(c fiber.Ctx) error {
	userID, status := requireOwner(c, h.sessions)
	if status != 0 {
		return deny(c, status)
	}

	pos, err := h.repo.NextPosition(c.Context(), userID)
	if errors.Is(err, repository.ErrNotFound) {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "no positions available"})
	}
	if err != nil {
		log.Printf("[FEED] next position error: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load position"})
	}

	if h.images != nil {
		go func(p models.Position) {
			ctx, cancel := context.WithTimeout(context.Background(), prefetchTimeout)
			defer cancel()
			if err := h.images.Prefetch(ctx, &p); err != nil {
				log.Printf("[FEED] prefetch %s error: %v", p.ID, err)
			}
		}(*pos)
	}

	return c.JSON(pos)
}

// Interact records a like or dislike and notifies the user's streams.
func (h *FeedHandler) Interact(c fiber.Ctx) error {
	userID, status := requireOwner(c, h.sessions)
	if status != 0 {
		return deny(c, status)
	}

	var req interactionRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}
	if req.PositionID == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "position_id required"})
	}
	if !req.InteractionType.Valid() {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "interaction_type must be like or dislike"})
	}

	it, err := h.repo.CreateInteraction(c.Context(), userID, req.PositionID, req.InteractionType)
	if errors.Is(err, repository.ErrNotFound) {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "position not found"})
	}
	if err != nil {
		log.Printf("[FEED] interaction error: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save interaction"})
	}

	n := h.hub.Publish(service.Change{
		Event:           service.ChangeInsert,
		UserID:          it.UserID,
		PositionID:      it.PositionID,
		InteractionType: string(it.Type),
	})
	log.Printf("[FEED] %s %s by %s (notified %d)", it.Type, it.PositionID, it.UserID, n)

	return c.Status(http.StatusCreated).JSON(it)
}

func (h *FeedHandler) Liked(c fiber.Ctx) error {
	userID, status := requireOwner(c, h.sessions)
	if status != 0 {
		return deny(c, status)
	}

	liked, err := h.repo.LikedPositions(c.Context(), userID)
	if err != nil {
		log.Printf("[FEED] liked error: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load liked positions"})
	}
	return c.JSON(liked)
}

// RemoveLiked drops a position from the liked list.
func (h *FeedHandler) RemoveLiked(c fiber.Ctx) error {
	userID, status := requireOwner(c, h.sessions)
	if status != 0 {
		return deny(c, status)
	}

	positionID := strings.Clone(c.Params("positionId"))
	removed, err := h.repo.RemoveLike(c.Context(), userID, positionID)
	if err != nil {
		log.Printf("[FEED] remove like error: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to remove like"})
	}
	if !removed {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "like not found"})
	}

	h.hub.Publish(service.Change{
		Event:           service.ChangeDelete,
		UserID:          userID,
		PositionID:      positionID,
		InteractionType: string(models.InteractionLike),
	})
	return c.SendStatus(http.StatusNoContent)
}

// Stream pushes the user's interaction changes as server-sent events.
func (h *FeedHandler) Stream(c fiber.Ctx) error {
	userID, status := requireOwner(c, h.sessions)
	if status != 0 {
		return deny(c, status)
	}

	changes, cancel := h.hub.Subscribe(userID)
	log.Printf("[FEED] stream opened for %s (%d open)", userID, h.hub.Subscribers(userID))

	keepAlive := h.StreamKeepAlive
	if keepAlive <= 0 {
		keepAlive = streamKeepAlive
	}
	// Closed when the server shuts down.
	shutdown := c.RequestCtx().Done()

	c.Set("Content-Type", streamContentType)
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer log.Printf("[FEED] stream closed for %s", userID)

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		fmt.Fprint(w, ": connected\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case change, ok := <-changes:
				if !ok {
					return
				}
				if err := writeEvent(w, change); err != nil {
					log.Printf("[FEED] encode change error: %v", err)
					return
				}
			case <-ticker.C:
				fmt.Fprint(w, ": ping\n\n")
			case <-shutdown:
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	})
}

// LikedPDF exports the liked list as a PDF document.
func (h *FeedHandler) LikedPDF(c fiber.Ctx) error {
	userID, status := requireOwner(c, h.sessions)
	if status != 0 {
		return deny(c, status)
	}

	user, err := h.repo.GetUserByID(c.Context(), userID)
	if err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
	}
	liked, err := h.repo.LikedPositions(c.Context(), userID)
	if err != nil {
		log.Printf("[FEED] liked error: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load liked positions"})
	}

	var buf bytes.Buffer
	if err := export.LikedPDF(&buf, user.Email, liked); err != nil {
		log.Printf("[FEED] pdf error: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to build pdf"})
	}

	c.Set("Content-Type", pdfContentType)
	c.Set("Content-Disposition", `attachment; filename="liked.pdf"`)
	return c.Send(buf.Bytes())
}

// ============================================================
// Positions
// ============================================================

func (h *FeedHandler) CreatePosition(c fiber.Ctx) error {
	if _, ok := authorize(c, h.sessions); !ok {
		return deny(c, http.StatusUnauthorized)
	}

	var req positionRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > maxPositionName {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "name required"})
	}
	req.ImageURL = strings.TrimSpace(req.ImageURL)
	if req.ImageURL != "" {
		if err := service.ValidateImageURL(req.ImageURL); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	}

	pos, err := h.repo.CreatePosition(c.Context(), req.Name, req.ImageURL)
	if err != nil {
		log.Printf("[FEED] create position error: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create position"})
	}
	return c.Status(http.StatusCreated).JSON(pos)
}

func (h *FeedHandler) GetPosition(c fiber.Ctx) error {
	pos, err := h.repo.GetPosition(c.Context(), c.Params("id"))
	if errors.Is(err, repository.ErrNotFound) {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "position not found"})
	}
	if err != nil {
		log.Printf("[FEED] get position error: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load position"})
	}
	return c.JSON(pos)
}

// ============================================================
// Helpers
// ============================================================

func writeEvent(w *bufio.Writer, change service.Change) error {
	data, err := json.Marshal(change)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: change\ndata: %s\n\n", data)
	return err
}
