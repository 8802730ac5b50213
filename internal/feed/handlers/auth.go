package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"shameless/internal/feed/models"
	"shameless/internal/feed/repository"
	"shameless/internal/feed/service"

	"github.com/gofiber/fiber/v3"
)

// ============================================================
// Auth Handler
// ============================================================

type AuthHandler struct {
	repo     *repository.Repository
	sessions *service.SessionManager
}

func NewAuthHandler(repo *repository.Repository, sessions *service.SessionManager) *AuthHandler {
	return &AuthHandler{
		repo:     repo,
		sessions: sessions,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

type onboardingRequest struct {
	Onboarded *bool `json:"onboarded"`
}

// Register creates an account and signs the new user in.
func (h *AuthHandler) Register(c fiber.Ctx) error {
	log.Printf("[AUTH] Register request")

	req, err := parseCredentials(c)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := service.ValidateCredentials(req.Email, req.Password); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	hash, err := service.HashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] hash error: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create user"})
	}

	user, err := h.repo.CreateUser(c.Context(), strings.TrimSpace(req.Email), hash)
	if errors.Is(err, repository.ErrConflict) {
		return c.Status(http.StatusConflict).JSON(fiber.Map{"error": "email already registered"})
	}
	if err != nil {
		log.Printf("[AUTH] create user error: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create user"})
	}

	return c.Status(http.StatusCreated).JSON(sessionResponse{
		Token: h.sessions.Issue(user.ID),
		User:  user,
	})
}

// Login issues a bearer token for an email/password pair.
func (h *AuthHandler) Login(c fiber.Ctx) error {
	log.Printf("[AUTH] Login request")

	req, err := parseCredentials(c)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if req.Email == "" || req.Password == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "email and password required"})
	}

	user, err := h.repo.GetUserByEmail(c.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Printf("[AUTH] lookup error: %v", err)
		}
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "invalid credentials"})
	}
	if err := service.CheckPassword(user.PasswordHash, req.Password); err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "invalid credentials"})
	}

	return c.JSON(sessionResponse{
		Token: h.sessions.Issue(user.ID),
		User:  user,
	})
}

func (h *AuthHandler) Logout(c fiber.Ctx) error {
	if token := bearerToken(c); token != "" {
		h.sessions.Revoke(token)
	}
	return c.SendStatus(http.StatusNoContent)
}

func (h *AuthHandler) GetUser(c fiber.Ctx) error {
	userID, status := requireOwner(c, h.sessions)
	if status != 0 {
		return deny(c, status)
	}

	user, err := h.repo.GetUserByID(c.Context(), userID)
	if err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
	}
	return c.JSON(user)
}

// SetOnboarding records that the user finished (or reset) onboarding.
func (h *AuthHandler) SetOnboarding(c fiber.Ctx) error {
	userID, status := requireOwner(c, h.sessions)
	if status != 0 {
		return deny(c, status)
	}

	var req onboardingRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil || req.Onboarded == nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "onboarded required"})
	}

	user, err := h.repo.SetOnboarded(c.Context(), userID, *req.Onboarded)
	if errors.Is(err, repository.ErrNotFound) {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
	}
	if err != nil {
		log.Printf("[AUTH] onboarding error: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update user"})
	}
	return c.JSON(user)
}

// ============================================================
// Helpers
// ============================================================

func parseCredentials(c fiber.Ctx) (credentialsRequest, error) {
	var req credentialsRequest
	if len(c.Body()) == 0 {
		return req, errors.New("empty body")
	}
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return req, errors.New("invalid json")
	}
	return req, nil
}

func bearerToken(c fiber.Ctx) string {
	auth := c.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

func authorize(c fiber.Ctx, sessions *service.SessionManager) (string, bool) {
	token := bearerToken(c)
	if token == "" {
		return "", false
	}
	return sessions.Resolve(token)
}

// requireOwner resolves the caller and checks it against :id. A non-zero
// status means the request must be rejected with it.
func requireOwner(c fiber.Ctx, sessions *service.SessionManager) (string, int) {
	userID, ok := authorize(c, sessions)
	if !ok {
		return "", http.StatusUnauthorized
	}
	targetID := c.Params("id")
	if targetID == "" || targetID != userID {
		return "", http.StatusForbidden
	}
	return userID, 0
}

func deny(c fiber.Ctx, status int) error {
	if status == http.StatusUnauthorized {
		return c.Status(status).JSON(fiber.Map{"error": "unauthorized"})
	}
	return c.Status(status).JSON(fiber.Map{"error": "forbidden"})
}
