package handlers

import "github.com/gofiber/fiber/v3"

// ============================================================
// Routes
// ============================================================

// Mount registers the feed API on r.
func Mount(r fiber.Router, auth *AuthHandler, feed *FeedHandler) {
	r.Post("/register", auth.Register)
	r.Post("/login", auth.Login)
	r.Post("/logout", auth.Logout)

	r.Get("/users/:id", auth.GetUser)
	r.Put("/users/:id/onboarding", auth.SetOnboarding)

	r.Get("/users/:id/positions/next", feed.NextPosition)
	r.Post("/users/:id/interactions", feed.Interact)
	r.Get("/users/:id/liked", feed.Liked)
	r.Get("/users/:id/liked/stream", feed.Stream)
	r.Get("/users/:id/liked/pdf", feed.LikedPDF)
	r.Delete("/users/:id/liked/:positionId", feed.RemoveLiked)

	r.Post("/positions", feed.CreatePosition)
	r.Get("/positions/:id", feed.GetPosition)
	r.Post("/positions/:id/card", feed.Card)
}
