package models

// ============================================================
// User Model
// ============================================================

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Onboarded    bool   `json:"onboarded"`
	CreatedAt    string `json:"created_at"`
}
