package models

// ============================================================
// Position Model
// ============================================================

type Position struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ImageURL  string `json:"image_url"`
	CreatedAt string `json:"created_at"`
}

// ============================================================
// Interactions
// ============================================================

type InteractionType string

const (
	InteractionLike    InteractionType = "like"
	InteractionDislike InteractionType = "dislike"
)

func (t InteractionType) Valid() bool {
	return t == InteractionLike || t == InteractionDislike
}

type Interaction struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	PositionID string          `json:"position_id"`
	Type       InteractionType `json:"interaction_type"`
	CreatedAt  string          `json:"created_at"`
}
