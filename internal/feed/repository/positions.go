package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shameless/internal/feed/models"

	"github.com/google/uuid"
)

// ============================================================
// Positions
// ============================================================

func (r *Repository) CreatePosition(ctx context.Context, name, imageURL string) (*models.Position, error) {
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO positions (id, name, image_url)
        VALUES (?, ?, ?)
    `, id, name, imageURL)
	if err != nil {
		return nil, fmt.Errorf("insert position: %w", err)
	}
	return r.GetPosition(ctx, id)
}

func (r *Repository) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT id, name, image_url, created_at
        FROM positions
        WHERE id = ?
    `, id)
	return scanPosition(row)
}

// NextPosition picks a random position the user has not liked or disliked yet.
func (r *Repository) NextPosition(ctx context.Context, userID string) (*models.Position, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT p.id, p.name, p.image_url, p.created_at
        FROM positions p
        WHERE NOT EXISTS (
            SELECT 1 FROM position_interactions i
            WHERE i.position_id = p.id AND i.user_id = ?
        )
        ORDER BY RANDOM()
        LIMIT 1
    `, userID)
	return scanPosition(row)
}

func scanPosition(row *sql.Row) (*models.Position, error) {
	var p models.Position
	if err := row.Scan(&p.ID, &p.Name, &p.ImageURL, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ============================================================
// Interactions
// ============================================================

func (r *Repository) CreateInteraction(ctx context.Context, userID, positionID string, kind models.InteractionType) (*models.Interaction, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid interaction type %q", kind)
	}
	if _, err := r.GetPosition(ctx, positionID); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO position_interactions (id, user_id, position_id, interaction_type)
        VALUES (?, ?, ?, ?)
    `, id, userID, positionID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("insert interaction: %w", err)
	}

	row := r.db.QueryRowContext(ctx, `
        SELECT id, user_id, position_id, interaction_type, created_at
        FROM position_interactions
        WHERE id = ?
    `, id)

	var it models.Interaction
	var typ string
	if err := row.Scan(&it.ID, &it.UserID, &it.PositionID, &typ, &it.CreatedAt); err != nil {
		return nil, err
	}
	it.Type = models.InteractionType(typ)
	return &it, nil
}

// LikedPositions lists each liked position once, most recently liked first.
func (r *Repository) LikedPositions(ctx context.Context, userID string) ([]models.Position, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT p.id, p.name, p.image_url, p.created_at
        FROM positions p
        JOIN (
            SELECT position_id, MAX(seq) AS last_seq
            FROM position_interactions
            WHERE user_id = ? AND interaction_type = 'like'
            GROUP BY position_id
        ) l ON l.position_id = p.id
        ORDER BY l.last_seq DESC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query liked: %w", err)
	}
	defer rows.Close()

	out := []models.Position{}
	for rows.Next() {
		var p models.Position
		if err := rows.Scan(&p.ID, &p.Name, &p.ImageURL, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RemoveLike deletes every like of positionID by userID. It reports whether
// anything was removed.
func (r *Repository) RemoveLike(ctx context.Context, userID, positionID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
        DELETE FROM position_interactions
        WHERE user_id = ? AND position_id = ? AND interaction_type = 'like'
    `, userID, positionID)
	if err != nil {
		return false, fmt.Errorf("delete like: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
