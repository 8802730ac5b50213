package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"shameless/internal/feed/models"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

//go:embed migrations/*.sql
var migrations embed.FS

// ============================================================
// SQLite Repository
// ============================================================

type Repository struct {
	db *sql.DB
}

func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Init runs migrations and seeds the demo positions on an empty database.
func (r *Repository) Init(ctx context.Context) error {
	if err := r.runMigrations(ctx); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return r.ensurePositions(ctx)
}

// ============================================================
// Users
// ============================================================

func (r *Repository) CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error) {
	if _, err := r.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrConflict
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO users (id, email, password_hash)
        VALUES (?, ?, ?)
    `, id, email, passwordHash)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return r.GetUserByID(ctx, id)
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT id, email, password_hash, onboarded, created_at
        FROM users
        WHERE email = ?
    `, email)
	return scanUser(row)
}

func (r *Repository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT id, email, password_hash, onboarded, created_at
        FROM users
        WHERE id = ?
    `, id)
	return scanUser(row)
}

func (r *Repository) SetOnboarded(ctx context.Context, id string, onboarded bool) (*models.User, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET onboarded = ? WHERE id = ?`, onboarded, id)
	if err != nil {
		return nil, fmt.Errorf("update onboarding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return r.GetUserByID(ctx, id)
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Onboarded, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// ============================================================
// Migrations & Seeding
// ============================================================

func (r *Repository) runMigrations(ctx context.Context) error {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	for _, name := range files {
		data, err := migrations.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := r.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

var seedPositions = []models.Position{
	{Name: "Backend Engineer", ImageURL: "https://picsum.photos/seed/backend/400"},
	{Name: "Product Designer", ImageURL: "https://picsum.photos/seed/designer/400"},
	{Name: "Data Analyst", ImageURL: "https://picsum.photos/seed/analyst/400"},
	{Name: "Mobile Developer", ImageURL: "https://picsum.photos/seed/mobile/400"},
	{Name: "Site Reliability Engineer", ImageURL: "https://picsum.photos/seed/sre/400"},
}

func (r *Repository) ensurePositions(ctx context.Context) error {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM positions`).Scan(&count); err != nil {
		return fmt.Errorf("count positions: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, p := range seedPositions {
		if _, err := r.CreatePosition(ctx, p.Name, p.ImageURL); err != nil {
			return fmt.Errorf("seed positions: %w", err)
		}
	}
	return nil
}

// OpenSQLite opens the sqlite database at dbPath, creating its directory.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=busy_timeout=5000&_pragma=foreign_keys=on", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}
