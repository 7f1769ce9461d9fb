package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/qbank-labs/question-engine/pkg/apperrors"
	"github.com/qbank-labs/question-engine/pkg/database"
	"github.com/qbank-labs/question-engine/pkg/models"
)

// UserRepository provides data access for workflow participants.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// FirstActiveByRole returns the oldest active user holding the given
	// role, or apperrors.ErrNotFound when none exists.
	FirstActiveByRole(ctx context.Context, role models.UserRole) (*models.User, error)
}

type userRepository struct {
	db *database.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *database.DB) UserRepository {
	return &userRepository{db: db}
}

var _ UserRepository = (*userRepository)(nil)

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, username, role, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Username, string(user.Role), user.IsActive, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.scanOne(r.db.QueryRow(ctx, `
		SELECT id, username, role, is_active, created_at
		FROM users WHERE id = $1`, id))
}

func (r *userRepository) FirstActiveByRole(ctx context.Context, role models.UserRole) (*models.User, error) {
	return r.scanOne(r.db.QueryRow(ctx, `
		SELECT id, username, role, is_active, created_at
		FROM users
		WHERE role = $1 AND is_active
		ORDER BY created_at
		LIMIT 1`, string(role)))
}

func (r *userRepository) scanOne(row pgx.Row) (*models.User, error) {
	var user models.User
	var role string
	err := row.Scan(&user.ID, &user.Username, &role, &user.IsActive, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	user.Role = models.UserRole(role)
	return &user, nil
}
