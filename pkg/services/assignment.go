package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/qbank-labs/question-engine/pkg/models"
	"github.com/qbank-labs/question-engine/pkg/repositories"
)

// AssignmentPolicy decides which user a workflow stage is handed to when no
// one is assigned yet. Returning apperrors.ErrNotFound means nobody is
// available; transitions proceed unassigned in that case.
type AssignmentPolicy interface {
	Pick(ctx context.Context, role models.UserRole) (*uuid.UUID, error)
}

// firstActivePolicy assigns the longest-standing active user of the role.
type firstActivePolicy struct {
	users repositories.UserRepository
}

// NewFirstActivePolicy creates the default assignment policy.
func NewFirstActivePolicy(users repositories.UserRepository) AssignmentPolicy {
	return &firstActivePolicy{users: users}
}

var _ AssignmentPolicy = (*firstActivePolicy)(nil)

func (p *firstActivePolicy) Pick(ctx context.Context, role models.UserRole) (*uuid.UUID, error) {
	user, err := p.users.FirstActiveByRole(ctx, role)
	if err != nil {
		return nil, err
	}
	id := user.ID
	return &id, nil
}
