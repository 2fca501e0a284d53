package repository

import (
	"context"

	"authcore/internal/user/domain"
)

// Repository defines the directory lookup and persistence surface for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
}
