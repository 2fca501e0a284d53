package repository

import (
	"context"
	"time"

	"authcore/internal/refreshtoken/domain"
)

// Repository defines persistence for refresh-token records. Implementations
// must be safe for concurrent use by simultaneous issuance calls. Save must be
// idempotent-safe for a freshly generated id.
type Repository interface {
	Save(ctx context.Context, rec *domain.Record) error
	GetByID(ctx context.Context, id string) (*domain.Record, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
