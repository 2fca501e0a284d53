package repository

import (
	"context"
	"sync"
	"time"

	"authcore/internal/refreshtoken/domain"
)

// MemoryRepository is an in-process refresh-token store for development and
// single-node deployments without durable storage. Safe for concurrent use.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]domain.Record
}

// NewMemoryRepository returns an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]domain.Record)}
}

// Save stores a copy of the record keyed by id, overwriting any previous copy.
func (r *MemoryRepository) Save(ctx context.Context, rec *domain.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *rec
	stored.Persisted = true
	r.records[rec.ID] = stored
	return nil
}

// GetByID returns a copy of the record for id, or nil if not found.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// DeleteByID removes the record for id. Deleting a missing id is a no-op.
func (r *MemoryRepository) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	return nil
}

// DeleteExpired removes all records expired at or before the given instant.
func (r *MemoryRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, rec := range r.records {
		if !rec.ExpiresAt.After(before) {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored records.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
