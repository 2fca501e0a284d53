package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"authcore/internal/refreshtoken/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a refresh-token store that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Save upserts the record keyed by id. Re-saving the same fresh id overwrites
// the row rather than failing, which keeps retries of a detached write safe.
func (r *PostgresRepository) Save(ctx context.Context, rec *domain.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET token_hash = EXCLUDED.token_hash,
		     issued_at = EXCLUDED.issued_at, expires_at = EXCLUDED.expires_at`,
		rec.ID, rec.UserID, rec.TokenHash, rec.IssuedAt, rec.ExpiresAt)
	return err
}

// GetByID returns the record for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, issued_at, expires_at
		 FROM refresh_tokens WHERE id = $1`, id)
	var rec domain.Record
	err := row.Scan(&rec.ID, &rec.UserID, &rec.TokenHash, &rec.IssuedAt, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.Persisted = true
	return &rec, nil
}

// DeleteByID removes the record for id. Deleting a missing id is a no-op.
func (r *PostgresRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, id)
	return err
}

// DeleteExpired removes all records whose expiry is at or before the given
// instant and returns the number of rows removed.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
