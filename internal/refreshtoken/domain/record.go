package domain

import (
	"errors"
	"time"
)

// Record is the durable form of an issued refresh token. A record is built
// in-memory by the authenticator at issuance time and handed to the store,
// which owns the durable copy thereafter. Only the token's digest is recorded;
// the token string itself exists solely in the issuance response, so a leaked
// store cannot replay live refresh tokens.
type Record struct {
	ID        string
	UserID    string
	TokenHash string // SHA-256 of the issued token; compared constant-time on rotation
	IssuedAt  time.Time
	ExpiresAt time.Time
	Persisted bool // false until the store has accepted the record
}

// Validate validates the record before persistence.
func (r *Record) Validate() error {
	if r.ID == "" {
		return errors.New("record id is required")
	}
	if r.UserID == "" {
		return errors.New("user id is required")
	}
	if r.TokenHash == "" {
		return errors.New("token hash is required")
	}
	if !r.ExpiresAt.After(r.IssuedAt) {
		return errors.New("expiry must be after issuance")
	}
	return nil
}

// Expired reports whether the record's token has expired at the given instant.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
