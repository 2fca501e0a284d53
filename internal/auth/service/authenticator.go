// Package service implements the authenticate-and-issue flow: credential
// verification, access/refresh token minting, and refresh-token persistence.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"authcore/internal/config"
	rtdomain "authcore/internal/refreshtoken/domain"
	"authcore/internal/security"
	"authcore/internal/telemetry"
	userdomain "authcore/internal/user/domain"
)

// Sentinel errors for the authentication flow; the handler maps them to HTTP statuses.
var (
	ErrInvalidUsername     = errors.New("invalid username")
	ErrInvalidPassword     = errors.New("invalid password")
	ErrAccountDisabled     = errors.New("account disabled")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrPersistence         = errors.New("refresh token persistence failed")
)

// collaboratorTimeout bounds each directory lookup and store call so a stalled
// collaborator surfaces as a transient failure rather than hanging the flow.
// Also the budget for a single detached store write.
const collaboratorTimeout = 5 * time.Second

// TokenIssuanceResult is the outcome of a successful Authenticate or Refresh.
// Either the caller gets a fully populated result or a categorized error,
// never a partial one. RefreshToken is the only copy of the token string; the
// store keeps just its digest (RefreshRecord.TokenHash).
type TokenIssuanceResult struct {
	AccessToken   string
	IssuedAt      time.Time
	ExpiresAt     time.Time
	RefreshToken  string
	RefreshRecord *rtdomain.Record
	UserID        string
}

// UserDirectory is the minimal user lookup surface needed by the authenticator.
// Implementations return (nil, nil) when no user exists.
type UserDirectory interface {
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// RefreshTokenStore is the minimal refresh-token persistence surface needed by
// the authenticator. Implementations must be safe for concurrent use.
type RefreshTokenStore interface {
	Save(ctx context.Context, rec *rtdomain.Record) error
	GetByID(ctx context.Context, id string) (*rtdomain.Record, error)
	DeleteByID(ctx context.Context, id string) error
}

// Authenticator orchestrates lookup, credential check, token minting, and
// refresh-token persistence. It holds no per-call state; concurrent calls
// proceed independently and may each mint distinct valid tokens for the same
// user.
type Authenticator struct {
	directory UserDirectory
	store     RefreshTokenStore
	hasher    *security.Hasher
	signer    *security.TokenSigner

	accessTTL     time.Duration
	refreshTTL    time.Duration
	persistMode   config.PersistMode
	enforceStatus bool

	// decoyHash is verified against when the username is unknown, so the
	// unknown-username path costs one PBKDF2 run like the known-username path.
	decoyHash string

	now     func() time.Time
	logger  *slog.Logger
	metrics *telemetry.AuthMetrics
}

// NewAuthenticator returns an Authenticator with the given collaborators.
// accessTTL and refreshTTL are independent lifetimes; refreshTTL must be the
// longer one (validated at config load). logger and metrics may be nil.
func NewAuthenticator(
	directory UserDirectory,
	store RefreshTokenStore,
	hasher *security.Hasher,
	signer *security.TokenSigner,
	accessTTL, refreshTTL time.Duration,
	persistMode config.PersistMode,
	enforceStatus bool,
	logger *slog.Logger,
	metrics *telemetry.AuthMetrics,
) (*Authenticator, error) {
	decoyHash, err := hasher.Hash([]byte(uuid.NewString()))
	if err != nil {
		return nil, fmt.Errorf("decoy hash: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		directory:     directory,
		store:         store,
		hasher:        hasher,
		signer:        signer,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		persistMode:   persistMode,
		enforceStatus: enforceStatus,
		decoyHash:     decoyHash,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        logger,
		metrics:       metrics,
	}, nil
}

// Authenticate verifies the username/password pair and, on success, mints an
// access token and a refresh token, records the refresh token in the store,
// and returns the combined result. Lookup strictly precedes the credential
// check, which strictly precedes minting, which strictly precedes the
// persistence submission. Failures in lookup or credential check short-circuit
// with no token minted and no store write attempted.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (*TokenIssuanceResult, error) {
	lctx, cancel := context.WithTimeout(ctx, collaboratorTimeout)
	defer cancel()
	user, err := a.directory.GetByEmail(lctx, username)
	if err != nil {
		return nil, fmt.Errorf("directory lookup: %w", err)
	}
	if user == nil {
		a.hasher.Matches([]byte(password), a.decoyHash)
		a.metrics.IssuanceFailure(ctx)
		return nil, ErrInvalidUsername
	}

	if a.enforceStatus && user.Status == userdomain.UserStatusDisabled {
		a.metrics.IssuanceFailure(ctx)
		return nil, ErrAccountDisabled
	}
	if !a.hasher.Matches([]byte(password), user.PasswordHash) {
		a.metrics.IssuanceFailure(ctx)
		return nil, ErrInvalidPassword
	}

	result, err := a.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	a.metrics.IssuanceSuccess(ctx)
	return result, nil
}

// Refresh validates the presented refresh token against its stored record,
// rotates it, and returns a fresh issuance result. The old record is removed
// before the replacement is persisted, so a rotated token cannot be replayed.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (*TokenIssuanceResult, error) {
	claims, err := a.signer.Parse(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	sctx, cancel := context.WithTimeout(ctx, collaboratorTimeout)
	defer cancel()
	rec, err := a.store.GetByID(sctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("refresh token lookup: %w", err)
	}
	if rec == nil || rec.Expired(a.now()) {
		return nil, ErrInvalidRefreshToken
	}
	if !security.RefreshTokenHashEqual(refreshToken, rec.TokenHash) {
		return nil, ErrInvalidRefreshToken
	}

	user, err := a.directory.GetByID(sctx, rec.UserID)
	if err != nil {
		return nil, fmt.Errorf("directory lookup: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidRefreshToken
	}
	if a.enforceStatus && user.Status == userdomain.UserStatusDisabled {
		return nil, ErrAccountDisabled
	}

	if err := a.store.DeleteByID(sctx, rec.ID); err != nil {
		return nil, fmt.Errorf("retire refresh token: %w", err)
	}

	result, err := a.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	a.metrics.RefreshRotation(ctx)
	return result, nil
}

// Revoke removes the durable record for the presented refresh token. An
// unparsable token is a no-op; revocation is deliberately idempotent.
func (a *Authenticator) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := a.signer.Parse(refreshToken)
	if err != nil {
		return nil
	}
	sctx, cancel := context.WithTimeout(ctx, collaboratorTimeout)
	defer cancel()
	return a.store.DeleteByID(sctx, claims.ID)
}

// issueTokens mints the access/refresh pair for user and submits the refresh
// record to the store per the configured persistence mode. Both tokens share
// the claim set and subject but carry independent expirations and jtis; the
// record id is the refresh token's jti.
func (a *Authenticator) issueTokens(ctx context.Context, user *userdomain.User) (*TokenIssuanceResult, error) {
	now := a.now()
	accessExpiresAt := now.Add(a.accessTTL)
	refreshExpiresAt := now.Add(a.refreshTTL)

	accessToken, _, err := a.signer.Sign(accessExpiresAt, user.Role, user.Email, user.ID, now)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refreshToken, jti, err := a.signer.Sign(refreshExpiresAt, user.Role, user.Email, user.ID, now)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	rec := &rtdomain.Record{
		ID:        jti,
		UserID:    user.ID,
		TokenHash: security.HashRefreshToken(refreshToken),
		IssuedAt:  now,
		ExpiresAt: refreshExpiresAt,
	}
	if err := a.persist(ctx, rec); err != nil {
		return nil, err
	}

	return &TokenIssuanceResult{
		AccessToken:   accessToken,
		IssuedAt:      now,
		ExpiresAt:     accessExpiresAt,
		RefreshToken:  refreshToken,
		RefreshRecord: rec,
		UserID:        user.ID,
	}, nil
}

// persist submits the record to the store. In await mode the write completes
// before the result is returned and a failure aborts issuance. In detach mode
// the write runs on its own goroutine with a background context, so request
// cancellation does not abort an in-flight write; failures are logged and
// counted, never surfaced to the caller.
func (a *Authenticator) persist(ctx context.Context, rec *rtdomain.Record) error {
	if a.persistMode == config.PersistDetach {
		detached := *rec
		a.metrics.DetachedPersistWrite(ctx)
		go func() {
			sctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
			defer cancel()
			if err := a.store.Save(sctx, &detached); err != nil {
				a.metrics.PersistFailure(sctx)
				a.logger.Error("detached refresh token save failed",
					"record_id", detached.ID, "user_id", detached.UserID, "err", err)
			}
		}()
		return nil
	}

	sctx, cancel := context.WithTimeout(ctx, collaboratorTimeout)
	defer cancel()
	if err := a.store.Save(sctx, rec); err != nil {
		a.metrics.PersistFailure(ctx)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	rec.Persisted = true
	return nil
}
