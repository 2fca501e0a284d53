package security

import (
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, or fails verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrEmptySecret is returned by NewTokenSigner when the configured secret is empty.
	// A missing secret is a startup configuration error, never a per-call condition.
	ErrEmptySecret = errors.New("signing secret must not be empty")
)

// Claims holds the claim set embedded in every issued token: the registered
// claims (iss, sub, iat, exp, jti) plus the user's role and username.
type Claims struct {
	jwt.RegisteredClaims
	Role     string `json:"role,omitempty"`
	Username string `json:"username,omitempty"`
}

// TokenSigner mints and verifies HS256 tokens with a process-wide derived key.
// The key is derived once at construction by base64-encoding the configured
// secret's bytes; every sign and parse call within a process lifetime uses the
// same derived key. Safe for concurrent use; the key is read-only after New.
type TokenSigner struct {
	key    []byte
	issuer string
}

// NewTokenSigner derives the signing key from secret and returns a TokenSigner
// stamping issuer on every token. An empty secret returns ErrEmptySecret.
func NewTokenSigner(secret, issuer string) (*TokenSigner, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	key := []byte(base64.StdEncoding.EncodeToString([]byte(secret)))
	return &TokenSigner{key: key, issuer: issuer}, nil
}

// Sign encodes the claim set into a signed token string for the given subject.
// Each call stamps a fresh jti, so re-signing identical inputs at the same
// instant still yields distinct token strings. expiresAt and issuedAt are
// truncated to whole seconds by the NumericDate encoding.
func (s *TokenSigner) Sign(expiresAt time.Time, role, username, subject string, issuedAt time.Time) (token string, jti string, err error) {
	jti = uuid.NewString()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role:     role,
		Username: username,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token, err = t.SignedString(s.key)
	if err != nil {
		return "", "", err
	}
	return token, jti, nil
}

// Parse verifies the token's signature, expiry, and issuer, and returns its
// claims. Tokens signed with a non-HMAC method are rejected. Any failure is
// reported as ErrInvalidToken; callers never see parser internals.
func (s *TokenSigner) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.key, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != s.issuer {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
