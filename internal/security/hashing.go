package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	hashPrefix = "pbkdf2"
	saltLen    = 16
	keyLen     = 32
)

// Hasher hashes and verifies passwords using PBKDF2-HMAC-SHA256. Callers must
// not log or persist plaintext passwords. Stored hashes are encoded as
// "pbkdf2$<iterations>$<salt-b64>$<key-b64>".
type Hasher struct {
	Iterations int
}

// NewHasher returns a Hasher with the given iteration count. Counts below
// 1000 are raised to 210000.
func NewHasher(iterations int) *Hasher {
	if iterations < 1000 {
		iterations = 210000
	}
	return &Hasher{Iterations: iterations}
}

// Hash produces an encoded PBKDF2 hash of password with a fresh random salt.
func (h *Hasher) Hash(password []byte) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := pbkdf2.Key(password, salt, h.Iterations, keyLen, sha256.New)
	return fmt.Sprintf("%s$%d$%s$%s",
		hashPrefix,
		h.Iterations,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Matches verifies password against the encoded stored hash. The derived-key
// comparison is constant-time with respect to the password-derived bytes.
// A malformed stored hash yields false, never a panic; failure is a single
// boolean decision point for the authentication flow.
func (h *Hasher) Matches(password []byte, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 || parts[0] != hashPrefix {
		return false
	}
	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations <= 0 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil || len(want) == 0 {
		return false
	}
	got := pbkdf2.Key(password, salt, iterations, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}
