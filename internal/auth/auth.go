// Package auth issues and validates bearer tokens for the HTTP API.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/voxgate/voxgate/pkg/models"
)

var (
	ErrAuthDisabled       = errors.New("auth disabled")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Config configures the auth service.
type Config struct {
	JWTSecret   string
	TokenExpiry time.Duration
}

// Service hashes passwords and signs/validates JWTs.
type Service struct {
	signer *tokenSigner
}

// NewService constructs an auth service. An empty secret disables token
// issuance; Enabled reports that state.
func NewService(cfg Config) *Service {
	s := &Service{}
	if strings.TrimSpace(cfg.JWTSecret) != "" {
		s.signer = newTokenSigner(cfg.JWTSecret, cfg.TokenExpiry)
	}
	return s
}

// Enabled reports whether bearer auth is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.signer != nil
}

// GenerateToken issues a signed token for the given user.
func (s *Service) GenerateToken(user *models.User) (string, error) {
	if !s.Enabled() {
		return "", ErrAuthDisabled
	}
	return s.signer.issue(user)
}

// ValidateToken validates a JWT and returns the embedded user identity.
func (s *Service) ValidateToken(token string) (*models.User, error) {
	if !s.Enabled() {
		return nil, ErrAuthDisabled
	}
	return s.signer.parse(token)
}

// HashPassword derives a salted SHA-256 digest in "salt$digest" form.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("auth: password is required")
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: salt: %w", err)
	}
	digest := sha256.Sum256(append(salt, []byte(password)...))
	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(digest[:]), nil
}

// VerifyPassword checks a password against a stored "salt$digest" hash
// using constant-time comparison.
func VerifyPassword(stored, password string) bool {
	saltHex, digestHex, ok := strings.Cut(stored, "$")
	if !ok {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(digestHex)
	if err != nil {
		return false
	}
	got := sha256.Sum256(append(salt, []byte(password)...))
	return subtle.ConstantTimeCompare(got[:], want) == 1
}
