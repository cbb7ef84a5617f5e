package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/voxgate/voxgate/pkg/models"
)

const tokenIssuer = "voxgate"

// tokenSigner mints and checks HS256 bearer tokens. The clock is a field
// so tests can pin issued-at and expiry.
type tokenSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func newTokenSigner(secret string, ttl time.Duration) *tokenSigner {
	return &tokenSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// identityClaims carries the user fields alongside the registered set.
type identityClaims struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// issue signs a token identifying user. A zero ttl means the token never
// expires; a negative ttl produces an already-expired token.
func (ts *tokenSigner) issue(user *models.User) (string, error) {
	if ts == nil || len(ts.secret) == 0 {
		return "", ErrAuthDisabled
	}
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return "", errors.New("auth: user id required")
	}

	issued := ts.now()
	reg := jwt.RegisteredClaims{
		Issuer:   tokenIssuer,
		Subject:  user.ID,
		IssuedAt: jwt.NewNumericDate(issued),
	}
	if ts.ttl != 0 {
		reg.ExpiresAt = jwt.NewNumericDate(issued.Add(ts.ttl))
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, identityClaims{
		Username:         strings.TrimSpace(user.Username),
		Email:            strings.TrimSpace(user.Email),
		RegisteredClaims: reg,
	}).SignedString(ts.secret)
}

// parse verifies a token and recovers the identity it was issued for.
// Every failure collapses to ErrInvalidToken so callers can't distinguish
// a forged token from an expired one.
func (ts *tokenSigner) parse(token string) (*models.User, error) {
	if ts == nil || len(ts.secret) == 0 {
		return nil, ErrAuthDisabled
	}

	var claims identityClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return ts.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(ts.now),
	)
	if err != nil || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}

	return &models.User{
		ID:       claims.Subject,
		Username: claims.Username,
		Email:    claims.Email,
	}, nil
}
