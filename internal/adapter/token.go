package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/wallet-sync/internal/errors"
)

// DefaultExpiryLeeway treats a token as expired slightly before its exp claim
const DefaultExpiryLeeway = 30 * time.Second

// JWTTokenSource hands out a session token issued elsewhere and refuses to
// use it once its exp claim has passed. The signature is not verified; the
// backend owns that. Opaque tokens that are not JWTs are passed through.
type JWTTokenSource struct {
	token  string
	exp    *time.Time
	leeway time.Duration
	now    func() time.Time
}

// NewJWTTokenSource inspects token once and returns a source for it.
// A nil now means time.Now.
func NewJWTTokenSource(token string, leeway time.Duration, now func() time.Time) *JWTTokenSource {
	if now == nil {
		now = time.Now
	}
	s := &JWTTokenSource{
		token:  strings.TrimSpace(token),
		leeway: leeway,
		now:    now,
	}
	if s.token == "" {
		return s
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.token, claims); err != nil {
		return s
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		s.exp = &t
	}
	return s
}

// ExpiresAt returns the token's exp claim, if any
func (s *JWTTokenSource) ExpiresAt() (time.Time, bool) {
	if s.exp == nil {
		return time.Time{}, false
	}
	return *s.exp, true
}

// Token returns the token, or an unauthorized error once it has expired
func (s *JWTTokenSource) Token(context.Context) (string, error) {
	if s.exp != nil && !s.now().Add(s.leeway).Before(*s.exp) {
		return "", &apperrors.CategorizedError{
			Category: apperrors.CategoryUnauthorized,
			Code:     "TOKEN_EXPIRED",
			Message:  fmt.Sprintf("session token expired at %s", s.exp.UTC().Format(time.RFC3339)),
		}
	}
	return s.token, nil
}
