// Package auth verifies bearer JWTs and resolves which user a request may act
// for.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zombar/guardian/internal/apperr"
)

// RoleService may act on behalf of any user
const RoleService = "service_role"

// Claims are the token claims; Subject is the user id
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller
type Principal struct {
	UserID string
	Role   string
}

// IsService reports whether the caller holds the service role
func (p *Principal) IsService() bool {
	return p != nil && p.Role == RoleService
}

type contextKey struct{}

// WithPrincipal stores p in ctx
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(*Principal)
	return p, ok && p != nil
}

// Verifier checks HS256 tokens signed with a shared secret
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Sign issues a token for userID
func (v *Verifier) Sign(userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Verify parses and validates a token
func (v *Verifier) Verify(tokenString string) (*Principal, error) {
	if tokenString == "" {
		return nil, apperr.Newf(apperr.Authentication, "missing bearer token")
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, apperr.New(apperr.Authentication, fmt.Errorf("failed to parse token: %w", err))
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, apperr.Newf(apperr.Authentication, "invalid or expired token")
	}
	if claims.Subject == "" && claims.Role != RoleService {
		return nil, apperr.Newf(apperr.Authentication, "token has no subject")
	}

	return &Principal{UserID: claims.Subject, Role: claims.Role}, nil
}

// BearerToken extracts the token from the Authorization header
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// ResolveUser returns the user a request acts for. An empty requested id
// defaults to the caller; another user's id needs the service role.
func ResolveUser(p *Principal, requested string) (string, error) {
	if p == nil {
		return "", apperr.Newf(apperr.Authentication, "unauthenticated request")
	}
	if requested == "" {
		if p.UserID == "" {
			return "", apperr.Newf(apperr.Validation, "userId is required")
		}
		return p.UserID, nil
	}
	if requested != p.UserID && !p.IsService() {
		return "", apperr.Newf(apperr.Authorization, "caller may not act for another user")
	}
	return requested, nil
}
