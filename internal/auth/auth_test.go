package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zombar/guardian/internal/apperr"
)

func TestSignAndVerify(t *testing.T) {
	v, err := NewVerifier("test-secret")
	require.NoError(t, err)

	token, err := v.Sign("user-1", "", time.Hour)
	require.NoError(t, err)

	p, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.UserID)
	assert.False(t, p.IsService())
}

func TestVerifyRejects(t *testing.T) {
	v, _ := NewVerifier("test-secret")
	other, _ := NewVerifier("other-secret")

	expired, _ := v.Sign("user-1", "", -time.Minute)
	wrongKey, _ := other.Sign("user-1", "", time.Hour)
	noSubject, _ := v.Sign("", "", time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"empty":      "",
		"garbage":    "not-a-token",
		"expired":    expired,
		"wrong key":  wrongKey,
		"no subject": noSubject,
		"alg none":   none,
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			require.Error(t, err)
			assert.Equal(t, apperr.Authentication, apperr.KindOf(err))
		})
	}
}

func TestServiceRoleWithoutSubject(t *testing.T) {
	v, _ := NewVerifier("test-secret")
	token, _ := v.Sign("", RoleService, time.Hour)

	p, err := v.Verify(token)
	require.NoError(t, err)
	assert.True(t, p.IsService())
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier("")
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	assert.Equal(t, "", BearerToken(r))

	r.Header.Set("Authorization", "bearer abc.def.ghi")
	assert.Equal(t, "abc.def.ghi", BearerToken(r))

	r.Header.Set("Authorization", "Basic Zm9v")
	assert.Equal(t, "", BearerToken(r))
}

func TestResolveUser(t *testing.T) {
	user := &Principal{UserID: "user-1"}
	service := &Principal{Role: RoleService}

	tests := []struct {
		name      string
		principal *Principal
		requested string
		expected  string
		kind      apperr.Kind
	}{
		{"defaults to caller", user, "", "user-1", ""},
		{"same user", user, "user-1", "user-1", ""},
		{"other user", user, "user-2", "", apperr.Authorization},
		{"service acts for anyone", service, "user-2", "user-2", ""},
		{"service needs user id", service, "", "", apperr.Validation},
		{"unauthenticated", nil, "user-1", "", apperr.Authentication},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveUser(tt.principal, tt.requested)
			if tt.kind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.kind, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestPrincipalContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), &Principal{UserID: "u"})
	p, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u", p.UserID)
}
