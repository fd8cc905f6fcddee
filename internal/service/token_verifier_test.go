package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims *models.JWTClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func claimsFor(role models.UserRole, issuer string, ttl time.Duration) *models.JWTClaims {
	now := time.Now()
	return &models.JWTClaims{
		UserID:    "user-1",
		Role:      role,
		TeacherID: "T1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func TestTokenVerifierAcceptsValidToken(t *testing.T) {
	v := NewTokenVerifier("secret", "sma-auth")
	token := signToken(t, jwt.SigningMethodHS256, []byte("secret"), claimsFor(models.RoleTeacher, "sma-auth", time.Hour))

	claims, err := v.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, models.Principal{UserID: "user-1", Role: models.RoleTeacher, TeacherID: "T1"}, claims.Principal())
}

func TestTokenVerifierRejects(t *testing.T) {
	v := NewTokenVerifier("secret", "sma-auth")

	cases := map[string]string{
		"wrong secret": signToken(t, jwt.SigningMethodHS256, []byte("other"), claimsFor(models.RoleAdmin, "sma-auth", time.Hour)),
		"expired":      signToken(t, jwt.SigningMethodHS256, []byte("secret"), claimsFor(models.RoleAdmin, "sma-auth", -time.Minute)),
		"wrong issuer": signToken(t, jwt.SigningMethodHS256, []byte("secret"), claimsFor(models.RoleAdmin, "elsewhere", time.Hour)),
		"wrong method": signToken(t, jwt.SigningMethodHS512, []byte("secret"), claimsFor(models.RoleAdmin, "sma-auth", time.Hour)),
		"missing role": signToken(t, jwt.SigningMethodHS256, []byte("secret"), claimsFor("", "sma-auth", time.Hour)),
		"not a token":  "abc.def",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.ValidateToken(token)
			assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
		})
	}
}

func TestTokenVerifierWithoutIssuer(t *testing.T) {
	v := NewTokenVerifier("secret", "")
	token := signToken(t, jwt.SigningMethodHS256, []byte("secret"), claimsFor(models.RoleCoordinator, "anyone", time.Hour))

	_, err := v.ValidateToken(token)
	assert.NoError(t, err)
}
