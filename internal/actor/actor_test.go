package actor

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/tracechain/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	auth, err := NewAuthenticator(config.Config{AuthJWTSecret: "test-secret", AuthJWTIssuer: "tracechain"})
	require.NoError(t, err)
	return auth
}

func TestAuthenticateBearerRoundTrip(t *testing.T) {
	auth := newTestAuthenticator(t)

	token, err := auth.Issue(Actor{ID: "user-1", Roles: []string{"Supplier", "supplier", " Logistics "}}, time.Hour)
	require.NoError(t, err)

	got, err := auth.AuthenticateBearer(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.ID)
	assert.Equal(t, []string{"supplier", "logistics"}, got.Roles)
}

func TestAuthenticateBearerRejectsExpired(t *testing.T) {
	auth := newTestAuthenticator(t)
	token, err := auth.Issue(Actor{ID: "user-1"}, -time.Minute)
	require.NoError(t, err)

	_, err = auth.AuthenticateBearer(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateBearerRejectsOtherAlgorithms(t *testing.T) {
	auth := newTestAuthenticator(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", Issuer: "tracechain"},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = auth.AuthenticateBearer(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = auth.AuthenticateBearer("")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestNewAuthenticatorRequiresSecretInProduction(t *testing.T) {
	_, err := NewAuthenticator(config.Config{Environment: "production"})
	assert.Error(t, err)
}
