package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/edupanel/edupanel-api/pkg/errors"
)

func newTokenService(accessExpiry, refreshExpiry time.Duration) *TokenService {
	return NewTokenService(TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessExpiry:  accessExpiry,
		RefreshExpiry: refreshExpiry,
		Issuer:        "edupanel-test",
	})
}

func TestTokenServiceAccessRoundTrip(t *testing.T) {
	svc := newTokenService(time.Hour, 24*time.Hour)

	token, expiresAt, err := svc.IssueAccessToken("user-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.ParseAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	require.NotNil(t, claims.IssuedAt)
}

func TestTokenServiceRefreshRoundTrip(t *testing.T) {
	svc := newTokenService(time.Hour, 24*time.Hour)

	token, _, err := svc.IssueRefreshToken("user-1")
	require.NoError(t, err)

	claims, err := svc.ParseRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "refresh", claims.TokenUse)
}

func TestTokenServiceSecretsAreNotInterchangeable(t *testing.T) {
	svc := newTokenService(time.Hour, 24*time.Hour)

	access, _, err := svc.IssueAccessToken("user-1")
	require.NoError(t, err)
	refresh, _, err := svc.IssueRefreshToken("user-1")
	require.NoError(t, err)

	_, err = svc.ParseAccessToken(refresh)
	assert.Error(t, err)

	_, err = svc.ParseRefreshToken(access)
	assert.Error(t, err)
}

func TestTokenServiceExpiredAccessTokenCode(t *testing.T) {
	svc := newTokenService(-time.Minute, 24*time.Hour)

	token, _, err := svc.IssueAccessToken("user-1")
	require.NoError(t, err)

	_, err = svc.ParseAccessToken(token)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrTokenExpired.Code, appErr.Code)
}

func TestTokenServiceGarbageToken(t *testing.T) {
	svc := newTokenService(time.Hour, 24*time.Hour)

	_, err := svc.ParseAccessToken("not-a-jwt")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}
