package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/edupanel/edupanel-api/internal/models"
	appErrors "github.com/edupanel/edupanel-api/pkg/errors"
)

// TokenConfig defines the signing material and lifetimes for both token
// kinds. AccessSecret and RefreshSecret must differ; each parse path pins its
// own secret, so a refresh token can never pass access verification and vice
// versa.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

// TokenService mints and verifies access and refresh tokens. It is stateless:
// issuance is a pure function of (user, config, clock).
type TokenService struct {
	config TokenConfig
}

// NewTokenService constructs a TokenService.
func NewTokenService(config TokenConfig) *TokenService {
	return &TokenService{config: config}
}

// AccessExpiry exposes the configured access token lifetime.
func (s *TokenService) AccessExpiry() time.Duration {
	return s.config.AccessExpiry
}

// RefreshExpiry exposes the configured refresh token lifetime.
func (s *TokenService) RefreshExpiry() time.Duration {
	return s.config.RefreshExpiry
}

// IssueAccessToken mints a short-lived access token carrying only the user id.
func (s *TokenService) IssueAccessToken(userID string) (string, time.Time, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(s.config.AccessExpiry)
	claims := &models.AccessClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.AccessSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// IssueRefreshToken mints a long-lived refresh token signed with the refresh
// secret and marked with token_use.
func (s *TokenService) IssueRefreshToken(userID string) (string, time.Time, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(s.config.RefreshExpiry)
	claims := &models.RefreshClaims{
		UserID:   userID,
		TokenUse: models.RefreshTokenUse,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.RefreshSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseAccessToken verifies a token against the access secret. An expired
// token maps to TOKEN_EXPIRED so clients know to attempt a silent refresh;
// every other failure stays generic.
func (s *TokenService) ParseAccessToken(raw string) (*models.AccessClaims, error) {
	token, err := jwt.ParseWithClaims(raw, &models.AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, appErrors.Wrap(err, appErrors.ErrTokenExpired.Code, appErrors.ErrTokenExpired.Status, appErrors.ErrTokenExpired.Message)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.AccessClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	return claims, nil
}

// ParseRefreshToken verifies a token against the refresh secret and checks
// the token_use marker on top of it.
func (s *TokenService) ParseRefreshToken(raw string) (*models.RefreshClaims, error) {
	token, err := jwt.ParseWithClaims(raw, &models.RefreshClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.RefreshSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid refresh token")
	}

	claims, ok := token.Claims.(*models.RefreshClaims)
	if !ok || !token.Valid || claims.TokenUse != models.RefreshTokenUse {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid refresh token")
	}

	return claims, nil
}
