package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RefreshTokenUse is the token_use marker embedded in refresh tokens. The
// marker is verified in addition to, never instead of, the refresh secret.
const RefreshTokenUse = "refresh"

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued tokens and user info.
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	User         UserInfo  `json:"user"`
	IssuedAt     time.Time `json:"issued_at"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// RefreshTokenResponse returns the renewed access token. The refresh token is
// not rotated on use.
type RefreshTokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
}

// LogoutRequest revokes the supplied refresh token.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// ChangePasswordRequest payload for updating the caller's own password.
// The minimum length of 4 mirrors the school's quick-provisioning policy.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=4"`
}

// ResetPasswordRequest payload for the administrative reset. When no password
// is supplied the provisioning default is used.
type ResetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"omitempty,min=4"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID          string        `json:"id"`
	Email       string        `json:"email"`
	FullName    string        `json:"full_name"`
	Role        UserRole      `json:"role"`
	Super       bool          `json:"super"`
	Permissions PermissionSet `json:"permissions"`
}

// NewUserInfo builds the response shape from a user row.
func NewUserInfo(u *User) UserInfo {
	return UserInfo{
		ID:          u.ID,
		Email:       u.Email,
		FullName:    u.FullName,
		Role:        u.Role,
		Super:       u.Super,
		Permissions: u.Permissions,
	}
}

// AccessClaims is the payload of access tokens: identity only. Authorization
// data is loaded fresh from the user row on every request.
type AccessClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of refresh tokens.
type RefreshClaims struct {
	UserID   string `json:"user_id"`
	TokenUse string `json:"token_use"`
	jwt.RegisteredClaims
}
