package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/edupanel/edupanel-api/internal/models"
	appErrors "github.com/edupanel/edupanel-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type sessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	FindByToken(ctx context.Context, token string) (*models.Session, error)
	Delete(ctx context.Context, token string) error
	DeleteForUser(ctx context.Context, userID string) error
}

type tokenDenylist interface {
	RevokeUser(ctx context.Context, userID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, userID string, issuedAt time.Time) bool
}

// AuthService provides authentication use cases.
type AuthService struct {
	users     authUserRepository
	sessions  sessionStore
	denylist  tokenDenylist
	tokens    *TokenService
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users authUserRepository, sessions sessionStore, denylist tokenDenylist, tokens *TokenService, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{
		users:     users,
		sessions:  sessions,
		denylist:  denylist,
		tokens:    tokens,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
	}
}

// NormalizeEmail lowercases and trims an email for lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login authenticates a user and returns issued tokens. Unknown email, wrong
// password and inactive account all fail with the same generic error so the
// response does not reveal whether the account exists.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.users.FindByEmail(ctx, NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordLogin(false)
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if !user.Active {
		s.metrics.RecordLogin(false)
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.metrics.RecordLogin(false)
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	accessToken, _, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	refreshToken, refreshExpiry, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	session := &models.Session{
		UserID:    user.ID,
		Token:     refreshToken,
		ExpiresAt: refreshExpiry,
		CreatedAt: time.Now().UTC(),
		IPAddress: req.IP,
		UserAgent: req.UserAgent,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist session")
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &user.ID,
		Action:     models.AuditActionLogin,
		Resource:   "auth",
		ResourceID: &user.ID,
		NewValues:  []byte(`{"status":"success"}`),
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record login audit log", zap.Error(err))
	}

	s.metrics.RecordLogin(true)

	return &models.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.tokens.AccessExpiry().Seconds()),
		IssuedAt:     time.Now().UTC(),
		User:         models.NewUserInfo(user),
	}, nil
}

// Refresh exchanges a valid refresh token for a new access token. Validity is
// store-side: the signature must verify against the refresh secret AND a
// matching, unexpired session row must exist. The refresh token itself is not
// rotated; it stays usable until revoked or expired.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	claims, err := s.tokens.ParseRefreshToken(req.RefreshToken)
	if err != nil {
		s.metrics.RecordRefresh(false)
		return nil, err
	}

	session, err := s.sessions.FindByToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordRefresh(false)
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token revoked or unknown")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch session")
	}

	if !time.Now().UTC().Before(session.ExpiresAt) {
		s.metrics.RecordRefresh(false)
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token expired")
	}

	if session.UserID != claims.UserID {
		s.metrics.RecordRefresh(false)
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token mismatch")
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordRefresh(false)
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "associated user no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if !user.Active {
		s.metrics.RecordRefresh(false)
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "account is no longer active")
	}

	accessToken, _, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate access token")
	}

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &user.ID,
		Action:     models.AuditActionTokenRefresh,
		Resource:   "auth",
		ResourceID: &user.ID,
		NewValues:  []byte(`{"status":"refreshed"}`),
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record refresh audit log", zap.Error(err))
	}

	s.metrics.RecordRefresh(true)

	return &models.RefreshTokenResponse{
		AccessToken: accessToken,
		ExpiresIn:   int64(s.tokens.AccessExpiry().Seconds()),
		IssuedAt:    time.Now().UTC(),
	}, nil
}

// Logout revokes the supplied refresh token by deleting its session row. The
// operation is idempotent and needs no access token, so a client whose access
// token already expired can still log out; revoking an unknown or
// already-revoked token is not an error, so a double-submit still succeeds.
func (s *AuthService) Logout(ctx context.Context, req models.LogoutRequest) error {
	if err := s.sessions.Delete(ctx, req.RefreshToken); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke session")
	}

	// the actor is taken from the token itself, best effort: an unparsable
	// token still revokes fine, it just leaves no attributed audit entry
	var actorID *string
	if claims, err := s.tokens.ParseRefreshToken(req.RefreshToken); err == nil {
		actorID = &claims.UserID
	}

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     actorID,
		Action:     models.AuditActionLogout,
		Resource:   "auth",
		ResourceID: actorID,
		NewValues:  []byte(`{"status":"logout"}`),
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record logout audit log", zap.Error(err))
	}

	return nil
}

// ChangePassword changes the caller's own password after verifying the
// current one. All of the user's sessions are revoked and a denylist cutoff
// is written so outstanding access tokens die early.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return appErrors.Clone(appErrors.ErrForbidden, "current password does not match")
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	if err := s.users.UpdatePassword(ctx, userID, string(newHash), time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}

	s.revokeAllAccess(ctx, userID)

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionPasswordChange,
		Resource:   "auth",
		ResourceID: &userID,
		NewValues:  []byte(`{"status":"changed"}`),
	}); err != nil {
		s.logger.Warn("failed to record password change audit log", zap.Error(err))
	}

	return nil
}

// Authenticate resolves a bearer access token to a freshly loaded user row.
// The token is trusted for identity only; role and permissions always come
// from the store, so permission changes apply on the very next request.
func (s *AuthService) Authenticate(ctx context.Context, rawToken string) (*models.User, error) {
	claims, err := s.tokens.ParseAccessToken(rawToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}

	if s.denylist != nil && claims.IssuedAt != nil && s.denylist.IsRevoked(ctx, user.ID, claims.IssuedAt.Time) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}

	return user, nil
}

// RevokeAllAccess invalidates every session of the user and denylists
// outstanding access tokens. Used by administrative password resets.
func (s *AuthService) RevokeAllAccess(ctx context.Context, userID string) {
	s.revokeAllAccess(ctx, userID)
}

func (s *AuthService) revokeAllAccess(ctx context.Context, userID string) {
	if err := s.sessions.DeleteForUser(ctx, userID); err != nil {
		s.logger.Warn("failed to revoke user sessions", zap.String("user_id", userID), zap.Error(err))
	}
	if s.denylist != nil {
		if err := s.denylist.RevokeUser(ctx, userID, s.tokens.AccessExpiry()); err != nil {
			s.logger.Warn("failed to write denylist cutoff", zap.String("user_id", userID), zap.Error(err))
		}
	}
}
