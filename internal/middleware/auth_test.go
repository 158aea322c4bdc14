package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edupanel/edupanel-api/internal/models"
	"github.com/edupanel/edupanel-api/internal/service"
	"github.com/edupanel/edupanel-api/pkg/response"
)

type stubUsers struct {
	user *models.User
}

func (s *stubUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, sql.ErrNoRows
	}
	return s.user, nil
}

func (s *stubUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.user, nil
}

func (s *stubUsers) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error { return nil }

func (s *stubUsers) UpdatePassword(ctx context.Context, id, hash string, updatedAt time.Time) error {
	return nil
}

func (s *stubUsers) CreateAuditLog(ctx context.Context, log *models.AuditLog) error { return nil }

type stubSessions struct{}

func (stubSessions) Create(ctx context.Context, session *models.Session) error { return nil }
func (stubSessions) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	return nil, sql.ErrNoRows
}
func (stubSessions) Delete(ctx context.Context, token string) error         { return nil }
func (stubSessions) DeleteForUser(ctx context.Context, userID string) error { return nil }

type stubDenylist struct{}

func (stubDenylist) RevokeUser(ctx context.Context, userID string, ttl time.Duration) error {
	return nil
}
func (stubDenylist) IsRevoked(ctx context.Context, userID string, issuedAt time.Time) bool {
	return false
}

func newAuthStack(t *testing.T, user *models.User, accessExpiry time.Duration) (*service.AuthService, *service.TokenService) {
	t.Helper()
	tokens := service.NewTokenService(service.TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessExpiry:  accessExpiry,
		RefreshExpiry: 24 * time.Hour,
		Issuer:        "edupanel-test",
	})
	authSvc := service.NewAuthService(&stubUsers{user: user}, stubSessions{}, stubDenylist{}, tokens, nil, zap.NewNop(), nil)
	return authSvc, tokens
}

func performProtected(authSvc *service.AuthService, header string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", Auth(authSvc), func(c *gin.Context) {
		user := CurrentUser(c)
		response.JSON(c, http.StatusOK, user.Email, nil)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddlewareMissingHeader(t *testing.T) {
	authSvc, _ := newAuthStack(t, nil, time.Hour)

	w := performProtected(authSvc, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddlewareMalformedHeader(t *testing.T) {
	authSvc, _ := newAuthStack(t, nil, time.Hour)

	w := performProtected(authSvc, "Basic abc123")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddlewareValidToken(t *testing.T) {
	user := &models.User{ID: "user-1", Email: "admin@school.test", Role: models.RoleAdmin, Active: true}
	authSvc, tokens := newAuthStack(t, user, time.Hour)

	token, _, err := tokens.IssueAccessToken("user-1")
	require.NoError(t, err)

	w := performProtected(authSvc, "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "admin@school.test")
}

func TestAuthMiddlewareExpiredTokenCode(t *testing.T) {
	user := &models.User{ID: "user-1", Email: "admin@school.test", Role: models.RoleAdmin, Active: true}
	authSvc, tokens := newAuthStack(t, user, -time.Minute)

	token, _, err := tokens.IssueAccessToken("user-1")
	require.NoError(t, err)

	w := performProtected(authSvc, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "TOKEN_EXPIRED", envelope.Error.Code)
}

func TestAuthMiddlewareInactiveUserRejected(t *testing.T) {
	user := &models.User{ID: "user-1", Email: "admin@school.test", Role: models.RoleAdmin, Active: false}
	authSvc, tokens := newAuthStack(t, user, time.Hour)

	token, _, err := tokens.IssueAccessToken("user-1")
	require.NoError(t, err)

	w := performProtected(authSvc, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddlewarePermissionChangesApplyNextRequest(t *testing.T) {
	user := &models.User{
		ID:          "user-1",
		Email:       "admin@school.test",
		Role:        models.RoleAdmin,
		Active:      true,
		Permissions: models.PermissionSet{CanCreateUsers: true},
	}
	authSvc, tokens := newAuthStack(t, user, time.Hour)

	token, _, err := tokens.IssueAccessToken("user-1")
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/users", Auth(authSvc), RequirePermission(nil, models.PermCreateUsers), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	perform := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/users", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusCreated, perform().Code)

	// withdrawing the flag takes effect on the very next request, with the
	// same still-valid access token
	user.Permissions.CanCreateUsers = false
	assert.Equal(t, http.StatusForbidden, perform().Code)
}

func TestAuthMiddlewareDeletedUserRejected(t *testing.T) {
	authSvc, tokens := newAuthStack(t, nil, time.Hour)

	token, _, err := tokens.IssueAccessToken("user-1")
	require.NoError(t, err)

	w := performProtected(authSvc, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
