package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/edupanel/edupanel-api/internal/models"
	appErrors "github.com/edupanel/edupanel-api/pkg/errors"
)

type mockUserRepo struct {
	usersByID    map[string]*models.User
	usersByEmail map[string]*models.User
	created      []*models.User
	updated      []*models.User
	deleted      []string
	permsUpdated map[string]models.PermissionSet
	passwords    map[string]string
	auditLogs    []*models.AuditLog
}

func newMockUserRepo(users ...*models.User) *mockUserRepo {
	m := &mockUserRepo{
		usersByID:    make(map[string]*models.User),
		usersByEmail: make(map[string]*models.User),
		permsUpdated: make(map[string]models.PermissionSet),
		passwords:    make(map[string]string),
	}
	for _, u := range users {
		m.usersByID[u.ID] = u
		m.usersByEmail[u.Email] = u
	}
	return m
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, u := range m.usersByID {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := m.usersByID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	u, ok := m.usersByEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	m.created = append(m.created, user)
	m.usersByID[user.ID] = user
	m.usersByEmail[user.Email] = user
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	m.updated = append(m.updated, user)
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.usersByID, id)
	return nil
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.passwords[id] = passwordHash
	return nil
}

func (m *mockUserRepo) UpdatePermissions(ctx context.Context, id string, perms models.PermissionSet, updatedAt time.Time) error {
	m.permsUpdated[id] = perms
	return nil
}

func (m *mockUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

type mockRevoker struct {
	revoked []string
}

func (m *mockRevoker) RevokeAllAccess(ctx context.Context, userID string) {
	m.revoked = append(m.revoked, userID)
}

func superUser() *models.User {
	return &models.User{ID: "super-1", Email: "root@school.test", Role: models.RoleAdmin, Active: true, Super: true}
}

func adminActor() *models.User {
	return &models.User{ID: "admin-1", Email: "admin@school.test", Role: models.RoleAdmin, Active: true, Permissions: models.DefaultPermissions(models.RoleAdmin)}
}

func TestUserServiceCreateAppliesRoleDefaults(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewUserService(repo, &mockRevoker{}, validator.New(), zap.NewNop())

	user, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "  Teacher@School.Test ",
		FullName: "New Teacher",
		Role:     models.RoleTeacher,
		Active:   true,
		Password: "1234",
	}, adminActor(), RequestMeta{})
	require.NoError(t, err)

	assert.Equal(t, "teacher@school.test", user.Email)
	assert.False(t, user.Super)
	assert.True(t, user.Permissions.CanManageGrades)
	assert.True(t, user.Permissions.CanManageAttendance)
	assert.False(t, user.Permissions.CanCreateUsers)

	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionUserCreate, repo.auditLogs[0].Action)
}

func TestUserServiceCreateMergesPermissionOverride(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewUserService(repo, &mockRevoker{}, validator.New(), zap.NewNop())

	user, err := svc.Create(context.Background(), CreateUserRequest{
		Email:       "teacher@school.test",
		FullName:    "New Teacher",
		Role:        models.RoleTeacher,
		Active:      true,
		Password:    "1234",
		Permissions: &models.PermissionSet{CanViewAuditLogs: true},
	}, adminActor(), RequestMeta{})
	require.NoError(t, err)

	// override adds on top of defaults, never subtracts
	assert.True(t, user.Permissions.CanManageGrades)
	assert.True(t, user.Permissions.CanViewAuditLogs)
}

func TestUserServiceCreateDuplicateEmail(t *testing.T) {
	existing := &models.User{ID: "user-1", Email: "taken@school.test", Role: models.RoleTeacher}
	repo := newMockUserRepo(existing)
	svc := NewUserService(repo, &mockRevoker{}, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "TAKEN@school.test",
		FullName: "Other",
		Role:     models.RoleStudent,
		Password: "1234",
	}, adminActor(), RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.created)
}

func TestUserServiceCreateWeakPasswordRejected(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewUserService(repo, &mockRevoker{}, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "kid@school.test",
		FullName: "Kid",
		Role:     models.RoleStudent,
		Password: "123",
	}, adminActor(), RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceDeleteSuperUserForbidden(t *testing.T) {
	repo := newMockUserRepo(superUser())
	svc := NewUserService(repo, &mockRevoker{}, validator.New(), zap.NewNop())

	// even a super actor cannot delete the super user
	err := svc.Delete(context.Background(), "super-1", superUser(), RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestUserServiceDelete(t *testing.T) {
	target := &models.User{ID: "user-2", Email: "bye@school.test", Role: models.RoleStudent}
	repo := newMockUserRepo(target)
	svc := NewUserService(repo, &mockRevoker{}, validator.New(), zap.NewNop())

	require.NoError(t, svc.Delete(context.Background(), "user-2", adminActor(), RequestMeta{}))
	assert.Equal(t, []string{"user-2"}, repo.deleted)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionUserDelete, repo.auditLogs[0].Action)
}

func TestUserServiceUpdateSuperRequiresSuperActor(t *testing.T) {
	repo := newMockUserRepo(superUser())
	svc := NewUserService(repo, &mockRevoker{}, validator.New(), zap.NewNop())

	_, err := svc.Update(context.Background(), "super-1", UpdateUserRequest{FullName: "Renamed"}, adminActor(), RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Update(context.Background(), "super-1", UpdateUserRequest{FullName: "Renamed"}, superUser(), RequestMeta{})
	require.NoError(t, err)
}

func TestUserServiceUpdatePermissionsSuperGuard(t *testing.T) {
	repo := newMockUserRepo(superUser())
	svc := NewUserService(repo, &mockRevoker{}, validator.New(), zap.NewNop())

	_, err := svc.UpdatePermissions(context.Background(), "super-1", models.PermissionSet{}, adminActor(), RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestUserServiceResetPasswordDefaultsAndRevokes(t *testing.T) {
	target := &models.User{ID: "user-2", Email: "kid@school.test", Role: models.RoleStudent}
	repo := newMockUserRepo(target)
	revoker := &mockRevoker{}
	svc := NewUserService(repo, revoker, validator.New(), zap.NewNop())

	require.NoError(t, svc.ResetPassword(context.Background(), "user-2", models.ResetPasswordRequest{}, adminActor(), RequestMeta{}))

	hash, ok := repo.passwords["user-2"]
	require.True(t, ok)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte(DefaultResetPassword)))
	assert.Equal(t, []string{"user-2"}, revoker.revoked)
}

func TestUserServiceResetPasswordSuperGuard(t *testing.T) {
	repo := newMockUserRepo(superUser())
	svc := NewUserService(repo, &mockRevoker{}, validator.New(), zap.NewNop())

	err := svc.ResetPassword(context.Background(), "super-1", models.ResetPasswordRequest{NewPassword: "newpw"}, adminActor(), RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestUserServiceGetNotFound(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewUserService(repo, &mockRevoker{}, validator.New(), zap.NewNop())

	_, err := svc.Get(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
