package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/edupanel/edupanel-api/internal/models"
	appErrors "github.com/edupanel/edupanel-api/pkg/errors"
)

// DefaultResetPassword is the provisioning default applied when an
// administrative reset supplies no password. Deliberately tiny: accounts are
// provisioned in bulk and holders change it on first login.
const DefaultResetPassword = "1234"

const pqUniqueViolation = "23505"

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	UpdatePermissions(ctx context.Context, id string, perms models.PermissionSet, updatedAt time.Time) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type accessRevoker interface {
	RevokeAllAccess(ctx context.Context, userID string)
}

// CreateUserRequest represents payload for creating users. Permissions, when
// supplied, are OR-merged over the role defaults.
type CreateUserRequest struct {
	Email       string                `json:"email" validate:"required,email"`
	FullName    string                `json:"full_name" validate:"required"`
	Role        models.UserRole       `json:"role" validate:"required,oneof=ADMIN TEACHER STUDENT PARENT"`
	Active      bool                  `json:"active"`
	Password    string                `json:"password" validate:"required,min=4"`
	Permissions *models.PermissionSet `json:"permissions,omitempty"`
}

// UpdateUserRequest payload for updating users. Role is immutable after
// creation; changing it would orphan the role-extension row.
type UpdateUserRequest struct {
	FullName string `json:"full_name" validate:"required"`
	Active   *bool  `json:"active"`
}

// RequestMeta carries client metadata for audit entries.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// UserService handles user management workflows including the super-user
// protection rules.
type UserService struct {
	repo      userRepository
	revoker   accessRevoker
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, revoker accessRevoker, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, revoker: revoker, validator: validate, logger: logger}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	pagination := &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
	}

	return users, pagination, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create adds a new user with its role-extension row. Emails are normalized
// before the uniqueness check, so addresses differing only by case or
// surrounding whitespace conflict.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest, actor *models.User, meta RequestMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}

	email := NormalizeEmail(req.Email)

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	perms := models.DefaultPermissions(req.Role)
	if req.Permissions != nil {
		perms = perms.Merge(*req.Permissions)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     req.FullName,
		Role:         req.Role,
		Active:       req.Active,
		Super:        false,
		Permissions:  perms,
		PasswordHash: string(passwordHash),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"id": user.ID, "email": user.Email, "role": user.Role})
	s.audit(ctx, actor, models.AuditActionUserCreate, user.ID, nil, newPayload, meta)

	return user, nil
}

// Update modifies the user attributes. Editing the super user requires a
// super actor.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest, actor *models.User, meta RequestMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if user.Super && !actor.Super {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "super user can only be modified by a super user")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"full_name": user.FullName, "active": user.Active})

	user.FullName = req.FullName
	if req.Active != nil {
		user.Active = *req.Active
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"full_name": user.FullName, "active": user.Active})
	s.audit(ctx, actor, models.AuditActionUserUpdate, user.ID, oldPayload, newPayload, meta)

	return user, nil
}

// UpdatePermissions replaces a user's permission set. The super user's set is
// only editable by another super user; it is implicit anyway.
func (s *UserService) UpdatePermissions(ctx context.Context, id string, perms models.PermissionSet, actor *models.User, meta RequestMeta) (*models.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if user.Super && !actor.Super {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "super user permissions can only be edited by a super user")
	}

	oldPayload, _ := json.Marshal(user.Permissions)

	if err := s.repo.UpdatePermissions(ctx, id, perms, time.Now().UTC()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update permissions")
	}
	user.Permissions = perms

	newPayload, _ := json.Marshal(perms)
	s.audit(ctx, actor, models.AuditActionPermissionsUpdate, user.ID, oldPayload, newPayload, meta)

	return user, nil
}

// ResetPassword sets another user's password without the current-password
// check. Super targets require a super actor. Every session of the target is
// revoked afterwards.
func (s *UserService) ResetPassword(ctx context.Context, id string, req models.ResetPasswordRequest, actor *models.User, meta RequestMeta) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reset password payload")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if user.Super && !actor.Super {
		return appErrors.Clone(appErrors.ErrForbidden, "super user password can only be reset by a super user")
	}

	password := req.NewPassword
	if password == "" {
		password = DefaultResetPassword
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	if err := s.repo.UpdatePassword(ctx, id, string(newHash), time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset password")
	}

	if s.revoker != nil {
		s.revoker.RevokeAllAccess(ctx, id)
	}

	s.audit(ctx, actor, models.AuditActionPasswordReset, user.ID, nil, []byte(`{"status":"reset"}`), meta)

	return nil
}

// Delete removes a user permanently, cascading to the role-extension row and
// sessions. The super user is exempt from deletion regardless of the caller.
func (s *UserService) Delete(ctx context.Context, id string, actor *models.User, meta RequestMeta) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if user.Super {
		return appErrors.Clone(appErrors.ErrForbidden, "super user cannot be deleted")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"email": user.Email, "role": user.Role})
	s.audit(ctx, actor, models.AuditActionUserDelete, user.ID, oldPayload, nil, meta)

	return nil
}

func (s *UserService) audit(ctx context.Context, actor *models.User, action, resourceID string, oldValues, newValues []byte, meta RequestMeta) {
	var actorID *string
	if actor != nil {
		actorID = &actor.ID
	}
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     actorID,
		Action:     action,
		Resource:   "users",
		ResourceID: &resourceID,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
