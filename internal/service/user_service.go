package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/edugestion/asistencia-api/internal/models"
	appErrors "github.com/edugestion/asistencia-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.UserWithRoles, int, error)
	FindByID(ctx context.Context, id string) (*models.UserWithRoles, error)
	FindByEmail(ctx context.Context, email string) (*models.UserWithRoles, error)
	Create(ctx context.Context, user *models.User, roles []models.UserRole) error
	Update(ctx context.Context, user *models.User) error
	Deactivate(ctx context.Context, id string) error
	ReplaceRoles(ctx context.Context, userID string, roles []models.UserRole) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
}

// CreateUserRequest represents payload for creating users.
type CreateUserRequest struct {
	Email    string            `json:"email" validate:"required,email"`
	FullName string            `json:"full_name" validate:"required"`
	DNI      string            `json:"dni" validate:"required,min=8,max=12"`
	Phone    *string           `json:"phone"`
	SchoolID string            `json:"school_id" validate:"required"`
	Roles    []models.UserRole `json:"roles" validate:"required,min=1,dive,oneof=ADMINISTRATIVO AUXILIAR DOCENTE APODERADO ESTUDIANTE"`
	Password string            `json:"password" validate:"required,min=6"`
}

// UpdateUserRequest payload for updating users.
type UpdateUserRequest struct {
	FullName string            `json:"full_name" validate:"required"`
	Phone    *string           `json:"phone"`
	Roles    []models.UserRole `json:"roles" validate:"omitempty,min=1,dive,oneof=ADMINISTRATIVO AUXILIAR DOCENTE APODERADO ESTUDIANTE"`
}

// UserService handles user management workflows.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, validator: validate, logger: logger}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.UserWithRoles, *models.Pagination, error) {
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
func (s *UserService) Get(ctx context.Context, id string) (*models.UserWithRoles, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create adds a new user with its role assignments.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest) (*models.UserWithRoles, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}

	if _, err := s.repo.FindByEmail(ctx, strings.ToLower(req.Email)); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(req.Email),
		PasswordHash: string(passwordHash),
		FullName:     req.FullName,
		DNI:          req.DNI,
		Phone:        req.Phone,
		SchoolID:     req.SchoolID,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, user, req.Roles); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("email", user.Email))

	return &models.UserWithRoles{User: *user, Roles: req.Roles}, nil
}

// Update modifies profile fields and, when provided, replaces role
// assignments.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest) (*models.UserWithRoles, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update user payload")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	existing.FullName = req.FullName
	existing.Phone = req.Phone

	if err := s.repo.Update(ctx, &existing.User); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	if len(req.Roles) > 0 {
		if err := s.repo.ReplaceRoles(ctx, id, req.Roles); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace roles")
		}
		existing.Roles = req.Roles
	}

	return existing, nil
}

// Deactivate soft-deletes a user and revokes its sessions. Rows are never
// hard-deleted so attendance history keeps its references.
func (s *UserService) Deactivate(ctx context.Context, id string) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate user")
	}
	if err := s.repo.RevokeUserRefreshTokens(ctx, id); err != nil {
		s.logger.Warn("failed to revoke sessions for deactivated user", zap.Error(err))
	}
	return nil
}
