package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/client-roster/internal/auth"
	"github.com/spec-kit/client-roster/internal/domain"
	"github.com/spec-kit/client-roster/internal/repository"
	apperrors "github.com/spec-kit/client-roster/pkg/util/errorutil"
)

// UserService exposes the org hierarchy to dashboard actors.
type UserService struct {
	users repository.UserRepository
}

// NewUserService constructs the service.
func NewUserService(users repository.UserRepository) *UserService {
	return &UserService{users: users}
}

// GetByID loads a single user.
func (s *UserService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

// ListVisible returns the users actor may see: everyone for the admin tier,
// self plus direct reports for managers, self plus own manager otherwise.
func (s *UserService) ListVisible(ctx context.Context, actor *domain.User) ([]domain.User, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("actor required")
	}
	filter := repository.UserFilter{IDs: []string{actor.ID}}
	switch {
	case domain.IsAdminLike(actor.Role):
		filter = repository.UserFilter{}
	case domain.IsManagerLike(actor.Role):
		id := actor.ID
		filter.ReportsTo = &id
	case actor.ManagerID != nil:
		filter.IDs = append(filter.IDs, *actor.ManagerID)
	}
	users, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return users, nil
}

// AssignManager sets or clears userID's manager.
func (s *UserService) AssignManager(ctx context.Context, actor *domain.User, userID string, managerID *string) (*domain.User, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("actor required")
	}
	if !auth.CanAssign(actor) {
		return nil, apperrors.NewForbidden("user management role required")
	}
	if managerID != nil && *managerID == "" {
		managerID = nil
	}
	if managerID != nil {
		if *managerID == userID {
			return nil, apperrors.NewValidationError("a user cannot be their own manager", map[string]any{"field": "manager_id"})
		}
		if _, err := s.GetByID(ctx, *managerID); err != nil {
			return nil, err
		}
	}
	user, err := s.users.UpdateManager(ctx, userID, managerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": userID})
		}
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

// ChangeRole assigns a new role to userID.
func (s *UserService) ChangeRole(ctx context.Context, actor *domain.User, userID string, role domain.Role) (*domain.User, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("actor required")
	}
	if !auth.CanChangeRoles(actor) {
		return nil, apperrors.NewForbidden("promotion role required")
	}
	if !role.Valid() {
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"field": "role", "value": role})
	}
	user, err := s.users.UpdateRole(ctx, userID, role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": userID})
		}
		return nil, apperrors.MapError(err)
	}
	return user, nil
}
