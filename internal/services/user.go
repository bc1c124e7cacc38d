package services

import (
	"context"
	"errors"
	"strings"

	"garage-backend/internal/maintenance"
	"garage-backend/internal/models"
	"garage-backend/internal/repository"
	"garage-backend/pkg/logger"
)

type UserService struct {
	userRepo repository.UserRepository
	log      *logger.Logger
}

func NewUserService(userRepo repository.UserRepository, log *logger.Logger) *UserService {
	if log == nil {
		log = logger.Discard()
	}
	return &UserService{
		userRepo: userRepo,
		log:      log.WithField("service", "users"),
	}
}

// ListMechanics returns the directory used when assigning a vehicle.
func (s *UserService) ListMechanics(ctx context.Context) ([]*models.Mechanic, error) {
	users, err := s.userRepo.ListByRole(ctx, models.RoleMechanic)
	if err != nil {
		return nil, err
	}

	mechanics := make([]*models.Mechanic, 0, len(users))
	for _, u := range users {
		mechanics = append(mechanics, &models.Mechanic{
			ID:         u.ID.Hex(),
			FirstName:  u.FirstName,
			LastName:   u.LastName,
			GarageName: u.GarageName,
		})
	}
	return mechanics, nil
}

// UpdateProfile applies the set fields. Names cannot be blanked and only
// mechanics carry a garage name.
func (s *UserService) UpdateProfile(ctx context.Context, actor Actor, update repository.ProfileUpdate) (*models.AuthUser, error) {
	if update.IsEmpty() {
		return nil, maintenance.ValidationErrors{{Field: "profile", Message: "no fields to update"}}
	}

	var errs maintenance.ValidationErrors
	if blank(update.FirstName) {
		errs = append(errs, maintenance.ValidationError{Field: "firstName", Message: "firstName is required"})
	}
	if blank(update.LastName) {
		errs = append(errs, maintenance.ValidationError{Field: "lastName", Message: "lastName is required"})
	}
	if update.GarageName != nil && actor.Role != models.RoleMechanic {
		errs = append(errs, maintenance.ValidationError{Field: "garageName", Message: "only mechanics have a garage name"})
	}
	if len(errs) > 0 {
		return nil, errs
	}

	user, err := s.userRepo.UpdateProfile(ctx, actor.UserID, update)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, err
		}
		s.log.WithUserID(actor.UserID).WithError(err).Error("Failed to update profile")
		return nil, saveError("profile", err)
	}
	return user.ToAuthUser(), nil
}

func blank(v *string) bool {
	return v != nil && strings.TrimSpace(*v) == ""
}
