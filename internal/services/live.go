package services

import (
	"context"
	"errors"

	"garage-backend/internal/metrics"
	"garage-backend/internal/models"
	"garage-backend/internal/repository"
	"garage-backend/internal/watch"
	"garage-backend/pkg/logger"
)

type View string

const (
	ViewVehicles    View = "vehicles"
	ViewVehicle     View = "vehicle"
	ViewMaintenance View = "maintenance"
	ViewProfile     View = "profile"
)

func (v View) IsValid() bool {
	switch v {
	case ViewVehicles, ViewVehicle, ViewMaintenance, ViewProfile:
		return true
	}
	return false
}

// NeedsKey reports whether the view is scoped to a vehicle id.
func (v View) NeedsKey() bool {
	return v == ViewVehicle || v == ViewMaintenance
}

var ErrUnknownView = errors.New("unknown view")

// LiveService opens live queries for the views a client can display. Every
// subscription delivers a snapshot right away and after each relevant write.
type LiveService struct {
	vehicleRepo repository.VehicleRepository
	userRepo    repository.UserRepository
	vehicles    *VehicleService
	maintenance *MaintenanceService
	metrics     *metrics.Metrics
	log         *logger.Logger
}

func NewLiveService(vehicleRepo repository.VehicleRepository, userRepo repository.UserRepository, vehicles *VehicleService, maintenance *MaintenanceService, log *logger.Logger) *LiveService {
	if log == nil {
		log = logger.Discard()
	}
	return &LiveService{
		vehicleRepo: vehicleRepo,
		userRepo:    userRepo,
		vehicles:    vehicles,
		maintenance: maintenance,
		log:         log.WithField("service", "live"),
	}
}

func (s *LiveService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Subscribe opens a live query of view for actor. key is the vehicle id for
// the vehicle and maintenance views and is ignored otherwise. The caller owns
// the returned subscription and must cancel it.
func (s *LiveService) Subscribe(ctx context.Context, actor Actor, view View, key string, deliver func(interface{}, error)) (*watch.Subscription, error) {
	sub, err := s.open(ctx, actor, view, key, deliver)
	if err != nil {
		return nil, err
	}

	s.metrics.SubscriptionOpened(string(view))
	sub.OnCancel(func() {
		s.metrics.SubscriptionClosed(string(view))
		s.log.WithUserID(actor.UserID).WithFields(map[string]interface{}{
			"view": view,
			"key":  key,
		}).Debug("Live query released")
	})
	return sub, nil
}

func (s *LiveService) open(ctx context.Context, actor Actor, view View, key string, deliver func(interface{}, error)) (*watch.Subscription, error) {
	switch view {
	case ViewVehicles:
		list := func(vehicles []*models.Vehicle, err error) {
			if err != nil {
				deliver(nil, err)
				return
			}
			if vehicles == nil {
				vehicles = []*models.Vehicle{}
			}
			deliver(vehicles, nil)
		}
		switch actor.Role {
		case models.RoleMechanic:
			return s.vehicleRepo.WatchByMechanic(actor.UserID, list), nil
		case models.RoleUser:
			return s.vehicleRepo.WatchByOwner(actor.UserID, list), nil
		}
		return nil, ErrRoleNotAllowed

	case ViewVehicle:
		if _, err := s.vehicles.Authorize(ctx, actor, key, AccessRead); err != nil {
			return nil, err
		}
		// Access is rechecked on every snapshot since the vehicle may be
		// reassigned or deleted while the query is open.
		return s.vehicleRepo.WatchVehicle(key, func(v *models.Vehicle, err error) {
			switch {
			case err != nil:
				deliver(nil, err)
			case !actor.Can(AccessRead, v):
				deliver(nil, ErrForbidden)
			default:
				deliver(v, nil)
			}
		}), nil

	case ViewMaintenance:
		return s.maintenance.Watch(ctx, actor, key, func(h *HistoryView, err error) {
			if err != nil {
				deliver(nil, err)
				return
			}
			deliver(h, nil)
		})

	case ViewProfile:
		return s.userRepo.WatchUser(actor.UserID, func(u *models.User, err error) {
			if err != nil {
				deliver(nil, err)
				return
			}
			deliver(u.ToAuthUser(), nil)
		}), nil
	}
	return nil, ErrUnknownView
}
