package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"garage-backend/internal/catalog"
	"garage-backend/internal/maintenance"
	"garage-backend/internal/metrics"
	"garage-backend/internal/models"
	"garage-backend/internal/repository"
	"garage-backend/pkg/cache"
	"garage-backend/pkg/logger"
)

type VehicleService struct {
	vehicleRepo  repository.VehicleRepository
	userRepo     repository.UserRepository
	cacheManager cache.CacheManager
	cacheConfig  cache.CacheConfig
	metrics      *metrics.Metrics
	log          *logger.Logger
}

func NewVehicleService(vehicleRepo repository.VehicleRepository, userRepo repository.UserRepository, log *logger.Logger) *VehicleService {
	if log == nil {
		log = logger.Discard()
	}
	return &VehicleService{
		vehicleRepo: vehicleRepo,
		userRepo:    userRepo,
		cacheConfig: cache.DefaultCacheConfig(),
		log:         log.WithField("service", "vehicles"),
	}
}

// SetCacheManager enables read-through caching of vehicles and lists.
func (s *VehicleService) SetCacheManager(cacheManager cache.CacheManager) {
	s.cacheManager = cacheManager
}

func (s *VehicleService) SetCacheConfig(config cache.CacheConfig) {
	s.cacheConfig = config
}

func (s *VehicleService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// VehicleInput is the editable field set of a vehicle. Mileage is optional on
// create and defaults to 0.
type VehicleInput struct {
	Make         string `json:"make" validate:"required,catalog_make"`
	Model        string `json:"model" validate:"required"`
	Year         int    `json:"year" validate:"required,min=1900"`
	VIN          string `json:"vin" validate:"omitempty,len=17,alphanum"`
	PlateNumber  string `json:"plateNumber" validate:"required,notblank,max=20"`
	EngineType   string `json:"engineType" validate:"required,engine_type"`
	Transmission string `json:"transmission" validate:"required,transmission"`
	Drivetrain   string `json:"drivetrain" validate:"required,drivetrain"`
	Mileage      *int   `json:"mileage,omitempty" validate:"omitempty,min=0"`
	MechanicID   string `json:"mechanicId,omitempty"`
}

func (in *VehicleInput) normalize() {
	in.VIN = strings.ToUpper(strings.TrimSpace(in.VIN))
	in.PlateNumber = strings.ToUpper(strings.TrimSpace(in.PlateNumber))
	in.MechanicID = strings.TrimSpace(in.MechanicID)
}

func (s *VehicleService) validate(ctx context.Context, in *VehicleInput) error {
	in.normalize()
	errs := validateStruct(in)

	if in.Make != "" && catalog.IsKnownMake(in.Make) && !catalog.IsKnownModel(in.Make, in.Model) {
		errs = append(errs, maintenance.ValidationError{Field: "model", Message: "model is not listed for " + in.Make})
	}
	if maxYear := time.Now().Year() + 1; in.Year > maxYear {
		errs = append(errs, maintenance.ValidationError{Field: "year", Message: "year cannot be after next year"})
	}
	if len(errs) > 0 {
		return errs
	}

	if in.MechanicID != "" {
		mechanic, err := s.userRepo.FindByID(ctx, in.MechanicID)
		if err != nil || mechanic.Role != models.RoleMechanic {
			if err != nil && !errors.Is(err, repository.ErrUserNotFound) && !errors.Is(err, repository.ErrInvalidID) {
				return err
			}
			return maintenance.ValidationErrors{{Field: "mechanicId", Message: "mechanic not found"}}
		}
	}
	return nil
}

// Create registers a vehicle owned by actor. Only owners register vehicles.
func (s *VehicleService) Create(ctx context.Context, actor Actor, in VehicleInput) (*models.Vehicle, error) {
	if actor.Role != models.RoleUser {
		return nil, ErrRoleNotAllowed
	}
	if err := s.validate(ctx, &in); err != nil {
		return nil, err
	}

	vehicle := &models.Vehicle{
		Make:         in.Make,
		Model:        in.Model,
		Year:         in.Year,
		VIN:          in.VIN,
		PlateNumber:  in.PlateNumber,
		EngineType:   in.EngineType,
		Transmission: in.Transmission,
		Drivetrain:   in.Drivetrain,
		OwnerID:      actor.UserID,
		MechanicID:   in.MechanicID,
	}
	if in.Mileage != nil {
		vehicle.Mileage = *in.Mileage
	}

	created, err := s.vehicleRepo.Create(ctx, vehicle)
	if err != nil {
		s.log.WithUserID(actor.UserID).WithError(err).Error("Failed to create vehicle")
		return nil, saveError("vehicle", err)
	}

	s.invalidate(ctx, created.ID.Hex(), created.OwnerID, created.MechanicID)
	s.log.WithUserID(actor.UserID).WithVehicleID(created.ID.Hex()).Info("Vehicle registered")
	return created, nil
}

// List returns the owner's vehicles for owners and the assigned vehicles for
// mechanics.
func (s *VehicleService) List(ctx context.Context, actor Actor) ([]*models.Vehicle, error) {
	var key, tag string
	var fetch func(context.Context, string) ([]*models.Vehicle, error)

	switch actor.Role {
	case models.RoleMechanic:
		key, tag, fetch = "mechanic:"+actor.UserID, cache.MechanicTag(actor.UserID), s.vehicleRepo.ListByMechanic
	case models.RoleUser:
		key, tag, fetch = "owner:"+actor.UserID, cache.OwnerTag(actor.UserID), s.vehicleRepo.ListByOwner
	default:
		return nil, ErrRoleNotAllowed
	}

	if s.cacheManager != nil {
		cached, err := s.cacheManager.GetVehicleList(ctx, key)
		if err != nil {
			s.log.WithError(err).WithField("key", key).Warn("Vehicle list cache read failed")
		}
		s.metrics.CacheLookup("vehicle_list", cached != nil)
		if cached != nil {
			return cached, nil
		}
	}

	vehicles, err := fetch(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	if s.cacheManager != nil {
		ttl := s.cacheConfig.GetTTLForDataType("vehicle_list")
		if err := s.cacheManager.SetVehicleList(ctx, key, vehicles, ttl, tag); err != nil {
			s.log.WithError(err).WithField("key", key).Warn("Failed to cache vehicle list")
		}
	}
	return vehicles, nil
}

// Get returns a vehicle the actor may read.
func (s *VehicleService) Get(ctx context.Context, actor Actor, id string) (*models.Vehicle, error) {
	return s.Authorize(ctx, actor, id, AccessRead)
}

// Authorize loads the vehicle and checks that actor holds access on it.
func (s *VehicleService) Authorize(ctx context.Context, actor Actor, id string, access Access) (*models.Vehicle, error) {
	vehicle, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Can(access, vehicle) {
		return nil, ErrForbidden
	}
	return vehicle, nil
}

func (s *VehicleService) find(ctx context.Context, id string) (*models.Vehicle, error) {
	if s.cacheManager != nil {
		cached, err := s.cacheManager.GetVehicle(ctx, id)
		if err != nil {
			s.log.WithError(err).WithVehicleID(id).Warn("Vehicle cache read failed")
		}
		s.metrics.CacheLookup("vehicle", cached != nil)
		if cached != nil {
			return cached, nil
		}
	}

	vehicle, err := s.vehicleRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cacheManager != nil {
		ttl := s.cacheConfig.GetTTLForDataType("vehicle")
		if err := s.cacheManager.SetVehicle(ctx, vehicle, ttl); err != nil {
			s.log.WithError(err).WithVehicleID(id).Warn("Failed to cache vehicle")
		}
	}
	return vehicle, nil
}

// Update overwrites the editable fields. The owner and creation time are kept.
func (s *VehicleService) Update(ctx context.Context, actor Actor, id string, in VehicleInput) (*models.Vehicle, error) {
	current, err := s.Authorize(ctx, actor, id, AccessManage)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, &in); err != nil {
		return nil, err
	}

	replacement := *current
	replacement.Make = in.Make
	replacement.Model = in.Model
	replacement.Year = in.Year
	replacement.VIN = in.VIN
	replacement.PlateNumber = in.PlateNumber
	replacement.EngineType = in.EngineType
	replacement.Transmission = in.Transmission
	replacement.Drivetrain = in.Drivetrain
	replacement.MechanicID = in.MechanicID
	if in.Mileage != nil {
		replacement.Mileage = *in.Mileage
	}

	updated, err := s.vehicleRepo.Replace(ctx, id, &replacement)
	if err != nil {
		if errors.Is(err, repository.ErrVehicleNotFound) {
			return nil, err
		}
		s.log.WithVehicleID(id).WithError(err).Error("Failed to update vehicle")
		return nil, saveError("vehicle", err)
	}

	s.invalidate(ctx, id, current.OwnerID, current.MechanicID, updated.MechanicID)
	return updated, nil
}

// Delete removes the vehicle. Maintenance records are left in place; a
// second delete of the same id reports ErrVehicleNotFound.
func (s *VehicleService) Delete(ctx context.Context, actor Actor, id string) error {
	vehicle, err := s.Authorize(ctx, actor, id, AccessManage)
	if err != nil {
		return err
	}

	if err := s.vehicleRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrVehicleNotFound) {
			s.invalidate(ctx, id, vehicle.OwnerID, vehicle.MechanicID)
			return err
		}
		s.log.WithVehicleID(id).WithError(err).Error("Failed to delete vehicle")
		return deleteError("vehicle", err)
	}

	s.invalidate(ctx, id, vehicle.OwnerID, vehicle.MechanicID)
	s.log.WithUserID(actor.UserID).WithVehicleID(id).Info("Vehicle deleted; maintenance records kept")
	return nil
}

// SyncMileage sets the vehicle's mileage to the value of a new record. A
// lower value is accepted and reported as decreased.
func (s *VehicleService) SyncMileage(ctx context.Context, vehicle *models.Vehicle, mileage int) (decreased bool, err error) {
	id := vehicle.ID.Hex()
	if err := s.vehicleRepo.UpdateMileage(ctx, id, mileage); err != nil {
		return false, err
	}
	s.invalidate(ctx, id, vehicle.OwnerID, vehicle.MechanicID)
	return mileage < vehicle.Mileage, nil
}

// invalidate drops cached entries for the vehicle and the lists of the
// given people. Empty ids are skipped.
func (s *VehicleService) invalidate(ctx context.Context, vehicleID, ownerID string, mechanicIDs ...string) {
	if s.cacheManager == nil {
		return
	}

	tags := []string{cache.VehicleTag(vehicleID), cache.OwnerTag(ownerID)}
	for _, m := range mechanicIDs {
		if m != "" {
			tags = append(tags, cache.MechanicTag(m))
		}
	}
	if err := s.cacheManager.InvalidateByTag(ctx, tags...); err != nil {
		s.log.WithError(err).WithVehicleID(vehicleID).Warn("Failed to invalidate vehicle cache")
	}
}
