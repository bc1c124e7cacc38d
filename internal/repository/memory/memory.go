// Package memory is an in-process store implementing the repository
// interfaces. It backs tests and local runs without MongoDB, and can inject
// the failures the services must tolerate.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"garage-backend/internal/models"
	"garage-backend/internal/repository"
	"garage-backend/internal/watch"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	_ repository.VehicleRepository     = (*Vehicles)(nil)
	_ repository.MaintenanceRepository = (*Maintenance)(nil)
	_ repository.UserRepository        = (*Users)(nil)
)

// Store holds every collection behind a single lock.
type Store struct {
	mu          sync.RWMutex
	hub         *watch.Hub
	vehicles    map[string]*models.Vehicle
	records     map[string]*models.MaintenanceRecord
	users       map[string]*models.User
	recordOrder []string

	orderedQueryErr   error
	orderedQueryCalls int
	mileageErr        error
	createRecordErr   error
	createVehicleErr  error
}

func NewStore(hub *watch.Hub) *Store {
	if hub == nil {
		hub = watch.NewHub()
	}
	return &Store{
		hub:      hub,
		vehicles: make(map[string]*models.Vehicle),
		records:  make(map[string]*models.MaintenanceRecord),
		users:    make(map[string]*models.User),
	}
}

func (s *Store) Hub() *watch.Hub { return s.hub }

func (s *Store) Vehicles() *Vehicles { return &Vehicles{s} }
func (s *Store) Maintenance() *Maintenance { return &Maintenance{s} }
func (s *Store) Users() *Users { return &Users{s} }

// SetOrderedQueryError makes every ordered maintenance query fail with err.
func (s *Store) SetOrderedQueryError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderedQueryErr = err
}

// OrderedQueryCalls counts ordered maintenance queries, failed ones included.
func (s *Store) OrderedQueryCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orderedQueryCalls
}

func (s *Store) SetMileageUpdateError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mileageErr = err
}

func (s *Store) SetCreateMaintenanceError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createRecordErr = err
}

func (s *Store) SetCreateVehicleError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createVehicleErr = err
}

func copyVehicle(v *models.Vehicle) *models.Vehicle {
	c := *v
	return &c
}

func copyUser(u *models.User) *models.User {
	c := *u
	return &c
}

// Records share their Details pointer; stored details are never mutated.
func copyRecord(r *models.MaintenanceRecord) *models.MaintenanceRecord {
	c := *r
	return &c
}

type Vehicles struct{ s *Store }

func (r *Vehicles) Create(ctx context.Context, vehicle *models.Vehicle) (*models.Vehicle, error) {
	r.s.mu.Lock()
	if r.s.createVehicleErr != nil {
		err := r.s.createVehicleErr
		r.s.mu.Unlock()
		return nil, err
	}
	now := time.Now()
	vehicle.ID = primitive.NewObjectID()
	vehicle.CreatedAt = now
	vehicle.UpdatedAt = now
	r.s.vehicles[vehicle.ID.Hex()] = copyVehicle(vehicle)
	r.s.mu.Unlock()

	r.publish(vehicle)
	return vehicle, nil
}

func (r *Vehicles) FindByID(ctx context.Context, id string) (*models.Vehicle, error) {
	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return nil, repository.ErrInvalidID
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	v, ok := r.s.vehicles[id]
	if !ok {
		return nil, repository.ErrVehicleNotFound
	}
	return copyVehicle(v), nil
}

func (r *Vehicles) ListByOwner(ctx context.Context, ownerID string) ([]*models.Vehicle, error) {
	return r.list(func(v *models.Vehicle) bool { return v.OwnerID == ownerID }), nil
}

func (r *Vehicles) ListByMechanic(ctx context.Context, mechanicID string) ([]*models.Vehicle, error) {
	return r.list(func(v *models.Vehicle) bool { return mechanicID != "" && v.MechanicID == mechanicID }), nil
}

func (r *Vehicles) list(match func(*models.Vehicle) bool) []*models.Vehicle {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	vehicles := []*models.Vehicle{}
	for _, v := range r.s.vehicles {
		if match(v) {
			vehicles = append(vehicles, copyVehicle(v))
		}
	}
	sort.Slice(vehicles, func(i, j int) bool {
		if vehicles[i].CreatedAt.Equal(vehicles[j].CreatedAt) {
			return vehicles[i].ID.Hex() > vehicles[j].ID.Hex()
		}
		return vehicles[i].CreatedAt.After(vehicles[j].CreatedAt)
	})
	return vehicles
}

func (r *Vehicles) Replace(ctx context.Context, id string, vehicle *models.Vehicle) (*models.Vehicle, error) {
	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return nil, repository.ErrInvalidID
	}

	r.s.mu.Lock()
	stored, ok := r.s.vehicles[id]
	if !ok {
		r.s.mu.Unlock()
		return nil, repository.ErrVehicleNotFound
	}
	previousMechanic := stored.MechanicID

	stored.Make = vehicle.Make
	stored.Model = vehicle.Model
	stored.Year = vehicle.Year
	stored.VIN = vehicle.VIN
	stored.PlateNumber = vehicle.PlateNumber
	stored.EngineType = vehicle.EngineType
	stored.Transmission = vehicle.Transmission
	stored.Drivetrain = vehicle.Drivetrain
	stored.Mileage = vehicle.Mileage
	stored.MechanicID = vehicle.MechanicID
	stored.UpdatedAt = time.Now()
	updated := copyVehicle(stored)
	r.s.mu.Unlock()

	if previousMechanic != "" && previousMechanic != updated.MechanicID {
		r.s.hub.Publish(watch.MechanicVehiclesTopic(previousMechanic))
	}
	r.publish(updated)
	return updated, nil
}

func (r *Vehicles) UpdateMileage(ctx context.Context, id string, mileage int) error {
	r.s.mu.Lock()
	if r.s.mileageErr != nil {
		err := r.s.mileageErr
		r.s.mu.Unlock()
		return err
	}
	stored, ok := r.s.vehicles[id]
	if !ok {
		r.s.mu.Unlock()
		return repository.ErrVehicleNotFound
	}
	stored.Mileage = mileage
	stored.UpdatedAt = time.Now()
	updated := copyVehicle(stored)
	r.s.mu.Unlock()

	r.publish(updated)
	return nil
}

func (r *Vehicles) Delete(ctx context.Context, id string) error {
	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return repository.ErrInvalidID
	}

	r.s.mu.Lock()
	stored, ok := r.s.vehicles[id]
	if !ok {
		r.s.mu.Unlock()
		return repository.ErrVehicleNotFound
	}
	delete(r.s.vehicles, id)
	r.s.mu.Unlock()

	r.publish(stored)
	return nil
}

func (r *Vehicles) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	existing := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := r.s.vehicles[id]; ok {
			existing[id] = true
		}
	}
	return existing, nil
}

func (r *Vehicles) WatchByOwner(ownerID string, fn func([]*models.Vehicle, error)) *watch.Subscription {
	return watch.Query(r.s.hub, watch.OwnerVehiclesTopic(ownerID), func() ([]*models.Vehicle, error) {
		return r.ListByOwner(context.Background(), ownerID)
	}, fn)
}

func (r *Vehicles) WatchByMechanic(mechanicID string, fn func([]*models.Vehicle, error)) *watch.Subscription {
	return watch.Query(r.s.hub, watch.MechanicVehiclesTopic(mechanicID), func() ([]*models.Vehicle, error) {
		return r.ListByMechanic(context.Background(), mechanicID)
	}, fn)
}

func (r *Vehicles) WatchVehicle(id string, fn func(*models.Vehicle, error)) *watch.Subscription {
	return watch.Query(r.s.hub, watch.VehicleTopic(id), func() (*models.Vehicle, error) {
		return r.FindByID(context.Background(), id)
	}, fn)
}

func (r *Vehicles) publish(v *models.Vehicle) {
	topics := []string{watch.VehicleTopic(v.ID.Hex()), watch.OwnerVehiclesTopic(v.OwnerID)}
	if v.MechanicID != "" {
		topics = append(topics, watch.MechanicVehiclesTopic(v.MechanicID))
	}
	r.s.hub.Publish(topics...)
}

type Maintenance struct{ s *Store }

func (r *Maintenance) Create(ctx context.Context, record *models.MaintenanceRecord) (*models.MaintenanceRecord, error) {
	r.s.mu.Lock()
	if r.s.createRecordErr != nil {
		err := r.s.createRecordErr
		r.s.mu.Unlock()
		return nil, err
	}
	record.ID = primitive.NewObjectID()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	r.s.records[record.ID.Hex()] = copyRecord(record)
	r.s.recordOrder = append(r.s.recordOrder, record.ID.Hex())
	r.s.mu.Unlock()

	r.s.hub.Publish(watch.MaintenanceTopic(record.VehicleID))
	return record, nil
}

func (r *Maintenance) ListByVehicleOrdered(ctx context.Context, vehicleID string) ([]*models.MaintenanceRecord, error) {
	r.s.mu.Lock()
	r.s.orderedQueryCalls++
	err := r.s.orderedQueryErr
	r.s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	records := r.byVehicle(vehicleID)
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date > records[j].Date
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// ListByVehicle returns records in insertion order.
func (r *Maintenance) ListByVehicle(ctx context.Context, vehicleID string) ([]*models.MaintenanceRecord, error) {
	return r.byVehicle(vehicleID), nil
}

func (r *Maintenance) byVehicle(vehicleID string) []*models.MaintenanceRecord {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	records := []*models.MaintenanceRecord{}
	for _, id := range r.s.recordOrder {
		if rec := r.s.records[id]; rec.VehicleID == vehicleID {
			records = append(records, copyRecord(rec))
		}
	}
	return records
}

func (r *Maintenance) CountByVehicle(ctx context.Context, vehicleID string) (int64, error) {
	return int64(len(r.byVehicle(vehicleID))), nil
}

func (r *Maintenance) DistinctVehicleIDs(ctx context.Context) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	seen := make(map[string]bool)
	ids := []string{}
	for _, id := range r.s.recordOrder {
		vid := r.s.records[id].VehicleID
		if !seen[vid] {
			seen[vid] = true
			ids = append(ids, vid)
		}
	}
	return ids, nil
}

func (r *Maintenance) WatchByVehicle(vehicleID string, fn func()) *watch.Subscription {
	return watch.Watch(r.s.hub, watch.MaintenanceTopic(vehicleID), fn)
}

type Users struct{ s *Store }

func (r *Users) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(user.Email))
	for _, u := range r.s.users {
		if u.Email == email {
			return nil, repository.ErrEmailTaken
		}
	}

	now := time.Now()
	user.ID = primitive.NewObjectID()
	user.Email = email
	user.CreatedAt = now
	user.UpdatedAt = now
	r.s.users[user.ID.Hex()] = copyUser(user)
	return user, nil
}

func (r *Users) FindByID(ctx context.Context, id string) (*models.User, error) {
	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return nil, repository.ErrInvalidID
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return copyUser(u), nil
}

func (r *Users) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.s.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *Users) UpdateProfile(ctx context.Context, id string, profile repository.ProfileUpdate) (*models.User, error) {
	r.s.mu.Lock()
	u, ok := r.s.users[id]
	if !ok {
		r.s.mu.Unlock()
		return nil, repository.ErrUserNotFound
	}
	profile.Apply(u)
	u.UpdatedAt = time.Now()
	updated := copyUser(u)
	r.s.mu.Unlock()

	r.s.hub.Publish(watch.UserTopic(id))
	return updated, nil
}

func (r *Users) TouchLastLogin(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	now := time.Now()
	u.LastLogin = &now
	return nil
}

func (r *Users) ListByRole(ctx context.Context, role models.Role) ([]*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	users := []*models.User{}
	for _, u := range r.s.users {
		if u.Role == role {
			users = append(users, copyUser(u))
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].LastName != users[j].LastName {
			return users[i].LastName < users[j].LastName
		}
		return users[i].FirstName < users[j].FirstName
	})
	return users, nil
}

func (r *Users) WatchUser(id string, fn func(*models.User, error)) *watch.Subscription {
	return watch.Query(r.s.hub, watch.UserTopic(id), func() (*models.User, error) {
		return r.FindByID(context.Background(), id)
	}, fn)
}
