// Package repository persists users, vehicles and maintenance records and
// publishes a change notification after every successful write so live
// queries can refresh.
package repository

import (
	"context"
	"errors"

	"garage-backend/internal/models"
	"garage-backend/internal/watch"
)

var (
	ErrVehicleNotFound = errors.New("vehicle not found")
	ErrRecordNotFound  = errors.New("maintenance record not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidID       = errors.New("invalid ID")
	ErrEmailTaken      = errors.New("email already registered")

	// ErrIndexUnavailable means the ordered maintenance query cannot run
	// because its supporting index is missing or still building.
	ErrIndexUnavailable = errors.New("ordered query index unavailable")
)

type VehicleRepository interface {
	Create(ctx context.Context, vehicle *models.Vehicle) (*models.Vehicle, error)
	FindByID(ctx context.Context, id string) (*models.Vehicle, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Vehicle, error)
	ListByMechanic(ctx context.Context, mechanicID string) ([]*models.Vehicle, error)
	// Replace overwrites every editable field of the stored vehicle.
	Replace(ctx context.Context, id string, vehicle *models.Vehicle) (*models.Vehicle, error)
	UpdateMileage(ctx context.Context, id string, mileage int) error
	Delete(ctx context.Context, id string) error
	ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error)

	WatchByOwner(ownerID string, fn func([]*models.Vehicle, error)) *watch.Subscription
	WatchByMechanic(mechanicID string, fn func([]*models.Vehicle, error)) *watch.Subscription
	WatchVehicle(id string, fn func(*models.Vehicle, error)) *watch.Subscription
}

type MaintenanceRepository interface {
	Create(ctx context.Context, record *models.MaintenanceRecord) (*models.MaintenanceRecord, error)
	// ListByVehicleOrdered returns records newest first, sorted by the store.
	// It fails with ErrIndexUnavailable when the store cannot sort.
	ListByVehicleOrdered(ctx context.Context, vehicleID string) ([]*models.MaintenanceRecord, error)
	// ListByVehicle returns records in no particular order.
	ListByVehicle(ctx context.Context, vehicleID string) ([]*models.MaintenanceRecord, error)
	DistinctVehicleIDs(ctx context.Context) ([]string, error)
	CountByVehicle(ctx context.Context, vehicleID string) (int64, error)

	// WatchByVehicle calls fn once right away and again after every record
	// written for the vehicle. Calls never overlap. Reading is left to fn so
	// callers can choose their own query.
	WatchByVehicle(vehicleID string, fn func()) *watch.Subscription
}

type UserRepository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, id string, profile ProfileUpdate) (*models.User, error)
	TouchLastLogin(ctx context.Context, id string) error
	ListByRole(ctx context.Context, role models.Role) ([]*models.User, error)

	WatchUser(id string, fn func(*models.User, error)) *watch.Subscription
}

// ProfileUpdate carries the user-editable profile fields. Nil fields are left
// unchanged.
type ProfileUpdate struct {
	FirstName   *string `json:"firstName,omitempty" bson:"first_name,omitempty"`
	LastName    *string `json:"lastName,omitempty" bson:"last_name,omitempty"`
	PhoneNumber *string `json:"phoneNumber,omitempty" bson:"phone_number,omitempty"`
	Address     *string `json:"address,omitempty" bson:"address,omitempty"`
	GarageName  *string `json:"garageName,omitempty" bson:"garage_name,omitempty"`
}

// Apply copies the set fields onto u.
func (p ProfileUpdate) Apply(u *models.User) {
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.PhoneNumber != nil {
		u.PhoneNumber = *p.PhoneNumber
	}
	if p.Address != nil {
		u.Address = *p.Address
	}
	if p.GarageName != nil {
		u.GarageName = *p.GarageName
	}
}

// IsEmpty reports whether no field is set.
func (p ProfileUpdate) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.PhoneNumber == nil &&
		p.Address == nil && p.GarageName == nil
}
