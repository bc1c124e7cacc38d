package services

import (
	"garage-backend/internal/models"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID string
	Role   models.Role
}

type Access int

const (
	// AccessRead allows viewing a vehicle and its history.
	AccessRead Access = iota
	// AccessLog allows adding maintenance records.
	AccessLog
	// AccessManage allows editing and deleting the vehicle.
	AccessManage
)

// Can reports whether actor holds access on v. Owners hold every level on
// their vehicles. The assigned mechanic may read and log but not manage.
func (a Actor) Can(access Access, v *models.Vehicle) bool {
	if v.IsOwnedBy(a.UserID) {
		return true
	}
	if a.Role == models.RoleMechanic && v.IsAssignedTo(a.UserID) {
		return access != AccessManage
	}
	return false
}
