package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Vehicle struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Make         string             `bson:"make" json:"make"`
	Model        string             `bson:"model" json:"model"`
	Year         int                `bson:"year" json:"year"`
	VIN          string             `bson:"vin" json:"vin"`
	PlateNumber  string             `bson:"plate_number" json:"plateNumber"`
	EngineType   string             `bson:"engine_type" json:"engineType"`
	Transmission string             `bson:"transmission" json:"transmission"`
	Drivetrain   string             `bson:"drivetrain" json:"drivetrain"`
	Mileage      int                `bson:"mileage" json:"mileage"`
	OwnerID      string             `bson:"owner_id" json:"ownerId"`
	MechanicID   string             `bson:"mechanic_id,omitempty" json:"mechanicId,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updatedAt"`
}

// IsOwnedBy reports whether userID registered the vehicle.
func (v *Vehicle) IsOwnedBy(userID string) bool {
	return userID != "" && v.OwnerID == userID
}

// IsAssignedTo reports whether userID is the vehicle's mechanic.
func (v *Vehicle) IsAssignedTo(userID string) bool {
	return userID != "" && v.MechanicID == userID
}
