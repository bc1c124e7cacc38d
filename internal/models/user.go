package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Role string

const (
	RoleUser     Role = "user"
	RoleMechanic Role = "mechanic"
)

func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleMechanic
}

// LandingPath is where a client should route a freshly signed-in user.
func (r Role) LandingPath() string {
	if r == RoleMechanic {
		return "/mechanic/dashboard"
	}
	return "/dashboard"
}

type User struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email       string             `bson:"email" json:"email"`
	Password    string             `bson:"password" json:"-"`
	Role        Role               `bson:"role" json:"role"`
	FirstName   string             `bson:"first_name" json:"firstName"`
	LastName    string             `bson:"last_name" json:"lastName"`
	PhoneNumber string             `bson:"phone_number,omitempty" json:"phoneNumber,omitempty"`
	Address     string             `bson:"address,omitempty" json:"address,omitempty"`
	GarageName  string             `bson:"garage_name,omitempty" json:"garageName,omitempty"`
	LastLogin   *time.Time         `bson:"last_login,omitempty" json:"lastLogin,omitempty"`
	CreatedAt   time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updatedAt"`
}

type AuthUser struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Address     string `json:"address,omitempty"`
	GarageName  string `json:"garageName,omitempty"`
	Role        Role   `json:"role"`
}

func (u *User) ToAuthUser() *AuthUser {
	return &AuthUser{
		ID:          u.ID.Hex(),
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		PhoneNumber: u.PhoneNumber,
		Address:     u.Address,
		GarageName:  u.GarageName,
		Role:        u.Role,
	}
}

// Mechanic is the directory entry shown when assigning a vehicle.
type Mechanic struct {
	ID         string `json:"id"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	GarageName string `json:"garageName,omitempty"`
}
