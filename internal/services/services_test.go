package services

import (
	"context"
	"testing"

	"garage-backend/internal/maintenance"
	"garage-backend/internal/models"
	"garage-backend/internal/repository/memory"
	"garage-backend/pkg/jwt"
	"garage-backend/pkg/logger"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store       *memory.Store
	vehicles    *VehicleService
	maintenance *MaintenanceService
	auth        *AuthService
	users       *UserService
	live        *LiveService
	logs        *test.Hook

	owner    Actor
	mechanic Actor
	stranger Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	l, hook := test.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	log := logger.NewWithLogrus(l)

	store := memory.NewStore(nil)
	vehicles := NewVehicleService(store.Vehicles(), store.Users(), log)
	records := NewMaintenanceService(store.Maintenance(), vehicles, log)

	f := &fixture{
		store:       store,
		vehicles:    vehicles,
		maintenance: records,
		auth:        NewAuthService(store.Users(), jwt.NewJWTUtil("test-secret", "1h"), jwt.NewMemoryRevocationStore(), log),
		users:       NewUserService(store.Users(), log),
		live:        NewLiveService(store.Vehicles(), store.Users(), vehicles, records, log),
		logs:        hook,
	}
	f.owner = f.addUser(t, "owner@example.com", models.RoleUser)
	f.mechanic = f.addUser(t, "mechanic@example.com", models.RoleMechanic)
	f.stranger = f.addUser(t, "stranger@example.com", models.RoleUser)
	return f
}

func (f *fixture) addUser(t *testing.T, email string, role models.Role) Actor {
	t.Helper()
	u, err := f.store.Users().Create(context.Background(), &models.User{
		Email:     email,
		Role:      role,
		FirstName: "Test",
		LastName:  string(role),
	})
	require.NoError(t, err)
	return Actor{UserID: u.ID.Hex(), Role: role}
}

func validVehicleInput() VehicleInput {
	return VehicleInput{
		Make:         "Volkswagen",
		Model:        "Golf",
		Year:         2018,
		VIN:          "wvwzzz1kzjw000001",
		PlateNumber:  "ab 123 cd",
		EngineType:   "Diesel",
		Transmission: "Manual",
		Drivetrain:   "FWD",
	}
}

func (f *fixture) addVehicle(t *testing.T, mileage int) *models.Vehicle {
	t.Helper()
	in := validVehicleInput()
	in.Mileage = &mileage
	in.MechanicID = f.mechanic.UserID
	v, err := f.vehicles.Create(context.Background(), f.owner, in)
	require.NoError(t, err)
	return v
}

func oilDraft(date string, mileage int, labor, parts float64) maintenance.Draft {
	return maintenance.Draft{
		Type:      models.MaintenanceOilChange,
		Date:      date,
		Mileage:   mileage,
		LaborCost: &labor,
		PartsCost: &parts,
		Details: &models.OilChangeDetails{
			OilType:     "5W-30",
			OilBrand:    "Castrol",
			OilQuantity: 4.5,
		},
	}
}

// entries returns the logged messages at level.
func (f *fixture) entries(level logrus.Level) []string {
	var msgs []string
	for _, e := range f.logs.AllEntries() {
		if e.Level == level {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}
