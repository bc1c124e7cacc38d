package routes

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"garage-backend/internal/maintenance"
	"garage-backend/internal/metrics"
	"garage-backend/internal/models"
	"garage-backend/internal/repository/memory"
	"garage-backend/internal/services"
	"garage-backend/pkg/jwt"
	"garage-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success   bool                         `json:"success"`
	Message   string                       `json:"message"`
	Data      json.RawMessage              `json:"data"`
	Fields    maintenance.ValidationErrors `json:"fields"`
	Retryable bool                         `json:"retryable"`
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	store  *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.Discard()
	store := memory.NewStore(nil)
	vehicles := services.NewVehicleService(store.Vehicles(), store.Users(), log)
	records := services.NewMaintenanceService(store.Maintenance(), vehicles, log)

	router := gin.New()
	SetupRoutes(router, Dependencies{
		Auth:        services.NewAuthService(store.Users(), jwt.NewJWTUtil("test-secret", "1h"), nil, log),
		Users:       services.NewUserService(store.Users(), log),
		Vehicles:    vehicles,
		Maintenance: records,
		Metrics:     metrics.New(),
		Log:         log,
	})

	return &testServer{t: t, router: router, store: store}
}

func (s *testServer) do(method, path, token string, body interface{}) (int, envelope) {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w.Code, env
}

func (s *testServer) register(email string, role models.Role, garage string) (string, string) {
	s.t.Helper()

	code, env := s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email":      email,
		"password":   "secret123",
		"firstName":  "Test",
		"lastName":   "User",
		"role":       role,
		"garageName": garage,
	})
	require.Equal(s.t, http.StatusCreated, code, env.Message)

	var resp services.LoginResponse
	require.NoError(s.t, json.Unmarshal(env.Data, &resp))
	return resp.Token, resp.User.ID
}

func vehicleBody(mechanicID string) gin.H {
	return gin.H{
		"make":         "BMW",
		"model":        "3 Series",
		"year":         2016,
		"plateNumber":  "ke 123 ab",
		"engineType":   "Petrol",
		"transmission": "Automatic",
		"drivetrain":   "RWD",
		"mechanicId":   mechanicID,
	}
}

func recordBody(mileage int) gin.H {
	return gin.H{
		"type":      "brake-service",
		"date":      "2024-03-02",
		"mileage":   mileage,
		"laborCost": 80,
		"partsCost": 120.5,
		"details":   gin.H{"axle": "rear", "padsReplaced": true},
	}
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.register("owner@example.com", models.RoleUser, "")

	code, env := s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email": "OWNER@example.com", "password": "secret123", "firstName": "A", "lastName": "B",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.True(t, env.Fields.Has("email"))

	code, env = s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email": "mech@example.com", "password": "secret123", "firstName": "A", "lastName": "B", "role": "mechanic",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.True(t, env.Fields.Has("garageName"))

	// unknown email and wrong password look the same
	_, wrongPassword := s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "owner@example.com", "password": "nope"})
	code, unknownEmail := s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "ghost@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, wrongPassword, unknownEmail)
	assert.Equal(t, "Invalid credentials", unknownEmail.Message)

	code, env = s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "Owner@Example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, code)
	var login services.LoginResponse
	require.NoError(t, json.Unmarshal(env.Data, &login))
	assert.Equal(t, "/dashboard", login.LandingPath)

	code, env = s.do(http.MethodPatch, "/api/v1/auth/profile", token, gin.H{"phoneNumber": "+254700000000"})
	require.Equal(t, http.StatusOK, code)
	var profile models.AuthUser
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.Equal(t, "+254700000000", profile.PhoneNumber)

	code, _ = s.do(http.MethodPost, "/api/v1/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(http.MethodGet, "/api/v1/auth/profile", token, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestVehicleAndMaintenanceFlow(t *testing.T) {
	s := newTestServer(t)
	owner, _ := s.register("owner@example.com", models.RoleUser, "")
	mechanic, mechanicID := s.register("mechanic@example.com", models.RoleMechanic, "Joe's Garage")
	stranger, _ := s.register("stranger@example.com", models.RoleUser, "")

	code, env := s.do(http.MethodGet, "/api/v1/mechanics", owner, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), "Joe's Garage")

	code, env = s.do(http.MethodPost, "/api/v1/vehicles", owner, vehicleBody(mechanicID))
	require.Equal(t, http.StatusCreated, code, env.Message)
	var vehicle models.Vehicle
	require.NoError(t, json.Unmarshal(env.Data, &vehicle))
	assert.Zero(t, vehicle.Mileage)
	assert.Equal(t, "KE 123 AB", vehicle.PlateNumber)
	path := "/api/v1/vehicles/" + vehicle.ID.Hex()

	code, _ = s.do(http.MethodPost, "/api/v1/vehicles", mechanic, vehicleBody(""))
	assert.Equal(t, http.StatusForbidden, code)

	code, env = s.do(http.MethodGet, "/api/v1/vehicles", mechanic, nil)
	require.Equal(t, http.StatusOK, code)
	var assigned []*models.Vehicle
	require.NoError(t, json.Unmarshal(env.Data, &assigned))
	assert.Len(t, assigned, 1)

	// the assigned mechanic logs a record, which syncs the mileage
	code, env = s.do(http.MethodPost, path+"/maintenance", mechanic, recordBody(88000))
	require.Equal(t, http.StatusCreated, code, env.Message)
	var record models.MaintenanceRecord
	require.NoError(t, json.Unmarshal(env.Data, &record))
	assert.Equal(t, 200.5, record.TotalCost)

	code, env = s.do(http.MethodPost, path+"/maintenance", owner, gin.H{
		"type": "other", "date": "2024-03-02", "mileage": 0, "details": gin.H{"description": "  "},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.True(t, env.Fields.Has("mileage"))
	assert.True(t, env.Fields.Has("details.description"))

	code, env = s.do(http.MethodGet, path, owner, nil)
	require.Equal(t, http.StatusOK, code)
	var overview services.Overview
	require.NoError(t, json.Unmarshal(env.Data, &overview))
	assert.Equal(t, 88000, overview.Vehicle.Mileage)
	assert.Equal(t, 1, overview.Summary.ServiceCount)
	assert.Len(t, overview.Recent, 1)
	assert.False(t, overview.HasMore)

	code, env = s.do(http.MethodGet, path+"/summary", mechanic, nil)
	require.Equal(t, http.StatusOK, code)
	var summary maintenance.Summary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, 200.5, summary.TotalSpent)
	assert.Equal(t, "2024-03-02", summary.LastServiceDate)

	code, _ = s.do(http.MethodGet, path, stranger, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.do(http.MethodPut, path, mechanic, vehicleBody(mechanicID))
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.do(http.MethodGet, "/api/v1/vehicles/not-an-id", owner, nil)
	assert.Equal(t, http.StatusNotFound, code)

	update := vehicleBody(mechanicID)
	update["mileage"] = 90000
	code, env = s.do(http.MethodPut, path, owner, update)
	require.Equal(t, http.StatusOK, code, env.Message)

	code, _ = s.do(http.MethodDelete, path, owner, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(http.MethodDelete, path, owner, nil)
	assert.Equal(t, http.StatusNotFound, code)

	ids, err := s.store.Maintenance().DistinctVehicleIDs(t.Context())
	require.NoError(t, err)
	assert.Contains(t, ids, vehicle.ID.Hex())
}

func TestWriteFailureIsRetryable(t *testing.T) {
	s := newTestServer(t)
	owner, _ := s.register("owner@example.com", models.RoleUser, "")

	code, env := s.do(http.MethodPost, "/api/v1/vehicles", owner, vehicleBody(""))
	require.Equal(t, http.StatusCreated, code)
	var vehicle models.Vehicle
	require.NoError(t, json.Unmarshal(env.Data, &vehicle))

	s.store.SetCreateMaintenanceError(errors.New("connection reset"))
	code, env = s.do(http.MethodPost, "/api/v1/vehicles/"+vehicle.ID.Hex()+"/maintenance", owner, recordBody(1000))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.True(t, env.Retryable)
	assert.Equal(t, "Failed to save maintenance. Please try again.", env.Message)
	assert.NotContains(t, env.Message, "connection reset")
}

func TestValidateDraft(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(http.MethodPost, "/api/v1/maintenance/validate", "", gin.H{
		"type":      "oil-change",
		"date":      "2024-03-02",
		"mileage":   1000,
		"laborCost": -50,
		"partsCost": 30,
		"details":   gin.H{"oilType": "5W", "oilBrand": "Castrol", "oilQuantity": 4},
	})
	require.Equal(t, http.StatusOK, code)

	var eval struct {
		State       maintenance.State            `json:"state"`
		Errors      maintenance.ValidationErrors `json:"errors"`
		TotalCost   float64                      `json:"totalCost"`
		OilTypeHint string                       `json:"oilTypeHint"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &eval))
	assert.Equal(t, maintenance.StateFieldsIncomplete, eval.State)
	assert.True(t, eval.Errors.Has("details.oilType"))
	assert.False(t, eval.Errors.Has("laborCost"))
	assert.Zero(t, eval.TotalCost)
	assert.Equal(t, maintenance.OilTypeFormatHint, eval.OilTypeHint)

	code, env = s.do(http.MethodPost, "/api/v1/maintenance/validate", "", gin.H{"date": "2024-03-02"})
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &eval))
	assert.Equal(t, maintenance.StateNoTypeSelected, eval.State)
}

func TestCatalogAndMetrics(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(http.MethodGet, "/api/v1/catalog", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), "Volkswagen")
	assert.Contains(t, string(env.Data), "chain/belt-service")
	assert.Contains(t, string(env.Data), "Liqui Moly")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/v1/vehicles", "/api/v1/mechanics", "/api/v1/auth/profile"} {
		code, _ := s.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, code, path)
	}
}
