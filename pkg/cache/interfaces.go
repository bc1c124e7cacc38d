package cache

import (
	"context"
	"time"

	"garage-backend/internal/maintenance"
	"garage-backend/internal/models"
)

// CacheManager is a read-through cache for vehicles and history summaries.
// A miss is reported as a nil value with a nil error.
type CacheManager interface {
	GetVehicle(ctx context.Context, vehicleID string) (*models.Vehicle, error)
	SetVehicle(ctx context.Context, vehicle *models.Vehicle, ttl time.Duration) error
	InvalidateVehicle(ctx context.Context, vehicleID string) error

	GetVehicleList(ctx context.Context, key string) ([]*models.Vehicle, error)
	SetVehicleList(ctx context.Context, key string, vehicles []*models.Vehicle, ttl time.Duration, tags ...string) error

	GetSummary(ctx context.Context, vehicleID string) (*maintenance.Summary, error)
	SetSummary(ctx context.Context, vehicleID string, summary maintenance.Summary, ttl time.Duration) error

	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// Tags group keys so one write can drop every entry it affects.
	TagKey(ctx context.Context, key string, tags ...string) error
	InvalidateByTag(ctx context.Context, tags ...string) error

	GetCacheStats(ctx context.Context) CacheStats
	HealthCheck(ctx context.Context) error
	Close() error
}

type CacheStats struct {
	HitRate       float64 `json:"hitRate"`
	MissRate      float64 `json:"missRate"`
	MemoryUsage   int64   `json:"memoryUsage"`
	KeyCount      int     `json:"keyCount"`
	EvictionCount int     `json:"evictionCount"`
	TotalHits     int64   `json:"totalHits"`
	TotalMisses   int64   `json:"totalMisses"`
}

func VehicleTag(vehicleID string) string { return "vehicle:" + vehicleID }
func OwnerTag(ownerID string) string { return "owner:" + ownerID }
func MechanicTag(mechanicID string) string { return "mechanic:" + mechanicID }
