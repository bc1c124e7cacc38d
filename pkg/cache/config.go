package cache

import "time"

type CacheConfig struct {
	VehicleDataTTL time.Duration `json:"vehicleDataTTL"`
	VehicleListTTL time.Duration `json:"vehicleListTTL"`
	SummaryTTL     time.Duration `json:"summaryTTL"`
	KeyPrefix      string        `json:"keyPrefix"`
	TagPrefix      string        `json:"tagPrefix"`
}

// DefaultCacheConfig keeps entries short-lived; every write invalidates by
// tag, so the TTL only bounds staleness when an invalidation is lost.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		VehicleDataTTL: 5 * time.Minute,
		VehicleListTTL: 2 * time.Minute,
		SummaryTTL:     10 * time.Minute,
		KeyPrefix:      "garage:",
		TagPrefix:      "garage_tag:",
	}
}

// GetTTLForDataType returns the TTL for "vehicle", "vehicle_list" or "summary".
func (c CacheConfig) GetTTLForDataType(dataType string) time.Duration {
	switch dataType {
	case "vehicle_list":
		return c.VehicleListTTL
	case "summary":
		return c.SummaryTTL
	default:
		return c.VehicleDataTTL
	}
}

// tagTTL outlives every data TTL so a tag set never expires before its keys.
func (c CacheConfig) tagTTL() time.Duration {
	ttl := c.VehicleDataTTL
	for _, d := range []time.Duration{c.VehicleListTTL, c.SummaryTTL} {
		if d > ttl {
			ttl = d
		}
	}
	return 2 * ttl
}
