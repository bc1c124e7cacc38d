package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"garage-backend/internal/maintenance"
	"garage-backend/internal/models"
	"garage-backend/pkg/logger"
	"garage-backend/pkg/redis"

	goredis "github.com/redis/go-redis/v9"
)

// RedisCacheManager stores JSON values in Redis and tracks tag membership in
// Redis sets.
type RedisCacheManager struct {
	client *redis.Client
	config CacheConfig
	log    *logger.Logger
	stats  *cacheStats
}

type cacheStats struct {
	mu            sync.RWMutex
	totalHits     int64
	totalMisses   int64
	evictionCount int64
}

func NewRedisCacheManager(client *redis.Client, config CacheConfig, log *logger.Logger) *RedisCacheManager {
	if log == nil {
		log = logger.Discard()
	}
	return &RedisCacheManager{
		client: client,
		config: config,
		log:    log.WithField("component", "cache"),
		stats:  &cacheStats{},
	}
}

func (r *RedisCacheManager) GetVehicle(ctx context.Context, vehicleID string) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	found, err := r.getJSON(ctx, r.buildKey("vehicle", vehicleID), &vehicle)
	if err != nil || !found {
		return nil, err
	}
	return &vehicle, nil
}

func (r *RedisCacheManager) SetVehicle(ctx context.Context, vehicle *models.Vehicle, ttl time.Duration) error {
	id := vehicle.ID.Hex()
	key := r.buildKey("vehicle", id)
	if err := r.setJSON(ctx, key, vehicle, ttl); err != nil {
		return err
	}

	tags := []string{VehicleTag(id), OwnerTag(vehicle.OwnerID)}
	if vehicle.MechanicID != "" {
		tags = append(tags, MechanicTag(vehicle.MechanicID))
	}
	r.tagQuietly(ctx, key, tags...)
	return nil
}

func (r *RedisCacheManager) InvalidateVehicle(ctx context.Context, vehicleID string) error {
	return r.InvalidateByTag(ctx, VehicleTag(vehicleID))
}

func (r *RedisCacheManager) GetVehicleList(ctx context.Context, key string) ([]*models.Vehicle, error) {
	var vehicles []*models.Vehicle
	found, err := r.getJSON(ctx, r.buildKey("vehicle_list", key), &vehicles)
	if err != nil || !found {
		return nil, err
	}
	if vehicles == nil {
		vehicles = []*models.Vehicle{}
	}
	return vehicles, nil
}

// SetVehicleList caches a list under key. The list is tagged with every
// member vehicle plus the caller's tags, so an empty list can still be
// dropped by its owner or mechanic tag.
func (r *RedisCacheManager) SetVehicleList(ctx context.Context, key string, vehicles []*models.Vehicle, ttl time.Duration, tags ...string) error {
	cacheKey := r.buildKey("vehicle_list", key)
	if err := r.setJSON(ctx, cacheKey, vehicles, ttl); err != nil {
		return err
	}

	for _, v := range vehicles {
		tags = append(tags, VehicleTag(v.ID.Hex()))
	}
	r.tagQuietly(ctx, cacheKey, tags...)
	return nil
}

func (r *RedisCacheManager) GetSummary(ctx context.Context, vehicleID string) (*maintenance.Summary, error) {
	var summary maintenance.Summary
	found, err := r.getJSON(ctx, r.buildKey("summary", vehicleID), &summary)
	if err != nil || !found {
		return nil, err
	}
	return &summary, nil
}

func (r *RedisCacheManager) SetSummary(ctx context.Context, vehicleID string, summary maintenance.Summary, ttl time.Duration) error {
	key := r.buildKey("summary", vehicleID)
	if err := r.setJSON(ctx, key, summary, ttl); err != nil {
		return err
	}
	r.tagQuietly(ctx, key, VehicleTag(vehicleID))
	return nil
}

// Get decodes a generic value into dest and reports whether it was cached.
func (r *RedisCacheManager) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	return r.getJSON(ctx, r.buildKey("generic", key), dest)
}

func (r *RedisCacheManager) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return r.setJSON(ctx, r.buildKey("generic", key), value, ttl)
}

// Delete removes a full cache key together with its tag memberships.
func (r *RedisCacheManager) Delete(ctx context.Context, key string) error {
	if err := r.removeKeyTags(ctx, key); err != nil {
		r.log.WithError(err).WithField("key", key).Warn("Failed to remove cache key tags")
	}
	return r.client.GetClient().Del(ctx, key).Err()
}

func (r *RedisCacheManager) TagKey(ctx context.Context, key string, tags ...string) error {
	if len(tags) == 0 {
		return nil
	}
	ttl := r.config.tagTTL()
	pipe := r.client.GetClient().Pipeline()

	keyTagsKey := r.buildTagKey("key_tags", key)
	members := make([]interface{}, len(tags))
	for i, tag := range tags {
		members[i] = tag
	}
	pipe.SAdd(ctx, keyTagsKey, members...)
	pipe.Expire(ctx, keyTagsKey, ttl)

	for _, tag := range tags {
		tagKeysKey := r.buildTagKey("tag_keys", tag)
		pipe.SAdd(ctx, tagKeysKey, key)
		pipe.Expire(ctx, tagKeysKey, ttl)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// InvalidateByTag drops every key carrying any of tags.
func (r *RedisCacheManager) InvalidateByTag(ctx context.Context, tags ...string) error {
	client := r.client.GetClient()
	var keys []string
	tagSets := make([]string, 0, len(tags))

	for _, tag := range tags {
		tagKeysKey := r.buildTagKey("tag_keys", tag)
		tagSets = append(tagSets, tagKeysKey)
		members, err := client.SMembers(ctx, tagKeysKey).Result()
		if err != nil {
			return fmt.Errorf("failed to get keys for tag %s: %w", tag, err)
		}
		keys = append(keys, members...)
	}
	if len(keys) == 0 {
		return nil
	}

	pipe := client.Pipeline()
	for _, key := range keys {
		pipe.Del(ctx, key)
		pipe.Del(ctx, r.buildTagKey("key_tags", key))
	}
	pipe.Del(ctx, tagSets...)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to invalidate tags %v: %w", tags, err)
	}

	r.stats.mu.Lock()
	r.stats.evictionCount += int64(len(keys))
	r.stats.mu.Unlock()
	return nil
}

func (r *RedisCacheManager) GetCacheStats(ctx context.Context) CacheStats {
	r.stats.mu.RLock()
	totalHits := r.stats.totalHits
	totalMisses := r.stats.totalMisses
	evictionCount := r.stats.evictionCount
	r.stats.mu.RUnlock()

	total := totalHits + totalMisses
	var hitRate, missRate float64
	if total > 0 {
		hitRate = float64(totalHits) / float64(total)
		missRate = float64(totalMisses) / float64(total)
	}

	client := r.client.GetClient()

	var memoryUsage int64
	if info, err := client.Info(ctx, "memory").Result(); err == nil {
		for _, line := range strings.Split(info, "\n") {
			if strings.HasPrefix(line, "used_memory:") {
				value := strings.TrimSpace(strings.TrimPrefix(line, "used_memory:"))
				if v, err := strconv.ParseInt(value, 10, 64); err == nil {
					memoryUsage = v
				}
			}
		}
	}

	keyCount := 0
	iter := client.Scan(ctx, 0, r.config.KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keyCount++
	}

	return CacheStats{
		HitRate:       hitRate,
		MissRate:      missRate,
		MemoryUsage:   memoryUsage,
		KeyCount:      keyCount,
		EvictionCount: int(evictionCount),
		TotalHits:     totalHits,
		TotalMisses:   totalMisses,
	}
}

func (r *RedisCacheManager) HealthCheck(ctx context.Context) error {
	return r.client.GetClient().Ping(ctx).Err()
}

func (r *RedisCacheManager) Close() error {
	return r.client.Close()
}

func (r *RedisCacheManager) getJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := r.client.GetClient().Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			r.recordMiss()
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s from cache: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}

	r.recordHit()
	return true, nil
}

func (r *RedisCacheManager) setJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := r.client.GetClient().Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write %s to cache: %w", key, err)
	}
	return nil
}

// tagQuietly logs tagging failures; the cached value is still usable until
// its TTL expires.
func (r *RedisCacheManager) tagQuietly(ctx context.Context, key string, tags ...string) {
	if err := r.TagKey(ctx, key, tags...); err != nil {
		r.log.WithError(err).WithField("key", key).Warn("Failed to tag cache key")
	}
}

func (r *RedisCacheManager) buildKey(keyType, identifier string) string {
	return fmt.Sprintf("%s%s:%s", r.config.KeyPrefix, keyType, identifier)
}

func (r *RedisCacheManager) buildTagKey(keyType, identifier string) string {
	return fmt.Sprintf("%s%s:%s", r.config.TagPrefix, keyType, identifier)
}

func (r *RedisCacheManager) recordHit() {
	r.stats.mu.Lock()
	r.stats.totalHits++
	r.stats.mu.Unlock()
}

func (r *RedisCacheManager) recordMiss() {
	r.stats.mu.Lock()
	r.stats.totalMisses++
	r.stats.mu.Unlock()
}

func (r *RedisCacheManager) removeKeyTags(ctx context.Context, key string) error {
	client := r.client.GetClient()
	keyTagsKey := r.buildTagKey("key_tags", key)

	tags, err := client.SMembers(ctx, keyTagsKey).Result()
	if err != nil {
		return err
	}

	pipe := client.Pipeline()
	for _, tag := range tags {
		pipe.SRem(ctx, r.buildTagKey("tag_keys", tag), key)
	}
	pipe.Del(ctx, keyTagsKey)

	_, err = pipe.Exec(ctx)
	return err
}
