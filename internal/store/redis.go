// Package store persists scan history in Redis.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"

	"github.com/charlesms1246/home-iot-guard/internal/models"
)

const (
	scanKeyPrefix = "scan:result:"
	scanIndexKey  = "scan:index"

	// Point lookups for recently viewed scans are cached in-process.
	cacheSize = 256
)

// ErrNotFound is returned when no scan exists for the requested ID.
var ErrNotFound = errors.New("scan not found")

// Store is a Redis-backed scan history with an LRU read cache in front of
// point lookups.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	cache  *lru.Cache
}

// NewStore connects to Redis and verifies the connection. Scan records
// expire after ttl.
func NewStore(redisURL string, ttl time.Duration) (*Store, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("error connecting to Redis: %w", err)
	}

	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}

	return &Store{client: client, ttl: ttl, cache: cache}, nil
}

// StoreScan persists a scan result and indexes it by timestamp.
func (s *Store) StoreScan(ctx context.Context, result *models.ScanResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("error marshaling scan result: %w", err)
	}

	key := scanKeyPrefix + result.ID
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, data, s.ttl)
	pipe.ZAdd(ctx, scanIndexKey, redis.Z{
		Score:  float64(result.Timestamp.UnixNano()),
		Member: result.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("error storing scan result: %w", err)
	}

	s.cache.Add(result.ID, result)
	return nil
}

// GetScan retrieves one scan by ID.
func (s *Store) GetScan(ctx context.Context, id string) (*models.ScanResult, error) {
	if cached, ok := s.cache.Get(id); ok {
		return cached.(*models.ScanResult), nil
	}

	data, err := s.client.Get(ctx, scanKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching scan result: %w", err)
	}

	var result models.ScanResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("error unmarshaling scan result: %w", err)
	}

	s.cache.Add(id, &result)
	return &result, nil
}

// GetRecent returns up to limit scan results, newest first. Records whose
// value has already expired are pruned from the index as they are seen.
func (s *Store) GetRecent(ctx context.Context, limit int) ([]*models.ScanResult, error) {
	ids, err := s.client.ZRevRange(ctx, scanIndexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("error reading scan index: %w", err)
	}

	results := make([]*models.ScanResult, 0, len(ids))
	for _, id := range ids {
		result, err := s.GetScan(ctx, id)
		if errors.Is(err, ErrNotFound) {
			s.client.ZRem(ctx, scanIndexKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// TotalScans returns the number of indexed scans.
func (s *Store) TotalScans(ctx context.Context) (int64, error) {
	return s.client.ZCard(ctx, scanIndexKey).Result()
}

// Ping checks store connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
