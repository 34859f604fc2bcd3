package viewstate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists one camera record per viewer. Absent or malformed
// records read back as a miss, never as an error.
type Store interface {
	Load(ctx context.Context, viewerID string) (Camera, bool, error)
	Save(ctx context.Context, viewerID string, cam Camera) error
	Clear(ctx context.Context, viewerID string) error
}

// persistedCamera is the durable wire layout: {"center":[lng,lat],"zoom":z}.
type persistedCamera struct {
	Center [2]float64 `json:"center"`
	Zoom   float64    `json:"zoom"`
}

func encodeCamera(cam Camera) ([]byte, error) {
	return json.Marshal(persistedCamera{
		Center: [2]float64{cam.CenterLng, cam.CenterLat},
		Zoom:   cam.Zoom,
	})
}

func decodeCamera(data []byte) (Camera, bool) {
	var p persistedCamera
	if err := json.Unmarshal(data, &p); err != nil {
		return Camera{}, false
	}
	if p.Zoom == 0 {
		return Camera{}, false
	}
	return Camera{CenterLng: p.Center[0], CenterLat: p.Center[1], Zoom: p.Zoom}, true
}

// RedisStore keeps camera records in Redis with a TTL, so abandoned
// viewers age out on their own.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisStore{client: client, prefix: "tzmap:camera:", ttl: ttl}, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) key(viewerID string) string { return s.prefix + viewerID }

func (s *RedisStore) Load(ctx context.Context, viewerID string) (Camera, bool, error) {
	data, err := s.client.Get(ctx, s.key(viewerID)).Bytes()
	if err == redis.Nil {
		return Camera{}, false, nil
	}
	if err != nil {
		return Camera{}, false, err
	}
	cam, ok := decodeCamera(data)
	return cam, ok, nil
}

func (s *RedisStore) Save(ctx context.Context, viewerID string, cam Camera) error {
	data, err := encodeCamera(cam)
	if err != nil {
		return fmt.Errorf("encoding camera: %w", err)
	}
	return s.client.Set(ctx, s.key(viewerID), data, s.ttl).Err()
}

func (s *RedisStore) Clear(ctx context.Context, viewerID string) error {
	return s.client.Del(ctx, s.key(viewerID)).Err()
}

// MemoryStore is the in-process store used when Redis is disabled and as
// the silent fallback when it misbehaves.
type MemoryStore struct {
	mu      sync.RWMutex
	cameras map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cameras: make(map[string][]byte)}
}

func (s *MemoryStore) Load(ctx context.Context, viewerID string) (Camera, bool, error) {
	s.mu.RLock()
	data, ok := s.cameras[viewerID]
	s.mu.RUnlock()
	if !ok {
		return Camera{}, false, nil
	}
	cam, ok := decodeCamera(data)
	return cam, ok, nil
}

func (s *MemoryStore) Save(ctx context.Context, viewerID string, cam Camera) error {
	data, err := encodeCamera(cam)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cameras[viewerID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, viewerID string) error {
	s.mu.Lock()
	delete(s.cameras, viewerID)
	s.mu.Unlock()
	return nil
}
