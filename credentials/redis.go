package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "mgen:session"

const (
	fieldAccess  = "access"
	fieldRefresh = "refresh"
	fieldProfile = "profile"
)

// redisProfile is the payload of the hash's profile field.
type redisProfile struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Degraded  bool      `json:"degraded,omitempty"`
	SavedAt   time.Time `json:"saved_at"`
}

// RedisStore keeps the token and profile slots as fields of a single hash,
// rewritten through one transactional pipeline so the group is never
// observed half-saved. Suitable for server-side integrations where several
// workers share one platform session.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

func NewRedisStore(client redis.UniversalClient, key string) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("credentials: redis client is required")
	}
	if key == "" {
		key = defaultRedisKey
	}
	return &RedisStore{client: client, key: key}, nil
}

func (s *RedisStore) Load(ctx context.Context) (*Record, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	var profile redisProfile
	if err := json.Unmarshal([]byte(fields[fieldProfile]), &profile); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	return &Record{
		AccessToken:  fields[fieldAccess],
		RefreshToken: fields[fieldRefresh],
		UserID:       profile.UserID,
		Email:        profile.Email,
		Role:         profile.Role,
		FirstName:    profile.FirstName,
		LastName:     profile.LastName,
		Degraded:     profile.Degraded,
		SavedAt:      profile.SavedAt,
	}, nil
}

func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	profile, err := json.Marshal(redisProfile{
		UserID:    rec.UserID,
		Email:     rec.Email,
		Role:      rec.Role,
		FirstName: rec.FirstName,
		LastName:  rec.LastName,
		Degraded:  rec.Degraded,
		SavedAt:   rec.SavedAt,
	})
	if err != nil {
		return fmt.Errorf("credentials: encode record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	pipe.HSet(ctx, s.key,
		fieldAccess, rec.AccessToken,
		fieldRefresh, rec.RefreshToken,
		fieldProfile, profile,
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
