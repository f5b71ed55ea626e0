package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultRetention is how long a token outlives its session deadline.
const DefaultRetention = time.Hour

// RedisStore keeps tokens in Redis with an expiry tied to the session deadline.
type RedisStore struct {
	client    redis.Cmdable
	prefix    string
	retention time.Duration
	clock     clockwork.Clock
}

// NewRedisStore creates a Redis backed token store.
func NewRedisStore(client redis.Cmdable, clock clockwork.Clock, retention time.Duration) *RedisStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisStore{
		client:    client,
		prefix:    "competition_session",
		retention: retention,
		clock:     clock,
	}
}

func (s *RedisStore) key(k models.SessionKey) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, k.CompetitionID, k.Identifier)
}

func (s *RedisStore) ttl(token Token) time.Duration {
	ttl := token.EndTime.Sub(s.clock.Now()) + s.retention
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return ttl
}

func (s *RedisStore) Put(ctx context.Context, token Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal session token: %w", err)
	}
	if err := s.client.Set(ctx, s.key(token.Key()), data, s.ttl(token)).Err(); err != nil {
		return fmt.Errorf("failed to store session token: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key models.SessionKey) (*Token, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session token: %w", err)
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session token: %w", err)
	}
	return &token, nil
}

func (s *RedisStore) MarkSubmitted(ctx context.Context, key models.SessionKey) error {
	token, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if token == nil || token.Submitted {
		return nil
	}
	token.Submitted = true
	return s.Put(ctx, *token)
}

func (s *RedisStore) Delete(ctx context.Context, key models.SessionKey) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete session token: %w", err)
	}
	return nil
}
