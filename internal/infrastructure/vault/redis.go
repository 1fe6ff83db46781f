package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/formahub/session-core/internal/core/domain"
	"github.com/formahub/session-core/internal/core/ports"
)

const redisConnectTimeout = 5 * time.Second

const (
	fieldCredential = "credential"
	fieldIdentity   = "identity"
)

// RedisConfig captures the settings for establishing a Redis connection.
type RedisConfig struct {
	Addr    string
	DB      int
	Timeout time.Duration
}

// ConnectRedis initialises a Redis client and validates connectivity with a
// ping. A default timeout is applied when none is provided.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = redisConnectTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}

// RedisVault persists the session pair in a single Redis hash, one hash per
// installation scope. Key format: session:<scope>. Keeping both fields in
// one key makes every write and delete of the pair atomic without
// transactions.
type RedisVault struct {
	client *redis.Client
	scope  string
}

// NewRedisVault wraps an established client. scope isolates independent
// installations sharing one Redis (e.g. a device or kiosk identifier).
func NewRedisVault(client *redis.Client, scope string) *RedisVault {
	if scope == "" {
		scope = "default"
	}
	return &RedisVault{client: client, scope: scope}
}

func (v *RedisVault) key() string {
	return "session:" + v.scope
}

func (v *RedisVault) Load(ctx context.Context) (ports.StoredSession, error) {
	fields, err := v.client.HGetAll(ctx, v.key()).Result()
	if err != nil {
		return ports.StoredSession{}, fmt.Errorf("load session: %w", err)
	}
	credential, ok := fields[fieldCredential]
	if !ok || credential == "" {
		return ports.StoredSession{}, domain.ErrNoSession
	}
	identity, err := decodeIdentity(fields[fieldIdentity])
	if err != nil {
		return ports.StoredSession{}, err
	}
	return ports.StoredSession{Credential: credential, Identity: identity}, nil
}

func (v *RedisVault) Store(ctx context.Context, session ports.StoredSession) error {
	encoded, err := encodeIdentity(session.Identity)
	if err != nil {
		return err
	}
	if err := v.client.HSet(ctx, v.key(),
		fieldCredential, session.Credential,
		fieldIdentity, encoded,
	).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (v *RedisVault) StoreIdentity(ctx context.Context, identity *domain.Identity) error {
	encoded, err := encodeIdentity(identity)
	if err != nil {
		return err
	}

	exists, err := v.client.HExists(ctx, v.key(), fieldCredential).Result()
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if !exists {
		return domain.ErrNoSession
	}

	if err := v.client.HSet(ctx, v.key(), fieldIdentity, encoded).Err(); err != nil {
		return fmt.Errorf("store identity: %w", err)
	}
	return nil
}

func (v *RedisVault) Credential(ctx context.Context) (string, error) {
	credential, err := v.client.HGet(ctx, v.key(), fieldCredential).Result()
	if err == redis.Nil {
		return "", domain.ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("load credential: %w", err)
	}
	return credential, nil
}

func (v *RedisVault) Clear(ctx context.Context) error {
	if err := v.client.Del(ctx, v.key()).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
