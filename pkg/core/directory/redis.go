package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sanchita-suni/Calyx/pkg/core"
	"github.com/sanchita-suni/Calyx/pkg/core/crisis/state"
)

const keyPrefix = "calyx:session:"

// RedisConfig holds connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Redis stores each record as a hash with "profile" and "location" fields so
// the two can be replaced independently.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, core.DirectoryError("ping", fmt.Errorf("redis ping failed: %w", err))
	}
	return NewRedisFromClient(rdb, cfg.TTL), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{rdb: rdb, ttl: ttl, now: time.Now}
}

func key(sessionID string) string { return keyPrefix + sessionID }

func (r *Redis) put(ctx context.Context, op, sessionID, field string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return core.DirectoryError(op, err)
	}
	k := key(sessionID)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, k, field, b, "updated_at", r.now().UTC().Format(time.RFC3339Nano))
	pipe.Expire(ctx, k, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return core.DirectoryError(op, err)
	}
	return nil
}

func (r *Redis) PutProfile(ctx context.Context, sessionID string, p state.UserProfile) error {
	return r.put(ctx, "put_profile", sessionID, "profile", p)
}

func (r *Redis) PutLocation(ctx context.Context, sessionID string, l state.Location) error {
	return r.put(ctx, "put_location", sessionID, "location", l)
}

func (r *Redis) Get(ctx context.Context, sessionID string) (Record, error) {
	vals, err := r.rdb.HGetAll(ctx, key(sessionID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Record{}, core.DirectoryError("get", err)
	}
	if len(vals) == 0 {
		return Record{}, ErrNotFound
	}
	rec := Record{SessionID: sessionID}
	if raw, ok := vals["profile"]; ok {
		if err := json.Unmarshal([]byte(raw), &rec.Profile); err != nil {
			return Record{}, core.DirectoryError("get", fmt.Errorf("decode profile: %w", err))
		}
	}
	if raw, ok := vals["location"]; ok {
		var l state.Location
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			return Record{}, core.DirectoryError("get", fmt.Errorf("decode location: %w", err))
		}
		rec.Location = &l
	}
	if ts, ok := vals["updated_at"]; ok {
		rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	return rec, nil
}

func (r *Redis) Delete(ctx context.Context, sessionID string) error {
	if err := r.rdb.Del(ctx, key(sessionID)).Err(); err != nil {
		return core.DirectoryError("delete", err)
	}
	return nil
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
