package reaper

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/opsched/pkg/common/validation"
)

// Mode selects how a RedisSink stores entries.
type Mode int

const (
	// ModeList pushes JSON entries onto a capped list, newest first.
	ModeList Mode = iota
	// ModeStream appends entries to a capped Redis stream.
	ModeStream
)

const (
	// DefaultKey is the list or stream key used when RedisConfig.Key is empty.
	DefaultKey = "opsched:reaped"

	// DefaultMaxLen caps the stored entries when RedisConfig.MaxLen is zero.
	DefaultMaxLen = 10000
)

// RedisConfig holds configuration for a RedisSink.
type RedisConfig struct {
	// Redis is the client to write to. Required.
	Redis redis.UniversalClient

	// Key is the list or stream key (default: DefaultKey).
	Key string

	// Mode selects list or stream storage (default: ModeList).
	Mode Mode

	// MaxLen caps the number of stored entries (default: DefaultMaxLen).
	MaxLen int64

	// KeyTTL expires the key after the last write. Zero keeps it forever.
	KeyTTL time.Duration

	// RedisTimeout bounds every Redis call (default: 1s).
	RedisTimeout time.Duration
}

// RedisError wraps a failed Redis operation.
type RedisError struct {
	Operation string
	Err       error
}

func (e *RedisError) Error() string {
	return fmt.Sprintf("redis %s failed: %v", e.Operation, e.Err)
}

func (e *RedisError) Unwrap() error {
	return e.Err
}

// RedisSink exports reaped entries to Redis.
type RedisSink struct {
	config RedisConfig

	// pushes an entry, trims the list and refreshes the ttl in one round trip
	pushScript *redis.Script
}

// NewRedisSink validates cfg and creates a sink.
func NewRedisSink(cfg RedisConfig) (*RedisSink, error) {
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.MaxLen == 0 {
		cfg.MaxLen = DefaultMaxLen
	}
	if cfg.RedisTimeout == 0 {
		cfg.RedisTimeout = time.Second
	}

	if err := validation.ValidateNotNil("reaper", "redis", cfg.Redis); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositive("reaper", "max_len", int(cfg.MaxLen)); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositiveDuration("reaper", "redis_timeout", cfg.RedisTimeout); err != nil {
		return nil, err
	}

	return &RedisSink{
		config:     cfg,
		pushScript: redis.NewScript(luaPushCapped),
	}, nil
}

// Key returns the list or stream key written to.
func (s *RedisSink) Key() string { return s.config.Key }

// Record implements Sink.
func (s *RedisSink) Record(ctx context.Context, e Entry) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.RedisTimeout)
	defer cancel()

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry for pid %d: %w", e.PID, err)
	}

	if s.config.Mode == ModeStream {
		return s.xadd(ctx, e, payload)
	}

	ttl := s.config.KeyTTL.Milliseconds()
	if err := s.pushScript.Run(ctx, s.config.Redis, []string{s.config.Key}, payload, s.config.MaxLen, ttl).Err(); err != nil && err != redis.Nil {
		return &RedisError{"push", err}
	}
	return nil
}

func (s *RedisSink) xadd(ctx context.Context, e Entry, payload []byte) error {
	pipe := s.config.Redis.Pipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: s.config.Key,
		MaxLen: s.config.MaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"pid":       int64(e.PID),
			"exit_code": e.ExitCode,
			"entry":     string(payload),
		},
	})
	if s.config.KeyTTL > 0 {
		pipe.PExpire(ctx, s.config.Key, s.config.KeyTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return &RedisError{"xadd", err}
	}
	return nil
}

// Recent returns up to n of the newest stored entries, newest first. It
// returns no entries when n is not positive.
func (s *RedisSink) Recent(ctx context.Context, n int64) ([]Entry, error) {
	if n <= 0 {
		return []Entry{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.RedisTimeout)
	defer cancel()

	if s.config.Mode == ModeStream {
		msgs, err := s.config.Redis.XRevRangeN(ctx, s.config.Key, "+", "-", n).Result()
		if err != nil {
			return nil, &RedisError{"xrevrange", err}
		}
		raw := make([]string, 0, len(msgs))
		for _, m := range msgs {
			if v, ok := m.Values["entry"].(string); ok {
				raw = append(raw, v)
			}
		}
		return decodeEntries(raw)
	}

	raw, err := s.config.Redis.LRange(ctx, s.config.Key, 0, n-1).Result()
	if err != nil && err != redis.Nil {
		return nil, &RedisError{"lrange", err}
	}
	return decodeEntries(raw)
}

func decodeEntries(raw []string) ([]Entry, error) {
	entries := make([]Entry, 0, len(raw))
	for _, r := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("decode entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// KEYS[1] list key
// ARGV[1] entry, ARGV[2] max length, ARGV[3] ttl in milliseconds (0 keeps the key)
const luaPushCapped = `
local len = redis.call('LPUSH', KEYS[1], ARGV[1])
local max = tonumber(ARGV[2])
if len > max then
    redis.call('LTRIM', KEYS[1], 0, max - 1)
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
    redis.call('PEXPIRE', KEYS[1], ttl)
end
return len
`
