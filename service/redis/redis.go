package redis

import (
	"errors"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/x-xyz/goauction/base/ctx"
)

const (
	// Forever means the key never expires
	Forever = time.Duration(-1)
)

var (
	// ErrNotFound is returned for a missing key
	ErrNotFound = redis.ErrNil
	// ErrNoTTL is returned by TTL for a key without expiry
	ErrNoTTL = errors.New("key has no ttl")
	// ErrExpireNotExistOrTimeout is returned by Expire when the key is missing
	ErrExpireNotExistOrTimeout = errors.New("key does not exist or the timeout could not be set")
	// ErrNoPool is returned when no pool serves the command
	ErrNoPool = errors.New("no redis pool")
)

// Pools represents different pool types
type Pools struct {
	Src *redis.Pool
}

// Service wraps the redis commands used by the service
type Service interface {
	Get(context ctx.Ctx, key string) ([]byte, error)
	Set(context ctx.Ctx, key string, val []byte, expire time.Duration) error
	Del(context ctx.Ctx, keys ...string) (int, error)
	Exists(context ctx.Ctx, key string) (bool, error)
	// TTL returns the remaining seconds, ErrNotFound for a missing key and
	// ErrNoTTL for a key without expiry
	TTL(context ctx.Ctx, key string) (int, error)
	Expire(context ctx.Ctx, key string, ttl time.Duration) error
	Incrby(context ctx.Ctx, key string, val int) (int64, error)

	// Publish posts msg to channel and returns the number of subscribers
	// that received it
	Publish(context ctx.Ctx, channel string, msg []byte) (int, error)
	Ping(context ctx.Ctx) error

	Name() string
}
