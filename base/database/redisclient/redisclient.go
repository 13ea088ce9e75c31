package redisclient

import (
	"runtime"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/x-xyz/goauction/base/backoff"
	"github.com/x-xyz/goauction/base/ctx"
	"github.com/x-xyz/goauction/base/log"
)

const (
	dialTimeout  = 2 * time.Second
	readTimeout  = 1500 * time.Millisecond
	writeTimeout = 1500 * time.Millisecond
	idleTimeout  = 240 * time.Second

	// pods sometimes start before their network is ready
	retryStart = time.Second
	retryLimit = 4 * time.Second
)

// Config describes how to reach redis
type Config struct {
	Addr     string
	Password string
	// PoolMultiplier sizes the pool as cpu count times multiplier, 0 keeps
	// the defaults of 200 idle and 1024 active connections
	PoolMultiplier float64
	// Attempts bounds the dial tries, default 1
	Attempts int
}

// NewPool builds the pool without dialing
func NewPool(cfg Config) *redis.Pool {
	maxIdle, maxActive := 200, 1024
	if cfg.PoolMultiplier > 0 {
		maxActive = int(float64(runtime.NumCPU()) * cfg.PoolMultiplier)
		// a quarter of the pool may stay idle
		maxIdle = maxActive / 4
	}

	opts := []redis.DialOption{
		redis.DialConnectTimeout(dialTimeout),
		redis.DialReadTimeout(readTimeout),
		redis.DialWriteTimeout(writeTimeout),
	}
	if cfg.Password != "" {
		opts = append(opts, redis.DialPassword(cfg.Password))
	}
	return &redis.Pool{
		MaxIdle:     maxIdle,
		MaxActive:   maxActive,
		Wait:        true,
		IdleTimeout: idleTimeout,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", cfg.Addr, opts...)
		},
		TestOnBorrow: testOnBorrow,
	}
}

// connections used within the last second skip the PING
func testOnBorrow(c redis.Conn, lastUsed time.Time) error {
	if time.Since(lastUsed) < time.Second {
		return nil
	}
	_, err := c.Do("PING")
	return err
}

// MustConnect is Connect but panics on failure
func MustConnect(c ctx.Ctx, cfg Config) *redis.Pool {
	p, err := Connect(c, cfg)
	if err != nil {
		c.WithFields(log.Fields{"redisAddr": cfg.Addr, "err": err}).Panic("failed to redisclient.Connect")
	}
	return p
}

// Connect builds the pool and proves it works with one PING, retrying with
// exponential backoff up to cfg.Attempts times.
func Connect(c ctx.Ctx, cfg Config) (*redis.Pool, error) {
	p := NewPool(cfg)
	c = ctx.WithValue(c, "redisAddr", cfg.Addr)

	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	b := backoff.NewExponential(retryStart, retryLimit)
	err := backoff.Retry(c, b, attempts, func() error {
		conn, err := p.Dial()
		if err != nil {
			c.WithFields(log.Fields{"err": err, "attempt": b.Count()}).Warn("failed to dial redis")
			return err
		}
		defer conn.Close()
		if _, err := conn.Do("PING"); err != nil {
			c.WithFields(log.Fields{"err": err, "attempt": b.Count()}).Warn("failed to ping redis")
			return err
		}
		return nil
	})
	if err != nil {
		c.WithField("err", err).Error("redis unreachable")
		p.Close()
		return nil, err
	}

	c.Info("redis connected")
	return p, nil
}
