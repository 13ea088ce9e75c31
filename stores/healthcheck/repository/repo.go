package repository

import (
	"time"

	"github.com/x-xyz/goauction/base/ctx"
	"github.com/x-xyz/goauction/base/database/mongoclient"
	hcdomain "github.com/x-xyz/goauction/domain/healthcheck"
	"github.com/x-xyz/goauction/domain/keys"
	"github.com/x-xyz/goauction/service/redis"
)

const (
	pingTimeout = 2 * time.Second
)

type impl struct {
	mgoClient *mongoclient.Client
	redis     redis.Service
}

// New creates new healthCheckRepo object representation of HealthCheckRepo interface
func New(
	mgoClient *mongoclient.Client,
	redis redis.Service,
) hcdomain.HealthCheckRepo {
	return &impl{
		mgoClient: mgoClient,
		redis:     redis,
	}
}

func (im *impl) PingMongo(context ctx.Ctx) error {
	c, cancel := ctx.WithTimeout(context, pingTimeout)
	defer cancel()
	if err := im.mgoClient.PingPrimary(c); err != nil {
		context.WithField("err", err).Error("ping mongo error")
		return err
	}
	return nil
}

// PingRedis also writes a key, a replica that only answers PING is not healthy
func (im *impl) PingRedis(context ctx.Ctx) error {
	c, cancel := ctx.WithTimeout(context, pingTimeout)
	defer cancel()
	if err := im.redis.Ping(c); err != nil {
		return err
	}
	if err := im.redis.Set(c, keys.RedisKey(keys.PfxHealthCheck, "testset"), []byte("1"), 30*time.Second); err != nil {
		context.WithField("err", err).Error("test redis set failed")
		return err
	}
	return nil
}
