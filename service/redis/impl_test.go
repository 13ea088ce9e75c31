package redis

import (
	"os"
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/suite"

	"github.com/x-xyz/goauction/base/ctx"
	"github.com/x-xyz/goauction/base/database/redisclient"
	"github.com/x-xyz/goauction/base/metrics"
)

var (
	mockCtx = ctx.Background()
)

type redisSuite struct {
	suite.Suite
	im *redImpl
}

// needs a reachable redis, e.g. REDIS_TEST_URI=localhost:6379
func TestRedisSuite(t *testing.T) {
	if os.Getenv("REDIS_TEST_URI") == "" {
		t.Skip("REDIS_TEST_URI not set")
	}
	suite.Run(t, new(redisSuite))
}

func (s *redisSuite) SetupTest() {
	pool := redisclient.MustConnect(mockCtx, redisclient.Config{Addr: os.Getenv("REDIS_TEST_URI")})
	s.im = New("test", metrics.New("redis"), &Pools{Src: pool}).(*redImpl)
	_, err := s.im.connDo(mockCtx, "FLUSHDB")
	s.Require().NoError(err)
}

func (s *redisSuite) TestGetSet() {
	_, err := s.im.Get(mockCtx, "k")
	s.Equal(ErrNotFound, err)

	s.Require().NoError(s.im.Set(mockCtx, "k", []byte("v"), Forever))
	v, err := s.im.Get(mockCtx, "k")
	s.Require().NoError(err)
	s.Equal([]byte("v"), v)

	_, err = s.im.TTL(mockCtx, "k")
	s.Equal(ErrNoTTL, err)
}

func (s *redisSuite) TestTTLAndExpire() {
	_, err := s.im.TTL(mockCtx, "k")
	s.Equal(ErrNotFound, err)
	s.Equal(ErrExpireNotExistOrTimeout, s.im.Expire(mockCtx, "k", time.Minute))

	s.Require().NoError(s.im.Set(mockCtx, "k", []byte("v"), 10*time.Second))
	ttl, err := s.im.TTL(mockCtx, "k")
	s.Require().NoError(err)
	s.InDelta(10, ttl, 1)

	s.Require().NoError(s.im.Expire(mockCtx, "k", Forever))
	_, err = s.im.TTL(mockCtx, "k")
	s.Equal(ErrNoTTL, err)
}

func (s *redisSuite) TestDelExistsIncrby() {
	n, err := s.im.Incrby(mockCtx, "counter", 3)
	s.Require().NoError(err)
	s.Equal(int64(3), n)

	ok, err := s.im.Exists(mockCtx, "counter")
	s.Require().NoError(err)
	s.True(ok)

	deleted, err := s.im.Del(mockCtx, "counter", "missing")
	s.Require().NoError(err)
	s.Equal(1, deleted)

	_, err = s.im.Del(mockCtx)
	s.Error(err)
}

func (s *redisSuite) TestPublish() {
	conn := s.im.pools.Src.Get()
	defer conn.Close()
	psc := redis.PubSubConn{Conn: conn}
	s.Require().NoError(psc.Subscribe("auction:events:a1"))
	_, ok := psc.Receive().(redis.Subscription)
	s.Require().True(ok)

	n, err := s.im.Publish(mockCtx, "auction:events:a1", []byte(`{"type":"NewBid"}`))
	s.Require().NoError(err)
	s.Equal(1, n)

	msg, ok := psc.Receive().(redis.Message)
	s.Require().True(ok)
	s.Equal(`{"type":"NewBid"}`, string(msg.Data))
}

func (s *redisSuite) TestPing() {
	s.NoError(s.im.Ping(mockCtx))
	s.Equal("test", s.im.Name())
}

func TestNoPool(t *testing.T) {
	im := New("empty", metrics.New("redis"), nil)
	if err := im.Ping(mockCtx); err != ErrNoPool {
		t.Fatalf("got %v, want ErrNoPool", err)
	}
}
