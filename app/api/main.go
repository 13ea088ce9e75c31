package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/x-xyz/goauction/base/ctx"
	"github.com/x-xyz/goauction/base/database/mongoclient"
	"github.com/x-xyz/goauction/base/database/redisclient"
	"github.com/x-xyz/goauction/base/env"
	"github.com/x-xyz/goauction/base/log"
	"github.com/x-xyz/goauction/base/metrics"
	bValidator "github.com/x-xyz/goauction/base/validator"
	"github.com/x-xyz/goauction/domain/auction"
	"github.com/x-xyz/goauction/domain/keys"
	mmiddleware "github.com/x-xyz/goauction/middleware"
	"github.com/x-xyz/goauction/service/cache"
	"github.com/x-xyz/goauction/service/cache/provider/compound"
	"github.com/x-xyz/goauction/service/cache/provider/primitive"
	redisCache "github.com/x-xyz/goauction/service/cache/provider/redis"
	"github.com/x-xyz/goauction/service/query"
	"github.com/x-xyz/goauction/service/redis"
	auction_delivery "github.com/x-xyz/goauction/stores/auction/delivery/http"
	auction_publisher "github.com/x-xyz/goauction/stores/auction/publisher"
	auction_repository "github.com/x-xyz/goauction/stores/auction/repository"
	auction_usecase "github.com/x-xyz/goauction/stores/auction/usecase"
	auth_delivery "github.com/x-xyz/goauction/stores/auth/delivery/http"
	auth_middleware "github.com/x-xyz/goauction/stores/auth/delivery/http/middleware"
	auth_usecase "github.com/x-xyz/goauction/stores/auth/usecase"
	hc_delivery "github.com/x-xyz/goauction/stores/healthcheck/delivery/http"
	hc_repo "github.com/x-xyz/goauction/stores/healthcheck/repository"
	hc_usecase "github.com/x-xyz/goauction/stores/healthcheck/usecase"
)

func init() {
	configPath := pflag.String("config", env.ConfigPath(), "path of the yaml config")
	pflag.Parse()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(*configPath)
	setDefaults()
	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	if err := log.SetDebug(viper.GetBool("debug")); err != nil {
		panic(err)
	}
	if viper.GetBool(`debug`) {
		log.Log().Info("Service RUN on DEBUG mode")
	}
}

func setDefaults() {
	d := auction.DefaultConfig()
	viper.SetDefault("http.addr", ":8080")
	viper.SetDefault("mongo.poolMultiplier", 2)
	viper.SetDefault("redis.name", "auction")
	viper.SetDefault("mongo.connectAttempts", 3)
	viper.SetDefault("redis.poolMultiplier", 8)
	viper.SetDefault("redis.connectAttempts", 4)
	viper.SetDefault("jwt.ttl", 24*time.Hour)
	viper.SetDefault("auction.minimumDuration", d.MinimumDuration)
	viper.SetDefault("auction.softCloseWindow", d.SoftCloseWindow)
	viper.SetDefault("auction.lastCallDuration", d.LastCallDuration)
	viper.SetDefault("auction.cleanupGrace", d.CleanupGrace)
	viper.SetDefault("auction.cache.sizeMB", 64)
	viper.SetDefault("auction.cache.ttl", time.Hour)
}

func main() {
	// init echo
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	middL := mmiddleware.InitMiddleware()
	e.Use(middL.ResponseLogger())
	e.Use(middL.AddContext())
	e.Use(middL.CORS)
	e.Validator = bValidator.NewCustomValidator(bValidator.WithStringTag("tier", auction.ValidTier))

	context := ctx.Background()

	// init mongo client
	context.Info("init mongo")
	mongoClient := mongoclient.MustConnect(context, mongoclient.Config{
		URI:            viper.GetString("mongo.uri"),
		AuthDB:         viper.GetString("mongo.authDBName"),
		DB:             viper.GetString("mongo.dbName"),
		SSL:            viper.GetBool("mongo.enableSSL"),
		Majority:       true,
		PoolMultiplier: viper.GetFloat64("mongo.poolMultiplier"),
		Attempts:       viper.GetInt("mongo.connectAttempts"),
	})
	q := query.New(mongoClient, viper.GetBool("mongo.checkIndex"))
	if err := auction_repository.EnsureIndexes(context, q); err != nil {
		context.WithField("err", err).Panic("failed to auction_repository.EnsureIndexes")
	}

	// init Redis service
	context.Info("init redis")
	redisName := viper.GetString("redis.name")
	redisPool := redisclient.MustConnect(context, redisclient.Config{
		Addr:           viper.GetString("redis.uri"),
		Password:       viper.GetString("redis.password"),
		PoolMultiplier: viper.GetFloat64("redis.poolMultiplier"),
		Attempts:       viper.GetInt("redis.connectAttempts"),
	})
	redisSvc := redis.New(redisName, metrics.New(redisName), &redis.Pools{
		Src: redisPool,
	})

	// closed auctions leave the registry, reads fall back to local then redis
	closedCache := cache.New(cache.ServiceConfig{
		Ttl: viper.GetDuration("auction.cache.ttl"),
		Pfx: keys.PfxAuctionSnapshot,
		Cache: compound.NewCompound(
			primitive.NewPrimitive("closedAuctions", viper.GetInt("auction.cache.sizeMB")),
			redisCache.NewRedis(redisSvc),
		),
	})

	publisher := auction_publisher.New(&auction_publisher.PublisherCfg{
		Redis:       redisSvc,
		Workers:     viper.GetInt("auction.publisher.workers"),
		QueueLength: viper.GetInt("auction.publisher.queueLength"),
		Timeout:     viper.GetDuration("auction.publisher.timeout"),
	})

	// construct repository, usecase and delivery
	auctionUsecase := auction_usecase.New(&auction_usecase.AuctionUseCaseCfg{
		Config: auction.Config{
			MinimumDuration:  viper.GetDuration("auction.minimumDuration"),
			SoftCloseWindow:  viper.GetDuration("auction.softCloseWindow"),
			LastCallDuration: viper.GetDuration("auction.lastCallDuration"),
			CleanupGrace:     viper.GetDuration("auction.cleanupGrace"),
		},
		Repo:        auction_repository.New(q),
		Publisher:   publisher,
		ClosedCache: closedCache,
	})

	auth := auth_usecase.New(viper.GetString("jwt.secret"), viper.GetDuration("jwt.ttl"))
	authMiddleware := auth_middleware.New(auth)

	hcRepo := hc_repo.New(mongoClient, redisSvc)
	hc_delivery.New(e, hc_usecase.New(hcRepo, auctionUsecase))
	auction_delivery.New(e, auctionUsecase, authMiddleware)
	if viper.GetBool("auth.issueTokens") {
		context.Warn("token issuing is enabled")
		auth_delivery.New(e, auth)
	}

	go func() {
		if err := e.Start(viper.GetString("http.addr")); err != nil && err != http.ErrServerClosed {
			log.Log().WithField("err", err).Error("shutting down the server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 10 seconds.
	// Use a buffered channel to avoid missing signals as recommended for signal.Notify
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	sig := <-quit
	log.Log().WithField("signal", sig).Info("received signal")
	ctx, cancel := ctx.WithTimeout(context, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Log().WithField("err", err).Error("shutting down the server")
	} else {
		log.Log().Info("shutdown server successfully")
	}

	// no request is in flight, stop timers and flush queued events
	auctionUsecase.Close()
	if err := mongoClient.Disconnect(ctx); err != nil {
		log.Log().WithField("err", err).Error("failed to mongoClient.Disconnect")
	}
	if err := redisPool.Close(); err != nil {
		log.Log().WithField("err", err).Error("failed to redisPool.Close")
	}
	if err := log.Sync(); err != nil {
		// stdout sync fails on some terminals
		log.Log().WithField("err", err).Debug("failed to log.Sync")
	}
}
