package usecase

import (
	"github.com/x-xyz/goauction/base/ctx"
	"github.com/x-xyz/goauction/domain/auction"
	hcdomain "github.com/x-xyz/goauction/domain/healthcheck"
)

type impl struct {
	repo    hcdomain.HealthCheckRepo
	auction auction.Usecase
}

// New creates new healthCheckUsecase object representation of HealthCheckUsecase interface
func New(repo hcdomain.HealthCheckRepo, auction auction.Usecase) hcdomain.HealthCheckUsecase {
	return &impl{
		repo:    repo,
		auction: auction,
	}
}

// Check reports every dependency, the error is the first failure
func (im *impl) Check(context ctx.Ctx) (*hcdomain.Report, error) {
	res := &hcdomain.Report{
		Mongo:        hcdomain.StatusOK,
		Redis:        hcdomain.StatusOK,
		LiveAuctions: im.auction.LiveCount(),
	}

	var firstErr error
	if err := im.repo.PingMongo(context); err != nil {
		res.Mongo = hcdomain.StatusDown
		firstErr = err
	}
	if err := im.repo.PingRedis(context); err != nil {
		res.Redis = hcdomain.StatusDown
		if firstErr == nil {
			firstErr = err
		}
	}
	return res, firstErr
}
