package healthcheck

import (
	"github.com/x-xyz/goauction/base/ctx"
)

const (
	StatusOK   = "ok"
	StatusDown = "down"
)

// Report is the liveness of each dependency
type Report struct {
	Mongo        string `json:"mongo"`
	Redis        string `json:"redis"`
	LiveAuctions int    `json:"liveAuctions"`
}

func (r *Report) Healthy() bool {
	return r.Mongo == StatusOK && r.Redis == StatusOK
}

// HealthCheckUsecase represents the healthCheck's usecases
type HealthCheckUsecase interface {
	Check(context ctx.Ctx) (*Report, error)
}

// HealthCheckRepo is repository layer of healthCheck
type HealthCheckRepo interface {
	PingMongo(context ctx.Ctx) error
	PingRedis(context ctx.Ctx) error
}
