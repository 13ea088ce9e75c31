package domain

import (
	"github.com/golang-jwt/jwt"
	"github.com/x-xyz/goauction/base/ctx"
)

// JwtCustomClaims identifies a bidder. Tier is resolved by the account
// service when the token is issued, bids trust it as-is.
type JwtCustomClaims struct {
	UserId   string `json:"uid"`
	Username string `json:"name"`
	Tier     string `json:"tier"`
	jwt.StandardClaims
}

type AuthUsecase interface {
	SignToken(ctx ctx.Ctx, claims JwtCustomClaims) (string, error)
	ParseToken(ctx ctx.Ctx, token string) (*JwtCustomClaims, error)
}
