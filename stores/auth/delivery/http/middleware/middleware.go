package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/x-xyz/goauction/base/ctx"
	"github.com/x-xyz/goauction/domain"
)

const (
	// ClaimsKey is the echo context key of the authenticated *domain.JwtCustomClaims
	ClaimsKey = "claims"
)

type AuthMiddleware struct {
	auth domain.AuthUsecase
}

func New(auth domain.AuthUsecase) *AuthMiddleware {
	return &AuthMiddleware{
		auth: auth,
	}
}

// Auth requires "Authorization: Bearer <token>"
func (m *AuthMiddleware) Auth() echo.MiddlewareFunc {
	return middleware.KeyAuth(m.validateAuthToken)
}

// Claims returns the bidder set by Auth
func Claims(c echo.Context) (*domain.JwtCustomClaims, bool) {
	claims, ok := c.Get(ClaimsKey).(*domain.JwtCustomClaims)
	return claims, ok
}

func (m *AuthMiddleware) validateAuthToken(key string, c echo.Context) (bool, error) {
	cont, ok := c.Get("ctx").(ctx.Ctx)
	if !ok {
		cont = ctx.Background()
	}

	claims, err := m.auth.ParseToken(cont, key)
	if err != nil {
		cont.WithField("err", err).Warn("auth.ParseToken failed")
		return false, nil
	}
	c.Set(ClaimsKey, claims)
	c.Set("ctx", ctx.WithValue(cont, "bidderId", claims.UserId))
	return true, nil
}
