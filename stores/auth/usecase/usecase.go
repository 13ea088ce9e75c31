package usecase

import (
	"time"

	"github.com/golang-jwt/jwt"
	"golang.org/x/xerrors"

	"github.com/x-xyz/goauction/base/ctx"
	"github.com/x-xyz/goauction/domain"
	"github.com/x-xyz/goauction/domain/auction"
)

const (
	defaultTokenTTL = 24 * time.Hour
)

var (
	timeNow = time.Now
)

type impl struct {
	jwtSecret []byte
	ttl       time.Duration
}

// New signs and verifies HS256 bidder tokens. A non-positive ttl falls back
// to one day.
func New(jwtSecret string, ttl time.Duration) domain.AuthUsecase {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &impl{
		jwtSecret: []byte(jwtSecret),
		ttl:       ttl,
	}
}

func (im *impl) SignToken(c ctx.Ctx, claims domain.JwtCustomClaims) (string, error) {
	if err := validate(&claims); err != nil {
		return "", err
	}
	claims.IssuedAt = timeNow().Unix()
	claims.ExpiresAt = timeNow().Add(im.ttl).Unix()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(im.jwtSecret)
	if err != nil {
		c.WithField("err", err).Error("token.SignedString failed")
		return "", err
	}
	return ss, nil
}

func (im *impl) ParseToken(c ctx.Ctx, str string) (*domain.JwtCustomClaims, error) {
	token, err := jwt.ParseWithClaims(str, &domain.JwtCustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, xerrors.Errorf("alg %v: %w", token.Header["alg"], domain.ErrInvalidSigningMethod)
		}
		return im.jwtSecret, nil
	})
	if err != nil {
		return nil, xerrors.Errorf("%v: %w", err, domain.ErrUnauthorized)
	}

	claims, ok := token.Claims.(*domain.JwtCustomClaims)
	if !ok || !token.Valid {
		return nil, domain.ErrUnauthorized
	}
	if err := validate(claims); err != nil {
		return nil, xerrors.Errorf("%v: %w", err, domain.ErrUnauthorized)
	}
	return claims, nil
}

// validate normalizes the tier in place
func validate(claims *domain.JwtCustomClaims) error {
	if claims.UserId == "" {
		return xerrors.Errorf("empty uid: %w", domain.ErrBadParamInput)
	}
	tier, err := auction.ParseTier(claims.Tier)
	if err != nil {
		return err
	}
	claims.Tier = string(tier)
	return nil
}
