package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"

	"github.com/x-xyz/goauction/base/ctx"
	"github.com/x-xyz/goauction/base/delivery"
	"github.com/x-xyz/goauction/base/log"
	"github.com/x-xyz/goauction/domain"
	"github.com/x-xyz/goauction/domain/auction"
	authMiddleware "github.com/x-xyz/goauction/stores/auth/delivery/http/middleware"
)

type handler struct {
	auction auction.Usecase
}

func New(e *echo.Echo, auction auction.Usecase, authMiddleware *authMiddleware.AuthMiddleware) {
	h := &handler{auction}

	g := e.Group("/auctions")

	g.GET("", h.list)

	g.POST("", h.create, authMiddleware.Auth())

	g.GET("/:id", h.get)

	g.POST("/:id/bids", h.placeBid, authMiddleware.Auth())
}

type createParams struct {
	AuctionId     string          `json:"auctionId"`
	ArtworkRef    string          `json:"artworkRef" validate:"required"`
	StartingPrice decimal.Decimal `json:"startingPrice" validate:"decimal_gt0"`
	// capped at math.MaxInt64 nanoseconds so the duration cannot wrap
	DurationSeconds int64 `json:"durationSeconds" validate:"gt=0,lte=9223372036"`
}

type bidParams struct {
	Amount decimal.Decimal `json:"amount" validate:"decimal_gt0"`
}

func bind(c echo.Context, p interface{}) error {
	if err := c.Bind(p); err != nil {
		return xerrors.Errorf("%v: %w", err, domain.ErrInvalidJsonFormat)
	}
	return c.Validate(p)
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)

	res, err := h.auction.ListAuctions(ctx)
	if err != nil {
		ctx.WithField("err", err).Error("auction.ListAuctions failed")
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, res)
}

func (h *handler) get(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)
	id := c.Param("id")

	res, err := h.auction.GetAuctionState(ctx, id)
	if err != nil {
		if !xerrors.Is(err, domain.ErrNotFound) {
			ctx.WithFields(log.Fields{"err": err, "auctionId": id}).Error("auction.GetAuctionState failed")
		}
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, res)
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)
	claims, _ := authMiddleware.Claims(c)

	p := &createParams{}
	if err := bind(c, p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	res, err := h.auction.CreateAuction(ctx, auction.CreateParams{
		AuctionId:     p.AuctionId,
		ArtworkRef:    p.ArtworkRef,
		SellerId:      claims.UserId,
		StartingPrice: p.StartingPrice,
		Duration:      time.Duration(p.DurationSeconds) * time.Second,
	})
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusCreated, res)
}

func (h *handler) placeBid(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)
	claims, _ := authMiddleware.Claims(c)

	p := &bidParams{}
	if err := bind(c, p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	res, err := h.auction.PlaceBid(ctx, auction.BidRequest{
		AuctionId: c.Param("id"),
		BidderId:  claims.UserId,
		Username:  claims.Username,
		Tier:      auction.Tier(claims.Tier),
		Amount:    p.Amount,
	})
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusCreated, res)
}
