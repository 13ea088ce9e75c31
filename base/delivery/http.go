package delivery

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/x-xyz/goauction/domain"
)

type JsonResponseStatus string

const (
	JsonResponseStatusSuccess JsonResponseStatus = "success"
	JsonResponseStatusFail    JsonResponseStatus = "fail"
)

type JsonResponse struct {
	Data   interface{}        `json:"data"`
	Status JsonResponseStatus `json:"status"`
}

// ErrorData is the data of a failed response
type ErrorData struct {
	Message string `json:"message"`
	// CurrentPrice is set for a domain.PricedError
	CurrentPrice *decimal.Decimal `json:"currentPrice,omitempty"`
}

// MakeJsonResp writes data wrapped in JsonResponse. An error as data is
// turned into ErrorData and a known error overrides status.
func MakeJsonResp(c echo.Context, status int, data interface{}) error {
	if err, ok := data.(error); ok {
		if s := ErrorStatus(err); s != 0 {
			status = s
		}
		body := ErrorData{Message: err.Error()}
		var priced domain.PricedError
		if errors.As(err, &priced) {
			price := priced.Price()
			body.CurrentPrice = &price
		}
		data = body
	}

	if status >= 400 {
		return c.JSON(status, JsonResponse{data, JsonResponseStatusFail})
	}

	if status >= 200 && status < 300 {
		return c.JSON(status, JsonResponse{data, JsonResponseStatusSuccess})
	}

	return c.JSON(status, data)
}

// ErrorStatus maps domain errors to http status, 0 when unknown
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBadParamInput), errors.Is(err, domain.ErrInvalidJsonFormat), errors.Is(err, domain.ErrInvalidNumberFormat):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	}
	return 0
}
