package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInternalServerError will throw if any the Internal Server Error happen
	ErrInternalServerError = errors.New("Internal Server Error")
	// ErrNotFound will throw if the requested item is not exists
	ErrNotFound = errors.New("Your requested Item is not found")
	// ErrConflict will throw if the current action already exists
	ErrConflict = errors.New("Your Item already exist")
	// ErrBadParamInput will throw if the given request-body or params is not valid
	ErrBadParamInput        = errors.New("Given Param is not valid")
	ErrInvalidJsonFormat    = errors.New("invalid JSON format")
	ErrInvalidNumberFormat  = errors.New("invalid number format")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidSigningMethod = errors.New("unexpected signing method")

	ErrNotImplemented = errors.New("not implemented")
)

// PricedError is an error carrying the price a retry has to beat
type PricedError interface {
	error
	Price() decimal.Decimal
}
