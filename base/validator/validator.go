package validator

import (
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"

	"github.com/x-xyz/goauction/domain"
)

type Option func(v *validator.Validate)

// WithStringTag registers tag for string fields accepted by valid
func WithStringTag(tag string, valid func(string) bool) Option {
	return func(v *validator.Validate) {
		mustRegister(v, tag, func(fl validator.FieldLevel) bool {
			return valid(fl.Field().String())
		})
	}
}

// NewCustomValidator returns the echo validator with decimal_gt0 for
// positive decimal.Decimal fields plus the tags given in opts.
func NewCustomValidator(opts ...Option) echo.Validator {
	v := validator.New()
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	mustRegister(v, "decimal_gt0", isPositiveDecimal)
	for _, opt := range opts {
		opt(v)
	}
	return &CustomValidator{v}
}

type CustomValidator struct {
	validator *validator.Validate
}

func (v *CustomValidator) Validate(i interface{}) error {
	if err := v.validator.Struct(i); err != nil {
		return xerrors.Errorf("%v: %w", err, domain.ErrBadParamInput)
	}
	return nil
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// decimalValue exposes a decimal as its string so tags see a plain value
func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		return d.String()
	}
	return nil
}

func isPositiveDecimal(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	return d.IsPositive()
}
