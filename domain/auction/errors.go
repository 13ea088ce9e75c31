package auction

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"

	"github.com/x-xyz/goauction/domain"
)

var (
	ErrAuctionNotFound = xerrors.Errorf("auction not found: %w", domain.ErrNotFound)
	ErrAlreadyExists   = xerrors.Errorf("auction already exists: %w", domain.ErrConflict)
	ErrInvalidDuration = xerrors.Errorf("auction duration below minimum: %w", domain.ErrBadParamInput)
	ErrAuctionClosed   = xerrors.Errorf("auction is closed: %w", domain.ErrConflict)
	// ErrTierNotEligible is returned for non-premium bids during last call
	ErrTierNotEligible = xerrors.Errorf("last call is reserved for premium members: %w", domain.ErrForbidden)
	ErrBidTooLow       = xerrors.Errorf("bid too low: %w", domain.ErrConflict)
)

// BidTooLowError carries the price a retry has to beat.
type BidTooLowError struct {
	CurrentPrice decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid must be greater than current price %s", e.CurrentPrice.String())
}

func (e *BidTooLowError) Unwrap() error {
	return ErrBidTooLow
}

func (e *BidTooLowError) Price() decimal.Decimal {
	return e.CurrentPrice
}
