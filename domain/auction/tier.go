package auction

import (
	"strings"

	"golang.org/x/xerrors"

	"github.com/x-xyz/goauction/domain"
)

// Tier is the bidder's subscription level, supplied with every bid
type Tier string

const (
	TierFree    Tier = "free"
	TierBasic   Tier = "basic"
	TierPlus    Tier = "plus"
	TierPremium Tier = "premium"
)

func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case TierFree, TierBasic, TierPlus, TierPremium:
		return t, nil
	}
	return "", xerrors.Errorf("unknown tier %q: %w", s, domain.ErrBadParamInput)
}

func ValidTier(s string) bool {
	_, err := ParseTier(s)
	return err == nil
}

// CanBid reports whether a bidder of the tier may bid during phase.
func CanBid(phase Phase, tier Tier) bool {
	switch phase {
	case PhaseOpen:
		return true
	case PhaseLastCall:
		return tier == TierPremium
	}
	return false
}
