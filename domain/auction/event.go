package auction

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventNewBid          EventType = "newBid"
	EventTimeExtended    EventType = "timeExtended"
	EventLastCallStarted EventType = "lastCallStarted"
	EventAuctionClosed   EventType = "auctionClosed"
)

// Event is one state change of an auction. Seq increases by one per event of
// the same auction so subscribers can restore order.
type Event struct {
	AuctionId string      `json:"auctionId"`
	Seq       uint64      `json:"seq"`
	Type      EventType   `json:"type"`
	At        time.Time   `json:"at"`
	Payload   interface{} `json:"payload"`
}

type NewBidPayload struct {
	Bid          Bid             `json:"bid"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
	EndTime      time.Time       `json:"endTime"`
	Phase        Phase           `json:"phase"`
}

type TimeExtendedPayload struct {
	PreviousEndTime time.Time `json:"previousEndTime"`
	EndTime         time.Time `json:"endTime"`
}

type LastCallStartedPayload struct {
	StartedAt     time.Time       `json:"startedAt"`
	EndsAt        time.Time       `json:"endsAt"`
	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	HighestBidder *Bidder         `json:"highestBidder"`
}

type AuctionClosedPayload struct {
	// Winner is nil for an unsold lot
	Winner     *Bidder         `json:"winner"`
	FinalPrice decimal.Decimal `json:"finalPrice"`
	TotalBids  int             `json:"totalBids"`
	Sold       bool            `json:"sold"`
}
