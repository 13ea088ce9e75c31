package auction

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/x-xyz/goauction/base/ctx"
	"github.com/x-xyz/goauction/base/ptr"
)

type Phase string

const (
	PhaseOpen     Phase = "open"
	PhaseLastCall Phase = "lastCall"
	PhaseClosed   Phase = "closed"
)

// Bidder is the identity snapshot taken when a bid is accepted.
type Bidder struct {
	UserId   string `json:"userId" bson:"userId"`
	Username string `json:"username" bson:"username"`
	Tier     Tier   `json:"tier" bson:"tier"`
}

// Bid is an accepted bid. Rejected attempts are never recorded.
type Bid struct {
	AuctionId      string          `json:"auctionId"`
	BidderId       string          `json:"bidderId"`
	BidderUsername string          `json:"bidderUsername"`
	BidderTier     Tier            `json:"bidderTier"`
	Amount         decimal.Decimal `json:"amount"`
	PlacedAt       time.Time       `json:"placedAt"`
	DuringLastCall bool            `json:"duringLastCall"`
}

func (b Bid) Bidder() Bidder {
	return Bidder{UserId: b.BidderId, Username: b.BidderUsername, Tier: b.BidderTier}
}

// Auction is the live state of one lot. Instances handed out by the usecase
// are copies, mutating them has no effect on the auction.
type Auction struct {
	Id                string          `json:"id"`
	ArtworkRef        string          `json:"artworkRef"`
	SellerId          string          `json:"sellerId,omitempty"`
	StartingPrice     decimal.Decimal `json:"startingPrice"`
	CurrentPrice      decimal.Decimal `json:"currentPrice"`
	HighestBidder     *Bidder         `json:"highestBidder"`
	EndTime           time.Time       `json:"endTime"`
	OriginalEndTime   time.Time       `json:"originalEndTime"`
	Phase             Phase           `json:"phase"`
	LastCallStartedAt *time.Time      `json:"lastCallStartedAt,omitempty"`
	ClosedAt          *time.Time      `json:"closedAt,omitempty"`
	Bids              []Bid           `json:"bids"`
	// Seq is the sequence number of the last event published for this auction
	Seq       uint64    `json:"seq"`
	CreatedAt time.Time `json:"createdAt"`
}

func (a *Auction) Clone() *Auction {
	res := *a
	if a.HighestBidder != nil {
		b := *a.HighestBidder
		res.HighestBidder = &b
	}
	if a.LastCallStartedAt != nil {
		res.LastCallStartedAt = ptr.Time(*a.LastCallStartedAt)
	}
	if a.ClosedAt != nil {
		res.ClosedAt = ptr.Time(*a.ClosedAt)
	}
	res.Bids = make([]Bid, len(a.Bids))
	copy(res.Bids, a.Bids)
	return &res
}

func (a *Auction) IsClosed() bool {
	return a.Phase == PhaseClosed
}

// LastCallEndsAt is the deadline of the sudden-death window, zero unless the
// auction has entered last call.
func (a *Auction) LastCallEndsAt(lastCall time.Duration) time.Time {
	if a.LastCallStartedAt == nil {
		return time.Time{}
	}
	return a.LastCallStartedAt.Add(lastCall)
}

type CreateParams struct {
	// AuctionId is generated when empty
	AuctionId     string
	ArtworkRef    string
	SellerId      string
	StartingPrice decimal.Decimal
	Duration      time.Duration
}

type BidRequest struct {
	AuctionId string
	BidderId  string
	Username  string
	Tier      Tier
	Amount    decimal.Decimal
}

// Repo is the durable mirror of live auctions. The in-memory state stays the
// source of truth while an auction is live, writes here are best-effort.
type Repo interface {
	SaveBid(c ctx.Ctx, bid *Bid) error
	UpdateAuctionSnapshot(c ctx.Ctx, a *Auction) error
	// FindOne returns the persisted auction including its bids
	FindOne(c ctx.Ctx, auctionId string) (*Auction, error)
}

// Publisher delivers events to the real-time transport. Implementations must
// not block the caller for long.
type Publisher interface {
	Publish(c ctx.Ctx, auctionId string, event Event) error
}

type Usecase interface {
	CreateAuction(c ctx.Ctx, params CreateParams) (*Auction, error)
	PlaceBid(c ctx.Ctx, req BidRequest) (*Auction, error)
	GetAuctionState(c ctx.Ctx, auctionId string) (*Auction, error)
	ListAuctions(c ctx.Ctx) ([]*Auction, error)
	LiveCount() int
	// Close stops every armed timer and drains the publisher when it
	// supports Close
	Close()
}
