package usecase

import (
	"time"

	"golang.org/x/xerrors"

	"github.com/x-xyz/goauction/base/ctx"
	"github.com/x-xyz/goauction/base/log"
	"github.com/x-xyz/goauction/base/ptr"
	"github.com/x-xyz/goauction/domain"
	"github.com/x-xyz/goauction/domain/auction"
)

func (im *impl) PlaceBid(c ctx.Ctx, req auction.BidRequest) (*auction.Auction, error) {
	defer im.met.BumpTime("placebid.time").End()

	if req.BidderId == "" {
		im.rejected(domain.ErrBadParamInput)
		return nil, xerrors.Errorf("bidderId is required: %w", domain.ErrBadParamInput)
	}

	e, ok := im.registry.lookup(req.AuctionId)
	if !ok {
		im.rejected(auction.ErrAuctionNotFound)
		return nil, auction.ErrAuctionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := im.clock.Now()
	a := e.auction

	// a timer that has not fired yet must not let a late bid through
	events := im.advance(e, now)

	if err := validateBid(a, req); err != nil {
		if len(events) > 0 {
			im.commit(c, e, nil, events)
		}
		im.rejected(err)
		return nil, err
	}

	bid := auction.Bid{
		AuctionId:      a.Id,
		BidderId:       req.BidderId,
		BidderUsername: req.Username,
		BidderTier:     req.Tier,
		Amount:         req.Amount,
		PlacedAt:       now,
		DuringLastCall: a.Phase == auction.PhaseLastCall,
	}
	bidder := bid.Bidder()
	bidPhase := a.Phase

	var extended *auction.TimeExtendedPayload
	if a.Phase == auction.PhaseOpen && a.EndTime.Sub(now) < im.cfg.SoftCloseWindow {
		extended = &auction.TimeExtendedPayload{
			PreviousEndTime: a.EndTime,
			EndTime:         now.Add(im.cfg.SoftCloseWindow),
		}
		a.EndTime = extended.EndTime
		im.armEndTimer(e)
	}

	a.Bids = append(a.Bids, bid)
	a.CurrentPrice = req.Amount
	a.HighestBidder = &bidder

	events = append(events, im.newEvent(a, auction.EventNewBid, now, auction.NewBidPayload{
		Bid:          bid,
		CurrentPrice: a.CurrentPrice,
		EndTime:      a.EndTime,
		Phase:        a.Phase,
	}))
	if extended != nil {
		events = append(events, im.newEvent(a, auction.EventTimeExtended, now, *extended))
	}
	if a.Phase == auction.PhaseLastCall {
		events = append(events, im.closeAuction(e, now))
	}

	im.commit(c, e, &bid, events)

	im.met.BumpSum("bid.accepted", 1, "phase", string(bidPhase))
	c.WithFields(log.Fields{
		"auctionId": a.Id,
		"bidderId":  req.BidderId,
		"amount":    req.Amount.String(),
		"phase":     a.Phase,
		"extended":  extended != nil,
	}).Info("bid accepted")

	return a.Clone(), nil
}

func validateBid(a *auction.Auction, req auction.BidRequest) error {
	if a.Phase == auction.PhaseClosed {
		return auction.ErrAuctionClosed
	}
	if !auction.CanBid(a.Phase, req.Tier) {
		return auction.ErrTierNotEligible
	}
	if !req.Amount.GreaterThan(a.CurrentPrice) {
		return &auction.BidTooLowError{CurrentPrice: a.CurrentPrice}
	}
	return nil
}

func (im *impl) rejected(err error) {
	im.met.BumpSum("bid.rejected", 1, "reason", rejectReason(err))
}

func rejectReason(err error) string {
	switch {
	case xerrors.Is(err, auction.ErrAuctionNotFound):
		return "notFound"
	case xerrors.Is(err, auction.ErrAuctionClosed):
		return "closed"
	case xerrors.Is(err, auction.ErrTierNotEligible):
		return "tierNotEligible"
	case xerrors.Is(err, auction.ErrBidTooLow):
		return "tooLow"
	case xerrors.Is(err, domain.ErrBadParamInput):
		return "badParam"
	}
	return "unknown"
}

// advance applies the transitions that are due at now and returns their
// events. Must be called with e.mu held.
func (im *impl) advance(e *entry, now time.Time) []auction.Event {
	a := e.auction
	events := []auction.Event{}

	if a.Phase == auction.PhaseOpen && !now.Before(a.EndTime) {
		events = append(events, im.enterLastCall(e, now))
	}
	if a.Phase == auction.PhaseLastCall && !now.Before(a.LastCallEndsAt(im.cfg.LastCallDuration)) {
		events = append(events, im.closeAuction(e, now))
	}
	return events
}

// enterLastCall moves an open auction to last call. Must be called with e.mu
// held.
func (im *impl) enterLastCall(e *entry, now time.Time) auction.Event {
	a := e.auction
	a.Phase = auction.PhaseLastCall
	a.LastCallStartedAt = ptr.Time(now)

	im.timers.Cancel(endTimerKey(a.Id))
	im.armLastCallTimer(e)

	im.met.BumpSum("phase", 1, "to", string(auction.PhaseLastCall))

	var highest *auction.Bidder
	if a.HighestBidder != nil {
		b := *a.HighestBidder
		highest = &b
	}
	return im.newEvent(a, auction.EventLastCallStarted, now, auction.LastCallStartedPayload{
		StartedAt:     now,
		EndsAt:        a.LastCallEndsAt(im.cfg.LastCallDuration),
		CurrentPrice:  a.CurrentPrice,
		HighestBidder: highest,
	})
}

// closeAuction makes the auction terminal and schedules its eviction. Must be
// called with e.mu held.
func (im *impl) closeAuction(e *entry, now time.Time) auction.Event {
	a := e.auction
	a.Phase = auction.PhaseClosed
	a.ClosedAt = ptr.Time(now)

	im.timers.Cancel(endTimerKey(a.Id))
	im.timers.Cancel(lastCallTimerKey(a.Id))
	im.armCleanupTimer(e, now)

	im.met.BumpSum("phase", 1, "to", string(auction.PhaseClosed))

	var winner *auction.Bidder
	if a.HighestBidder != nil {
		b := *a.HighestBidder
		winner = &b
	}
	return im.newEvent(a, auction.EventAuctionClosed, now, auction.AuctionClosedPayload{
		Winner:     winner,
		FinalPrice: a.CurrentPrice,
		TotalBids:  len(a.Bids),
		Sold:       winner != nil,
	})
}

// newEvent stamps the next sequence number of a. Must be called with the
// auction's lock held.
func (im *impl) newEvent(a *auction.Auction, typ auction.EventType, at time.Time, payload interface{}) auction.Event {
	a.Seq++
	return auction.Event{
		AuctionId: a.Id,
		Seq:       a.Seq,
		Type:      typ,
		At:        at,
		Payload:   payload,
	}
}
