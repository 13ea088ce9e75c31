package usecase

import (
	"time"

	"github.com/x-xyz/goauction/base/ctx"
	"github.com/x-xyz/goauction/base/log"
	"github.com/x-xyz/goauction/domain/auction"
)

func endTimerKey(auctionId string) string      { return "end:" + auctionId }
func lastCallTimerKey(auctionId string) string { return "lastCall:" + auctionId }
func cleanupTimerKey(auctionId string) string  { return "cleanup:" + auctionId }

func timerCtx(auctionId, timer string) ctx.Ctx {
	return ctx.WithValues(ctx.Background(), map[string]interface{}{
		"auctionId": auctionId,
		"timer":     timer,
	})
}

// armEndTimer (re)arms the end-of-open-phase timer at the current EndTime.
// Must be called with e.mu held.
func (im *impl) armEndTimer(e *entry) {
	im.timers.ArmAt(endTimerKey(e.auction.Id), e.auction.EndTime, func() {
		im.onEndTime(e)
	})
}

// armLastCallTimer must be called with e.mu held.
func (im *impl) armLastCallTimer(e *entry) {
	a := e.auction
	im.timers.ArmAt(lastCallTimerKey(a.Id), a.LastCallEndsAt(im.cfg.LastCallDuration), func() {
		im.onLastCallExpired(e)
	})
}

func (im *impl) armCleanupTimer(e *entry, closedAt time.Time) {
	im.timers.ArmAt(cleanupTimerKey(e.auction.Id), closedAt.Add(im.cfg.CleanupGrace), func() {
		im.onCleanup(e)
	})
}

// onEndTime re-reads the auction, the deadline it was armed for may have
// moved or a bid may already have advanced the phase.
func (im *impl) onEndTime(e *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a := e.auction
	if a.Phase != auction.PhaseOpen {
		return
	}
	now := im.clock.Now()
	if now.Before(a.EndTime) {
		im.armEndTimer(e)
		return
	}

	c := timerCtx(a.Id, "end")
	ev := im.enterLastCall(e, now)
	im.commit(c, e, nil, []auction.Event{ev})
	c.WithFields(log.Fields{
		"currentPrice": a.CurrentPrice.String(),
		"endsAt":       a.LastCallEndsAt(im.cfg.LastCallDuration),
	}).Info("last call started")
}

func (im *impl) onLastCallExpired(e *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a := e.auction
	if a.Phase != auction.PhaseLastCall {
		return
	}
	now := im.clock.Now()
	if now.Before(a.LastCallEndsAt(im.cfg.LastCallDuration)) {
		im.armLastCallTimer(e)
		return
	}

	c := timerCtx(a.Id, "lastCall")
	ev := im.closeAuction(e, now)
	im.commit(c, e, nil, []auction.Event{ev})
	c.WithFields(log.Fields{
		"finalPrice": a.CurrentPrice.String(),
		"totalBids":  len(a.Bids),
	}).Info("auction closed")
}

// onCleanup evicts a closed auction from the registry. The final snapshot
// goes to the closed cache first so reads keep resolving without the repo.
func (im *impl) onCleanup(e *entry) {
	e.mu.Lock()
	if e.auction.Phase != auction.PhaseClosed {
		e.mu.Unlock()
		return
	}
	snapshot := e.auction.Clone()
	e.mu.Unlock()

	c := timerCtx(snapshot.Id, "cleanup")
	if im.closedCache != nil {
		if err := im.closedCache.Set(c, snapshot.Id, snapshot); err != nil {
			c.WithField("err", err).Warn("failed to closedCache.Set")
		}
	}

	if im.registry.remove(snapshot.Id, e) {
		im.met.BumpSum("evicted", 1)
		c.Info("auction evicted")
	}
}
