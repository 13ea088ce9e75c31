package usecase

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/x-xyz/goauction/base/ctx"
	"github.com/x-xyz/goauction/base/log"
	"github.com/x-xyz/goauction/base/metrics"
	"github.com/x-xyz/goauction/base/scheduler"
	"github.com/x-xyz/goauction/domain"
	"github.com/x-xyz/goauction/domain/auction"
	"github.com/x-xyz/goauction/service/cache"
)

const (
	// persistTimeout bounds each best-effort repository write
	persistTimeout = 3 * time.Second
)

type AuctionUseCaseCfg struct {
	Config    auction.Config
	Clock     clock.Clock
	Registry  *Registry
	Repo      auction.Repo
	Publisher auction.Publisher
	// ClosedCache keeps snapshots of evicted auctions, optional
	ClosedCache cache.Service
	Metrics     metrics.Service
}

type impl struct {
	cfg         auction.Config
	clock       clock.Clock
	registry    *Registry
	timers      *scheduler.Scheduler
	repo        auction.Repo
	publisher   auction.Publisher
	closedCache cache.Service
	met         metrics.Service
}

func New(cfg *AuctionUseCaseCfg) auction.Usecase {
	return newImpl(cfg)
}

func newImpl(cfg *AuctionUseCaseCfg) *impl {
	im := &impl{
		cfg:         cfg.Config.WithDefaults(),
		clock:       cfg.Clock,
		registry:    cfg.Registry,
		repo:        cfg.Repo,
		publisher:   cfg.Publisher,
		closedCache: cfg.ClosedCache,
		met:         cfg.Metrics,
	}
	if im.clock == nil {
		im.clock = clock.New()
	}
	if im.registry == nil {
		im.registry = NewRegistry()
	}
	if im.met == nil {
		im.met = metrics.New("auction")
	}
	im.timers = scheduler.New(im.clock)
	return im
}

func (im *impl) CreateAuction(c ctx.Ctx, params auction.CreateParams) (*auction.Auction, error) {
	if params.ArtworkRef == "" {
		return nil, xerrors.Errorf("artworkRef is required: %w", domain.ErrBadParamInput)
	}
	if !params.StartingPrice.IsPositive() {
		return nil, xerrors.Errorf("startingPrice must be positive: %w", domain.ErrBadParamInput)
	}
	if params.Duration < im.cfg.MinimumDuration {
		return nil, auction.ErrInvalidDuration
	}

	id := params.AuctionId
	if id == "" {
		id = uuid.NewString()
	} else if err := im.checkUnused(c, id); err != nil {
		return nil, err
	}

	now := im.clock.Now()
	endTime := now.Add(params.Duration)
	e := newEntry(&auction.Auction{
		Id:              id,
		ArtworkRef:      params.ArtworkRef,
		SellerId:        params.SellerId,
		StartingPrice:   params.StartingPrice,
		CurrentPrice:    params.StartingPrice,
		EndTime:         endTime,
		OriginalEndTime: endTime,
		Phase:           auction.PhaseOpen,
		Bids:            []auction.Bid{},
		CreatedAt:       now,
	})

	// held until the end timer is armed so a concurrent bid sees a fully
	// initialised auction
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := im.registry.insert(e); err != nil {
		c.WithFields(log.Fields{
			"auctionId": id,
		}).Warn("auction already exists")
		return nil, err
	}

	im.armEndTimer(e)
	im.commit(c, e, nil, nil)

	im.met.BumpSum("created", 1)
	c.WithFields(log.Fields{
		"auctionId":     id,
		"startingPrice": params.StartingPrice.String(),
		"endTime":       endTime,
	}).Info("auction created")

	return e.auction.Clone(), nil
}

// checkUnused rejects a caller supplied id that was ever used. Evicted
// auctions only live on in the closed cache and the repository.
func (im *impl) checkUnused(c ctx.Ctx, id string) error {
	if _, ok := im.registry.Get(id); ok {
		return auction.ErrAlreadyExists
	}

	if im.closedCache != nil {
		a := &auction.Auction{}
		if err := im.closedCache.Get(c, id, a); err == nil {
			return auction.ErrAlreadyExists
		} else if err != cache.ErrNotFound {
			c.WithFields(log.Fields{
				"err":       err,
				"auctionId": id,
			}).Warn("failed to closedCache.Get")
		}
	}

	if im.repo == nil {
		return nil
	}

	_, err := im.repo.FindOne(c, id)
	if err == nil {
		c.WithField("auctionId", id).Warn("auction id already stored")
		return auction.ErrAlreadyExists
	} else if !xerrors.Is(err, domain.ErrNotFound) {
		c.WithFields(log.Fields{
			"err":       err,
			"auctionId": id,
		}).Error("failed to repo.FindOne")
		return err
	}
	return nil
}

func (im *impl) GetAuctionState(c ctx.Ctx, auctionId string) (*auction.Auction, error) {
	if a, ok := im.registry.Get(auctionId); ok {
		return a, nil
	}

	if im.closedCache != nil {
		a := &auction.Auction{}
		if err := im.closedCache.Get(c, auctionId, a); err == nil {
			return a, nil
		} else if err != cache.ErrNotFound {
			c.WithFields(log.Fields{
				"err":       err,
				"auctionId": auctionId,
			}).Warn("failed to closedCache.Get")
		}
	}

	if im.repo == nil {
		return nil, auction.ErrAuctionNotFound
	}

	a, err := im.repo.FindOne(c, auctionId)
	if xerrors.Is(err, domain.ErrNotFound) {
		return nil, auction.ErrAuctionNotFound
	} else if err != nil {
		c.WithFields(log.Fields{
			"err":       err,
			"auctionId": auctionId,
		}).Error("failed to repo.FindOne")
		return nil, err
	}

	if a.IsClosed() && im.closedCache != nil {
		if err := im.closedCache.Set(c, auctionId, a); err != nil {
			c.WithFields(log.Fields{
				"err":       err,
				"auctionId": auctionId,
			}).Warn("failed to closedCache.Set")
		}
	}
	return a, nil
}

func (im *impl) ListAuctions(c ctx.Ctx) ([]*auction.Auction, error) {
	return im.registry.List(), nil
}

func (im *impl) LiveCount() int {
	return im.registry.Len()
}

func (im *impl) Close() {
	im.timers.Stop()
	// pending events are delivered before returning
	if closer, ok := im.publisher.(interface{ Close() }); ok {
		closer.Close()
	}
}

// persist mirrors the auction (and the accepted bid if any) to the repo.
// Failures are logged, the in-memory state stays authoritative.
func (im *impl) persist(c ctx.Ctx, snapshot *auction.Auction, bid *auction.Bid) {
	if im.repo == nil {
		return
	}

	pc, cancel := ctx.WithTimeout(ctx.Detach(c), persistTimeout)
	defer cancel()

	if bid != nil {
		if err := im.repo.SaveBid(pc, bid); err != nil {
			im.met.BumpSum("persist.err", 1, "op", "saveBid")
			pc.WithFields(log.Fields{
				"err":       err,
				"auctionId": bid.AuctionId,
			}).Error("failed to repo.SaveBid")
		}
	}

	if err := im.repo.UpdateAuctionSnapshot(pc, snapshot); err != nil {
		im.met.BumpSum("persist.err", 1, "op", "updateAuctionSnapshot")
		pc.WithFields(log.Fields{
			"err":       err,
			"auctionId": snapshot.Id,
		}).Error("failed to repo.UpdateAuctionSnapshot")
	}
}

// publish hands events to the publisher in order. Must be called with e.mu
// held so events of one auction leave in sequence.
func (im *impl) publish(c ctx.Ctx, events []auction.Event) {
	if im.publisher == nil {
		return
	}
	for _, ev := range events {
		if err := im.publisher.Publish(c, ev.AuctionId, ev); err != nil {
			im.met.BumpSum("publish.err", 1, "type", string(ev.Type))
			c.WithFields(log.Fields{
				"err":       err,
				"auctionId": ev.AuctionId,
				"type":      ev.Type,
				"seq":       ev.Seq,
			}).Error("failed to publisher.Publish")
		}
	}
}

// commit makes a mutation visible. Events go out last so a subscriber that
// reacts to one already reads the new state. Must be called with e.mu held.
func (im *impl) commit(c ctx.Ctx, e *entry, bid *auction.Bid, events []auction.Event) {
	snapshot := e.storeSnapshot()
	im.persist(c, snapshot, bid)
	im.publish(c, events)
}
