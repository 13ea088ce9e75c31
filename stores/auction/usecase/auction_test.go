package usecase

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/x-xyz/goauction/base/ctx"
	"github.com/x-xyz/goauction/domain"
	"github.com/x-xyz/goauction/domain/auction"
	"github.com/x-xyz/goauction/domain/auction/mocks"
	"github.com/x-xyz/goauction/service/cache"
	"github.com/x-xyz/goauction/service/cache/provider/primitive"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []auction.Event
}

func (r *eventRecorder) add(args mock.Arguments) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, args.Get(2).(auction.Event))
}

func (r *eventRecorder) all() []auction.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]auction.Event(nil), r.events...)
}

func (r *eventRecorder) types() []auction.EventType {
	res := []auction.EventType{}
	for _, ev := range r.all() {
		res = append(res, ev.Type)
	}
	return res
}

func (r *eventRecorder) last() auction.Event {
	events := r.all()
	return events[len(events)-1]
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// storedAuctions stands in for auctions persisted in the repository
type storedAuctions struct {
	mu   sync.Mutex
	byId map[string]*auction.Auction
}

func (s *storedAuctions) put(a *auction.Auction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byId[a.Id] = a
}

func (s *storedAuctions) find(_ ctx.Ctx, id string) *auction.Auction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byId[id]
}

func (s *storedAuctions) err(c ctx.Ctx, id string) error {
	if s.find(c, id) == nil {
		return domain.ErrNotFound
	}
	return nil
}

type auctionSuite struct {
	suite.Suite

	c     ctx.Ctx
	clock *clock.Mock
	repo  *mocks.Repo
	pub   *mocks.Publisher
	rec   *eventRecorder
	saved *storedAuctions
	im    *impl
}

func TestAuctionSuite(t *testing.T) {
	suite.Run(t, new(auctionSuite))
}

func (s *auctionSuite) SetupTest() {
	s.c = ctx.Background()
	s.clock = clock.NewMock()
	s.rec = &eventRecorder{}
	s.saved = &storedAuctions{byId: map[string]*auction.Auction{}}

	s.repo = &mocks.Repo{}
	s.repo.On("FindOne", mock.Anything, mock.Anything).Return(s.saved.find, s.saved.err)
	s.repo.On("SaveBid", mock.Anything, mock.Anything).Return(nil)
	s.repo.On("UpdateAuctionSnapshot", mock.Anything, mock.Anything).Return(nil)

	s.pub = &mocks.Publisher{}
	s.pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Run(s.rec.add).Return(nil)

	s.im = newImpl(&AuctionUseCaseCfg{
		Clock:     s.clock,
		Repo:      s.repo,
		Publisher: s.pub,
	})
}

func (s *auctionSuite) TearDownTest() {
	s.im.Close()
}

func (s *auctionSuite) snapshotCalls() []*auction.Auction {
	res := []*auction.Auction{}
	for _, call := range s.repo.Calls {
		if call.Method == "UpdateAuctionSnapshot" {
			res = append(res, call.Arguments.Get(1).(*auction.Auction))
		}
	}
	return res
}

func (s *auctionSuite) create(id string, price string, d time.Duration) *auction.Auction {
	a, err := s.im.CreateAuction(s.c, auction.CreateParams{
		AuctionId:     id,
		ArtworkRef:    "artwork-" + id,
		SellerId:      "seller",
		StartingPrice: dec(price),
		Duration:      d,
	})
	s.Require().NoError(err)
	return a
}

func (s *auctionSuite) bid(id, bidder string, tier auction.Tier, amount string) (*auction.Auction, error) {
	return s.im.PlaceBid(s.c, auction.BidRequest{
		AuctionId: id,
		BidderId:  bidder,
		Username:  bidder,
		Tier:      tier,
		Amount:    dec(amount),
	})
}

func (s *auctionSuite) state(id string) *auction.Auction {
	a, err := s.im.GetAuctionState(s.c, id)
	s.Require().NoError(err)
	return a
}

func (s *auctionSuite) waitPhase(id string, phase auction.Phase) {
	s.Require().Eventually(func() bool {
		a, ok := s.im.registry.Get(id)
		return ok && a.Phase == phase
	}, time.Second, 5*time.Millisecond)
}

func (s *auctionSuite) waitEvents(n int) {
	s.Require().Eventually(func() bool {
		return len(s.rec.all()) == n
	}, time.Second, 5*time.Millisecond)
}

func (s *auctionSuite) TestCreateAuction() {
	start := s.clock.Now()
	a := s.create("a1", "100", 10*time.Minute)

	s.Equal("a1", a.Id)
	s.Equal(auction.PhaseOpen, a.Phase)
	s.True(dec("100").Equal(a.CurrentPrice))
	s.True(a.EndTime.Equal(start.Add(10 * time.Minute)))
	s.True(a.OriginalEndTime.Equal(a.EndTime))
	s.Nil(a.HighestBidder)
	s.Empty(a.Bids)
	s.Equal(1, s.im.LiveCount())
	s.True(s.im.timers.Armed(endTimerKey("a1")))
	s.repo.AssertNumberOfCalls(s.T(), "UpdateAuctionSnapshot", 1)
	s.Empty(s.rec.all())
}

func (s *auctionSuite) TestCreateAuctionGeneratesId() {
	a := s.create("", "1", time.Minute)
	s.NotEmpty(a.Id)
	s.Equal(a.Id, s.state(a.Id).Id)
}

func (s *auctionSuite) TestCreateAuctionValidation() {
	s.create("dup", "100", time.Minute)

	cases := []struct {
		name   string
		params auction.CreateParams
		want   error
	}{
		{
			name:   "duration below minimum",
			params: auction.CreateParams{ArtworkRef: "x", StartingPrice: dec("1"), Duration: 59 * time.Second},
			want:   auction.ErrInvalidDuration,
		},
		{
			name:   "zero starting price",
			params: auction.CreateParams{ArtworkRef: "x", StartingPrice: dec("0"), Duration: time.Minute},
			want:   domain.ErrBadParamInput,
		},
		{
			name:   "missing artwork",
			params: auction.CreateParams{StartingPrice: dec("1"), Duration: time.Minute},
			want:   domain.ErrBadParamInput,
		},
		{
			name:   "existing id",
			params: auction.CreateParams{AuctionId: "dup", ArtworkRef: "x", StartingPrice: dec("1"), Duration: time.Minute},
			want:   auction.ErrAlreadyExists,
		},
	}

	for _, c := range cases {
		_, err := s.im.CreateAuction(s.c, c.params)
		s.ErrorIs(err, c.want, c.name)
	}
	s.Equal(1, s.im.LiveCount())
	s.ErrorIs(auction.ErrAlreadyExists, domain.ErrConflict)
}

func (s *auctionSuite) TestPlaceBidUnknownAuction() {
	_, err := s.bid("nope", "alice", auction.TierFree, "10")
	s.ErrorIs(err, auction.ErrAuctionNotFound)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *auctionSuite) TestPlaceBidRequiresBidder() {
	s.create("a1", "100", 10*time.Minute)
	_, err := s.bid("a1", "", auction.TierFree, "200")
	s.ErrorIs(err, domain.ErrBadParamInput)
}

func (s *auctionSuite) TestStrictlyIncreasingPrice() {
	s.create("a1", "1000", 10*time.Minute)

	for _, amount := range []string{"1000", "999"} {
		_, err := s.bid("a1", "alice", auction.TierFree, amount)
		s.ErrorIs(err, auction.ErrBidTooLow, amount)

		var tooLow *auction.BidTooLowError
		s.Require().True(errors.As(err, &tooLow))
		s.True(dec("1000").Equal(tooLow.CurrentPrice))
	}

	a, err := s.bid("a1", "alice", auction.TierFree, "1000.01")
	s.Require().NoError(err)
	s.True(dec("1000.01").Equal(a.CurrentPrice))
	s.Equal("alice", a.HighestBidder.UserId)
	s.Len(a.Bids, 1)
	s.Equal([]auction.EventType{auction.EventNewBid}, s.rec.types())
	s.repo.AssertNumberOfCalls(s.T(), "SaveBid", 1)
}

func (s *auctionSuite) TestSelfOutbidIsAllowed() {
	s.create("a1", "100", 10*time.Minute)
	_, err := s.bid("a1", "alice", auction.TierFree, "110")
	s.Require().NoError(err)
	a, err := s.bid("a1", "alice", auction.TierFree, "120")
	s.Require().NoError(err)
	s.Len(a.Bids, 2)
}

func (s *auctionSuite) TestSoftCloseExtendsEndTime() {
	start := s.clock.Now()
	s.create("a1", "100", 6*time.Minute)

	s.clock.Add(350 * time.Second)
	a, err := s.bid("a1", "alice", auction.TierFree, "150")
	s.Require().NoError(err)

	now := start.Add(350 * time.Second)
	s.True(dec("150").Equal(a.CurrentPrice))
	s.True(a.EndTime.Equal(now.Add(5*time.Minute)), a.EndTime)
	s.True(a.OriginalEndTime.Equal(start.Add(6 * time.Minute)))

	s.Equal([]auction.EventType{auction.EventNewBid, auction.EventTimeExtended}, s.rec.types())
	extended := s.rec.last().Payload.(auction.TimeExtendedPayload)
	s.True(extended.PreviousEndTime.Equal(start.Add(6 * time.Minute)))
	s.True(extended.EndTime.Equal(a.EndTime))

	// the superseded end timer must not start last call
	s.clock.Add(20 * time.Second)
	s.Equal(auction.PhaseOpen, s.state("a1").Phase)
	s.Len(s.rec.all(), 2)
}

func (s *auctionSuite) TestSoftCloseBoundary() {
	start := s.clock.Now()
	s.create("a1", "100", 10*time.Minute)

	// exactly the window left, no extension
	s.clock.Add(5 * time.Minute)
	a, err := s.bid("a1", "alice", auction.TierFree, "110")
	s.Require().NoError(err)
	s.True(a.EndTime.Equal(start.Add(10 * time.Minute)))

	s.clock.Add(time.Second)
	a, err = s.bid("a1", "bob", auction.TierFree, "120")
	s.Require().NoError(err)
	s.True(a.EndTime.Equal(start.Add(5*time.Minute + time.Second + 5*time.Minute)))

	// reset to now+window, not cumulative
	s.clock.Add(time.Minute)
	a, err = s.bid("a1", "alice", auction.TierFree, "130")
	s.Require().NoError(err)
	s.True(a.EndTime.Equal(start.Add(6*time.Minute + time.Second + 5*time.Minute)))

	s.Equal([]auction.EventType{
		auction.EventNewBid,
		auction.EventNewBid, auction.EventTimeExtended,
		auction.EventNewBid, auction.EventTimeExtended,
	}, s.rec.types())
}

func (s *auctionSuite) TestLastCallSuddenDeath() {
	start := s.clock.Now()
	s.create("a1", "100", time.Minute)

	_, err := s.bid("a1", "alice", auction.TierBasic, "500")
	s.Require().NoError(err)
	endTime := s.state("a1").EndTime
	s.True(endTime.Equal(start.Add(5 * time.Minute)))

	s.clock.Add(endTime.Sub(s.clock.Now()))
	s.waitPhase("a1", auction.PhaseLastCall)
	s.waitEvents(3)

	lastCall := s.rec.last()
	s.Equal(auction.EventLastCallStarted, lastCall.Type)
	payload := lastCall.Payload.(auction.LastCallStartedPayload)
	s.True(dec("500").Equal(payload.CurrentPrice))
	s.Equal("alice", payload.HighestBidder.UserId)
	s.True(payload.EndsAt.Equal(payload.StartedAt.Add(10 * time.Second)))

	before := s.state("a1")
	_, err = s.bid("a1", "bob", auction.TierFree, "600")
	s.ErrorIs(err, auction.ErrTierNotEligible)
	_, err = s.bid("a1", "dave", auction.TierPlus, "600")
	s.ErrorIs(err, auction.ErrTierNotEligible)
	s.Equal(before, s.state("a1"))

	a, err := s.bid("a1", "carol", auction.TierPremium, "600")
	s.Require().NoError(err)
	s.Equal(auction.PhaseClosed, a.Phase)
	s.Equal("carol", a.HighestBidder.UserId)
	s.True(dec("600").Equal(a.CurrentPrice))
	s.True(a.Bids[1].DuringLastCall)
	s.False(a.Bids[0].DuringLastCall)

	events := s.rec.all()
	s.Require().Len(events, 5)
	s.Equal(auction.EventNewBid, events[3].Type)
	s.Equal(auction.EventAuctionClosed, events[4].Type)
	closed := events[4].Payload.(auction.AuctionClosedPayload)
	s.True(closed.Sold)
	s.Equal("carol", closed.Winner.UserId)
	s.True(dec("600").Equal(closed.FinalPrice))
	s.Equal(2, closed.TotalBids)

	s.False(s.im.timers.Armed(lastCallTimerKey("a1")))
	s.True(s.im.timers.Armed(cleanupTimerKey("a1")))
}

func (s *auctionSuite) TestLastCallEnteredLazily() {
	start := s.clock.Now()
	s.create("a1", "100", time.Minute)
	s.im.timers.Cancel(endTimerKey("a1"))

	s.clock.Add(61 * time.Second)
	_, err := s.bid("a1", "bob", auction.TierBasic, "200")
	s.ErrorIs(err, auction.ErrTierNotEligible)

	// the transition sticks even though the bid was refused
	a := s.state("a1")
	s.Equal(auction.PhaseLastCall, a.Phase)
	s.True(a.LastCallStartedAt.Equal(start.Add(61 * time.Second)))
	s.Equal([]auction.EventType{auction.EventLastCallStarted}, s.rec.types())
	s.True(s.im.timers.Armed(lastCallTimerKey("a1")))

	a, err = s.bid("a1", "carol", auction.TierPremium, "200")
	s.Require().NoError(err)
	s.Equal(auction.PhaseClosed, a.Phase)
	s.Equal([]auction.EventType{
		auction.EventLastCallStarted,
		auction.EventNewBid,
		auction.EventAuctionClosed,
	}, s.rec.types())
}

func (s *auctionSuite) TestLastCallClosedLazily() {
	s.create("a1", "100", time.Minute)
	s.clock.Add(time.Minute)
	s.waitPhase("a1", auction.PhaseLastCall)
	s.waitEvents(1)

	s.im.timers.Cancel(lastCallTimerKey("a1"))
	s.clock.Add(10 * time.Second)
	s.Equal(auction.PhaseLastCall, s.state("a1").Phase)

	_, err := s.bid("a1", "carol", auction.TierPremium, "200")
	s.ErrorIs(err, auction.ErrAuctionClosed)
	s.Equal(auction.PhaseClosed, s.state("a1").Phase)
	s.Equal([]auction.EventType{auction.EventLastCallStarted, auction.EventAuctionClosed}, s.rec.types())
}

func (s *auctionSuite) TestLastCallExpiresUnsold() {
	s.create("a1", "100", time.Minute)

	s.clock.Add(time.Minute)
	s.waitPhase("a1", auction.PhaseLastCall)
	s.waitEvents(1)

	s.clock.Add(10 * time.Second)
	s.waitPhase("a1", auction.PhaseClosed)
	s.waitEvents(2)

	closed := s.rec.last()
	s.Equal(auction.EventAuctionClosed, closed.Type)
	payload := closed.Payload.(auction.AuctionClosedPayload)
	s.False(payload.Sold)
	s.Nil(payload.Winner)
	s.True(dec("100").Equal(payload.FinalPrice))
	s.Equal(0, payload.TotalBids)
}

func (s *auctionSuite) TestClosedIsTerminal() {
	s.create("a1", "100", time.Minute)
	s.clock.Add(time.Minute)
	s.waitPhase("a1", auction.PhaseLastCall)
	s.clock.Add(10 * time.Second)
	s.waitPhase("a1", auction.PhaseClosed)
	s.waitEvents(2)

	before := s.state("a1")
	for _, tier := range []auction.Tier{auction.TierFree, auction.TierBasic, auction.TierPlus, auction.TierPremium} {
		for _, amount := range []string{"1", "100", "1000000"} {
			_, err := s.bid("a1", "x", tier, amount)
			s.ErrorIs(err, auction.ErrAuctionClosed)
		}
	}
	s.Equal(before, s.state("a1"))
	s.Len(s.rec.all(), 2)
	s.repo.AssertNotCalled(s.T(), "SaveBid", mock.Anything, mock.Anything)
}

func (s *auctionSuite) TestClosedAuctionIsEvicted() {
	s.create("a1", "100", time.Minute)
	s.clock.Add(time.Minute)
	s.waitPhase("a1", auction.PhaseLastCall)
	s.clock.Add(10 * time.Second)
	s.waitPhase("a1", auction.PhaseClosed)

	final := s.state("a1")
	s.saved.put(final)

	s.clock.Add(time.Minute)
	s.Eventually(func() bool {
		return s.im.LiveCount() == 0
	}, time.Second, 5*time.Millisecond)

	s.Equal(final, s.state("a1"))

	_, err := s.bid("a1", "carol", auction.TierPremium, "200")
	s.ErrorIs(err, auction.ErrAuctionNotFound)
}

func (s *auctionSuite) TestEvictedAuctionServedFromCache() {
	s.im.closedCache = cache.New(cache.ServiceConfig{
		Ttl:   time.Hour,
		Pfx:   "closed",
		Cache: primitive.NewPrimitive("closed", 1),
	})

	s.create("a1", "100", time.Minute)
	_, err := s.bid("a1", "alice", auction.TierFree, "150")
	s.Require().NoError(err)

	s.clock.Add(s.state("a1").EndTime.Sub(s.clock.Now()))
	s.waitPhase("a1", auction.PhaseLastCall)
	s.clock.Add(10 * time.Second)
	s.waitPhase("a1", auction.PhaseClosed)
	s.clock.Add(time.Minute)
	s.Eventually(func() bool {
		return s.im.LiveCount() == 0
	}, time.Second, 5*time.Millisecond)

	a := s.state("a1")
	s.Equal(auction.PhaseClosed, a.Phase)
	s.True(dec("150").Equal(a.CurrentPrice))
	s.Equal("alice", a.HighestBidder.UserId)
	// only the id check on create reached the repo
	s.repo.AssertNumberOfCalls(s.T(), "FindOne", 1)
}

func (s *auctionSuite) TestCreateRejectsEvictedId() {
	s.create("a1", "100", time.Minute)
	_, err := s.bid("a1", "alice", auction.TierFree, "150")
	s.Require().NoError(err)

	s.clock.Add(s.state("a1").EndTime.Sub(s.clock.Now()))
	s.waitPhase("a1", auction.PhaseLastCall)
	s.clock.Add(10 * time.Second)
	s.waitPhase("a1", auction.PhaseClosed)
	s.saved.put(s.state("a1"))
	s.clock.Add(time.Minute)
	s.Eventually(func() bool {
		return s.im.LiveCount() == 0
	}, time.Second, 5*time.Millisecond)

	snapshots := len(s.snapshotCalls())
	_, err = s.im.CreateAuction(s.c, auction.CreateParams{
		AuctionId:     "a1",
		ArtworkRef:    "artwork-a1",
		StartingPrice: dec("1"),
		Duration:      time.Hour,
	})
	s.ErrorIs(err, auction.ErrAlreadyExists)
	s.Equal(0, s.im.LiveCount())
	s.Len(s.snapshotCalls(), snapshots)

	a := s.state("a1")
	s.Equal(auction.PhaseClosed, a.Phase)
	s.True(dec("150").Equal(a.CurrentPrice))
}

func (s *auctionSuite) TestCreateRejectsCachedId() {
	s.im.closedCache = cache.New(cache.ServiceConfig{
		Ttl:   time.Hour,
		Pfx:   "closed",
		Cache: primitive.NewPrimitive("closed", 1),
	})
	s.Require().NoError(s.im.closedCache.Set(s.c, "a1", &auction.Auction{Id: "a1", Phase: auction.PhaseClosed}))

	_, err := s.im.CreateAuction(s.c, auction.CreateParams{
		AuctionId:     "a1",
		ArtworkRef:    "artwork-a1",
		StartingPrice: dec("1"),
		Duration:      time.Hour,
	})
	s.ErrorIs(err, auction.ErrAlreadyExists)
	s.repo.AssertNotCalled(s.T(), "FindOne", mock.Anything, mock.Anything)
}

func (s *auctionSuite) TestCreateFailsWhenIdLookupFails() {
	repo := &mocks.Repo{}
	repo.On("FindOne", mock.Anything, "a1").Return(nil, errors.New("mongo down"))
	repo.On("UpdateAuctionSnapshot", mock.Anything, mock.Anything).Return(nil)
	im := newImpl(&AuctionUseCaseCfg{Clock: s.clock, Repo: repo, Publisher: s.pub})
	defer im.Close()

	_, err := im.CreateAuction(s.c, auction.CreateParams{AuctionId: "a1", ArtworkRef: "x", StartingPrice: dec("1"), Duration: time.Hour})
	s.EqualError(err, "mongo down")
	s.Equal(0, im.LiveCount())

	// generated ids skip the lookup
	a, err := im.CreateAuction(s.c, auction.CreateParams{ArtworkRef: "x", StartingPrice: dec("1"), Duration: time.Hour})
	s.Require().NoError(err)
	s.NotEmpty(a.Id)
}

func (s *auctionSuite) TestGetAuctionStateNotFound() {
	_, err := s.im.GetAuctionState(s.c, "ghost")
	s.ErrorIs(err, auction.ErrAuctionNotFound)
}

func (s *auctionSuite) TestSnapshotsAreCopies() {
	s.create("a1", "100", 10*time.Minute)
	a, err := s.bid("a1", "alice", auction.TierFree, "150")
	s.Require().NoError(err)

	a.CurrentPrice = dec("1")
	a.HighestBidder.UserId = "mallory"
	a.Bids[0].Amount = dec("1")

	got := s.state("a1")
	s.True(dec("150").Equal(got.CurrentPrice))
	s.Equal("alice", got.HighestBidder.UserId)
	s.True(dec("150").Equal(got.Bids[0].Amount))
}

func (s *auctionSuite) TestEventSequence() {
	s.create("a1", "100", 6*time.Minute)
	s.clock.Add(350 * time.Second)
	_, err := s.bid("a1", "alice", auction.TierFree, "150")
	s.Require().NoError(err)
	s.clock.Add(time.Second)
	_, err = s.bid("a1", "bob", auction.TierFree, "160")
	s.Require().NoError(err)

	events := s.rec.all()
	s.Require().Len(events, 4)
	for i, ev := range events {
		s.Equal(uint64(i+1), ev.Seq)
		s.Equal("a1", ev.AuctionId)
	}
	s.Equal(uint64(4), s.state("a1").Seq)
}

func (s *auctionSuite) TestAuctionsAreIndependent() {
	s.create("a1", "100", 10*time.Minute)
	s.create("a2", "100", 20*time.Minute)

	_, err := s.bid("a1", "alice", auction.TierFree, "500")
	s.Require().NoError(err)
	_, err = s.bid("a2", "bob", auction.TierFree, "101")
	s.Require().NoError(err)

	s.True(dec("500").Equal(s.state("a1").CurrentPrice))
	s.True(dec("101").Equal(s.state("a2").CurrentPrice))

	s.clock.Add(10 * time.Minute)
	s.waitPhase("a1", auction.PhaseLastCall)
	s.Equal(auction.PhaseOpen, s.state("a2").Phase)

	list, err := s.im.ListAuctions(s.c)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal("a1", list[0].Id)
	s.Equal("a2", list[1].Id)
}

func (s *auctionSuite) TestConcurrentBids() {
	s.create("a1", "100", 10*time.Minute)

	const n = 50
	amounts := rand.Perm(n)
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for _, v := range amounts {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			_, err := s.bid("a1", fmt.Sprintf("bidder-%d", v), auction.TierFree, fmt.Sprint(101+v))
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			s.ErrorIs(err, auction.ErrBidTooLow)
		}(v)
	}
	wg.Wait()

	a := s.state("a1")
	s.Len(a.Bids, accepted)
	s.True(dec(fmt.Sprint(100 + n)).Equal(a.CurrentPrice))
	for i := 1; i < len(a.Bids); i++ {
		s.True(a.Bids[i].Amount.GreaterThan(a.Bids[i-1].Amount))
	}
	last := a.Bids[len(a.Bids)-1]
	s.Equal(last.BidderId, a.HighestBidder.UserId)
	s.True(last.Amount.Equal(a.CurrentPrice))
	s.Len(s.rec.all(), accepted)
}

func (s *auctionSuite) TestConcurrentBidsDuringLastCall() {
	s.create("a1", "100", time.Minute)
	s.clock.Add(time.Minute)
	s.waitPhase("a1", auction.PhaseLastCall)

	const n = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.bid("a1", fmt.Sprintf("p%d", i), auction.TierPremium, fmt.Sprint(200+i)); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			} else {
				s.ErrorIs(err, auction.ErrAuctionClosed)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(1, accepted)
	a := s.state("a1")
	s.Equal(auction.PhaseClosed, a.Phase)
	s.Len(a.Bids, 1)
}

func (s *auctionSuite) TestPersistenceFailureKeepsBid() {
	repo := &mocks.Repo{}
	repo.On("FindOne", mock.Anything, mock.Anything).Return(nil, domain.ErrNotFound)
	repo.On("SaveBid", mock.Anything, mock.Anything).Return(errors.New("mongo down"))
	repo.On("UpdateAuctionSnapshot", mock.Anything, mock.Anything).Return(errors.New("mongo down"))
	pub := &mocks.Publisher{}
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))

	im := newImpl(&AuctionUseCaseCfg{Clock: s.clock, Repo: repo, Publisher: pub})
	defer im.Close()

	_, err := im.CreateAuction(s.c, auction.CreateParams{ArtworkRef: "x", AuctionId: "a1", StartingPrice: dec("1"), Duration: time.Hour})
	s.Require().NoError(err)

	a, err := im.PlaceBid(s.c, auction.BidRequest{AuctionId: "a1", BidderId: "alice", Tier: auction.TierFree, Amount: dec("2")})
	s.Require().NoError(err)
	s.True(dec("2").Equal(a.CurrentPrice))
	repo.AssertNumberOfCalls(s.T(), "SaveBid", 1)
	pub.AssertNumberOfCalls(s.T(), "Publish", 1)
}

func (s *auctionSuite) TestCloseStopsTimers() {
	s.create("a1", "100", time.Minute)
	s.im.Close()
	s.clock.Add(time.Hour)
	s.Equal(auction.PhaseOpen, s.state("a1").Phase)
	s.Empty(s.rec.all())
}
