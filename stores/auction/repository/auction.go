package repository

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/x-xyz/goauction/base/ctx"
	"github.com/x-xyz/goauction/base/log"
	"github.com/x-xyz/goauction/domain"
	"github.com/x-xyz/goauction/domain/auction"
	"github.com/x-xyz/goauction/service/query"
)

// amounts are stored as Decimal128 so mongo compares them numerically
type auctionDoc struct {
	AuctionId         string               `bson:"auctionId"`
	ArtworkRef        string               `bson:"artworkRef"`
	SellerId          string               `bson:"sellerId,omitempty"`
	StartingPrice     primitive.Decimal128 `bson:"startingPrice"`
	CurrentPrice      primitive.Decimal128 `bson:"currentPrice"`
	HighestBidder     *auction.Bidder      `bson:"highestBidder"`
	EndTime           time.Time            `bson:"endTime"`
	OriginalEndTime   time.Time            `bson:"originalEndTime"`
	Phase             auction.Phase        `bson:"phase"`
	LastCallStartedAt *time.Time           `bson:"lastCallStartedAt,omitempty"`
	ClosedAt          *time.Time           `bson:"closedAt,omitempty"`
	BidCount          int                  `bson:"bidCount"`
	Seq               int64                `bson:"seq"`
	CreatedAt         time.Time            `bson:"createdAt"`
	UpdatedAt         time.Time            `bson:"updatedAt"`
}

type bidDoc struct {
	AuctionId      string               `bson:"auctionId"`
	BidderId       string               `bson:"bidderId"`
	BidderUsername string               `bson:"bidderUsername"`
	BidderTier     auction.Tier         `bson:"bidderTier"`
	Amount         primitive.Decimal128 `bson:"amount"`
	PlacedAt       time.Time            `bson:"placedAt"`
	DuringLastCall bool                 `bson:"duringLastCall"`
}

var (
	timeNow = time.Now
)

type impl struct {
	q query.Mongo
}

func New(q query.Mongo) auction.Repo {
	return &impl{q}
}

// EnsureIndexes prepares the collections used by the repo. The unique bid
// index makes a retried SaveBid a no-op.
func EnsureIndexes(c ctx.Ctx, q query.Mongo) error {
	if err := q.EnsureIndexes(c, domain.TableAuctions,
		query.Index{Fields: []string{"auctionId"}, Unique: true},
		query.Index{Fields: []string{"phase", "endTime"}},
	); err != nil {
		c.WithField("err", err).Error("failed to ensure auction indexes")
		return err
	}
	if err := q.EnsureIndexes(c, domain.TableBids,
		query.Index{Fields: []string{"auctionId", "amount"}, Unique: true},
		query.Index{Fields: []string{"bidderId", "-placedAt"}},
	); err != nil {
		c.WithField("err", err).Error("failed to ensure bid indexes")
		return err
	}
	return nil
}

func (im *impl) SaveBid(c ctx.Ctx, bid *auction.Bid) error {
	amount, err := toDecimal128(bid.Amount)
	if err != nil {
		c.WithFields(log.Fields{
			"err":    err,
			"amount": bid.Amount.String(),
		}).Error("failed to toDecimal128")
		return err
	}

	doc := bidDoc{
		AuctionId:      bid.AuctionId,
		BidderId:       bid.BidderId,
		BidderUsername: bid.BidderUsername,
		BidderTier:     bid.BidderTier,
		Amount:         amount,
		PlacedAt:       bid.PlacedAt,
		DuringLastCall: bid.DuringLastCall,
	}
	if err := im.q.Insert(c, domain.TableBids, doc); err == query.ErrDuplicateKey {
		c.WithField("auctionId", bid.AuctionId).Warn("bid already saved")
		return nil
	} else if err != nil {
		c.WithFields(log.Fields{
			"err": err,
			"bid": doc,
		}).Error("failed to q.Insert")
		return err
	}
	return nil
}

func (im *impl) UpdateAuctionSnapshot(c ctx.Ctx, a *auction.Auction) error {
	doc, err := toAuctionDoc(a)
	if err != nil {
		c.WithFields(log.Fields{
			"err":       err,
			"auctionId": a.Id,
		}).Error("failed to toAuctionDoc")
		return err
	}
	doc.UpdatedAt = timeNow()

	selector := bson.M{"auctionId": a.Id}
	if err := im.q.Upsert(c, domain.TableAuctions, selector, doc); err != nil {
		c.WithFields(log.Fields{
			"err":      err,
			"selector": selector,
		}).Error("failed to q.Upsert")
		return err
	}
	return nil
}

func (im *impl) FindOne(c ctx.Ctx, auctionId string) (*auction.Auction, error) {
	qry := bson.M{"auctionId": auctionId}

	doc := auctionDoc{}
	if err := im.q.FindOne(c, domain.TableAuctions, qry, &doc); err == query.ErrNotFound {
		return nil, domain.ErrNotFound
	} else if err != nil {
		c.WithFields(log.Fields{
			"err":   err,
			"query": qry,
		}).Error("failed to q.FindOne")
		return nil, err
	}

	bids := []bidDoc{}
	if err := im.q.Search(c, domain.TableBids, 0, 0, []string{"auctionId", "amount"}, qry, &bids); err != nil {
		c.WithFields(log.Fields{
			"err":   err,
			"query": qry,
		}).Error("failed to q.Search")
		return nil, err
	}

	a, err := doc.toDomain(bids)
	if err != nil {
		c.WithFields(log.Fields{
			"err":       err,
			"auctionId": auctionId,
		}).Error("failed to doc.toDomain")
		return nil, err
	}
	return a, nil
}

func toAuctionDoc(a *auction.Auction) (*auctionDoc, error) {
	startingPrice, err := toDecimal128(a.StartingPrice)
	if err != nil {
		return nil, err
	}
	currentPrice, err := toDecimal128(a.CurrentPrice)
	if err != nil {
		return nil, err
	}
	return &auctionDoc{
		AuctionId:         a.Id,
		ArtworkRef:        a.ArtworkRef,
		SellerId:          a.SellerId,
		StartingPrice:     startingPrice,
		CurrentPrice:      currentPrice,
		HighestBidder:     a.HighestBidder,
		EndTime:           a.EndTime,
		OriginalEndTime:   a.OriginalEndTime,
		Phase:             a.Phase,
		LastCallStartedAt: a.LastCallStartedAt,
		ClosedAt:          a.ClosedAt,
		BidCount:          len(a.Bids),
		Seq:               int64(a.Seq),
		CreatedAt:         a.CreatedAt,
	}, nil
}

func (d *auctionDoc) toDomain(bids []bidDoc) (*auction.Auction, error) {
	startingPrice, err := fromDecimal128(d.StartingPrice)
	if err != nil {
		return nil, err
	}
	currentPrice, err := fromDecimal128(d.CurrentPrice)
	if err != nil {
		return nil, err
	}

	a := &auction.Auction{
		Id:                d.AuctionId,
		ArtworkRef:        d.ArtworkRef,
		SellerId:          d.SellerId,
		StartingPrice:     startingPrice,
		CurrentPrice:      currentPrice,
		HighestBidder:     d.HighestBidder,
		EndTime:           d.EndTime,
		OriginalEndTime:   d.OriginalEndTime,
		Phase:             d.Phase,
		LastCallStartedAt: d.LastCallStartedAt,
		ClosedAt:          d.ClosedAt,
		Bids:              make([]auction.Bid, 0, len(bids)),
		Seq:               uint64(d.Seq),
		CreatedAt:         d.CreatedAt,
	}
	for _, b := range bids {
		amount, err := fromDecimal128(b.Amount)
		if err != nil {
			return nil, err
		}
		a.Bids = append(a.Bids, auction.Bid{
			AuctionId:      b.AuctionId,
			BidderId:       b.BidderId,
			BidderUsername: b.BidderUsername,
			BidderTier:     b.BidderTier,
			Amount:         amount,
			PlacedAt:       b.PlacedAt,
			DuringLastCall: b.DuringLastCall,
		})
	}
	return a, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	return primitive.ParseDecimal128(d.String())
}

func fromDecimal128(d primitive.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(d.String())
}
