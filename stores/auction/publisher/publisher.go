package publisher

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/viney-shih/goroutines"

	"github.com/x-xyz/goauction/base/backoff"
	"github.com/x-xyz/goauction/base/ctx"
	"github.com/x-xyz/goauction/base/goroutine"
	"github.com/x-xyz/goauction/base/log"
	"github.com/x-xyz/goauction/base/metrics"
	"github.com/x-xyz/goauction/domain/auction"
	"github.com/x-xyz/goauction/domain/keys"
	"github.com/x-xyz/goauction/service/redis"
)

const (
	defaultWorkers     = 16
	defaultQueueLength = 1024
	defaultTimeout     = 3 * time.Second
	defaultRetryStart  = 50 * time.Millisecond

	// enqueueTimeout bounds how long Publish waits for a queue slot
	enqueueTimeout = 50 * time.Millisecond
)

var (
	// ErrClosed is returned by Publish after Close
	ErrClosed = errors.New("publisher closed")
)

type PublisherCfg struct {
	Redis redis.Service
	// Workers is the number of concurrent PUBLISH calls
	Workers     int
	QueueLength int
	// Timeout bounds the delivery of one event including retries
	Timeout    time.Duration
	RetryStart time.Duration
}

// Publisher pushes auction events to redis pub/sub on a bounded worker pool.
type Publisher struct {
	redis      redis.Service
	pool       *goroutines.Pool
	timeout    time.Duration
	retryStart time.Duration
	met        metrics.Service

	mu      sync.RWMutex
	closed  bool
	pending sync.WaitGroup
}

func New(cfg *PublisherCfg) *Publisher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	queueLength := cfg.QueueLength
	if queueLength <= 0 {
		queueLength = defaultQueueLength
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retryStart := cfg.RetryStart
	if retryStart <= 0 {
		retryStart = defaultRetryStart
	}

	return &Publisher{
		redis:      cfg.Redis,
		pool:       goroutines.NewPool(workers, goroutines.WithTaskQueueLength(queueLength), goroutines.WithPreAllocWorkers(workers/2)),
		timeout:    timeout,
		retryStart: retryStart,
		met:        metrics.New("publisher"),
	}
}

// Publish encodes the event and queues its delivery. It only fails when the
// event cannot be encoded or the queue stays full.
func (p *Publisher) Publish(c ctx.Ctx, auctionId string, event auction.Event) error {
	msg, err := json.Marshal(event)
	if err != nil {
		c.WithFields(log.Fields{
			"err":       err,
			"auctionId": auctionId,
			"type":      event.Type,
		}).Error("failed to json.Marshal")
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	channel := keys.AuctionEventChannel(auctionId)
	dc := ctx.Detach(c)
	p.pending.Add(1)
	err = p.pool.ScheduleWithTimeout(enqueueTimeout, func() {
		defer p.pending.Done()
		goroutine.Recover(func() {
			p.deliver(dc, channel, event, msg)
		}, func(*goroutine.PanicEvent) {
			p.met.BumpSum("panic", 1, "type", string(event.Type))
		})
	})
	if err != nil {
		p.pending.Done()
		p.met.BumpSum("dropped", 1, "type", string(event.Type), "reason", "enqueue")
		c.WithFields(log.Fields{
			"err":       err,
			"auctionId": auctionId,
			"seq":       event.Seq,
		}).Error("failed to ScheduleWithTimeout")
		return err
	}
	return nil
}

func (p *Publisher) deliver(c ctx.Ctx, channel string, event auction.Event, msg []byte) {
	defer p.met.BumpTime("deliver.time", "type", string(event.Type)).End()

	dc, cancel := ctx.WithTimeout(c, p.timeout)
	defer cancel()

	b := backoff.NewExponential(p.retryStart, p.timeout)
	err := backoff.Retry(dc, b, 0, func() error {
		_, err := p.redis.Publish(dc, channel, msg)
		return err
	})
	if err != nil {
		p.met.BumpSum("dropped", 1, "type", string(event.Type), "reason", "publish")
		c.WithFields(log.Fields{
			"err":     err,
			"channel": channel,
			"seq":     event.Seq,
			"retries": b.Count(),
		}).Error("failed to redis.Publish")
		return
	}
	p.met.BumpSum("delivered", 1, "type", string(event.Type))
	if b.Count() > 0 {
		p.met.BumpHistogram("retries", float64(b.Count()), "type", string(event.Type))
	}
}

// Close waits for queued events and stops the workers. Publish fails after
// Close.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.pending.Wait()
	p.pool.Release()
}
