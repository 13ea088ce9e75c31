package backoff

import (
	"context"
	"math"
	"time"
)

// Strategy computes the wait before the next attempt from the number of
// waits so far.
type Strategy interface {
	Duration(count int, start time.Duration) time.Duration
}

// Backoff is not safe for concurrent use. Create one per retry loop.
type Backoff struct {
	Last  time.Duration
	Next  time.Duration
	count int

	start    time.Duration
	limit    time.Duration
	strategy Strategy
}

// NewBackoff limits every wait to limit when limit > 0
func NewBackoff(strategy Strategy, start, limit time.Duration) *Backoff {
	b := &Backoff{strategy: strategy, start: start, limit: limit}
	b.Reset()
	return b
}

func (b *Backoff) Reset() {
	b.count = 0
	b.Last = 0
	b.Next = b.next()
}

// Count is the number of completed waits
func (b *Backoff) Count() int {
	return b.count
}

// Wait sleeps for Next and advances. It returns the context error if c ends
// first.
func (b *Backoff) Wait(c context.Context) error {
	t := time.NewTimer(b.Next)
	defer t.Stop()

	select {
	case <-c.Done():
		return c.Err()
	case <-t.C:
	}

	b.count++
	b.Last = b.Next
	b.Next = b.next()
	return nil
}

func (b *Backoff) next() time.Duration {
	d := b.strategy.Duration(b.count, b.start)
	if b.limit > 0 && d > b.limit {
		d = b.limit
	}
	return d
}

// Retry calls fn until it succeeds, waiting between attempts. It gives up
// after maxAttempts calls (0 means unbounded) or when c ends, returning the
// last error of fn.
func Retry(c context.Context, b *Backoff, maxAttempts int, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if maxAttempts > 0 && attempt >= maxAttempts {
			return err
		}
		if werr := b.Wait(c); werr != nil {
			return err
		}
	}
}

type exponential struct{}

func (exponential) Duration(count int, start time.Duration) time.Duration {
	return time.Duration(math.Pow(2, float64(count))) * start
}

// NewExponential waits start, 2*start, 4*start ...
func NewExponential(start, limit time.Duration) *Backoff {
	return NewBackoff(exponential{}, start, limit)
}

type constant struct{}

func (constant) Duration(_ int, start time.Duration) time.Duration {
	return start
}

// NewConstant always waits start
func NewConstant(start time.Duration) *Backoff {
	return NewBackoff(constant{}, start, 0)
}
