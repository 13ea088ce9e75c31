package usecase

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/x-xyz/goauction/domain/auction"
)

// entry owns one live auction. mu serialises every read-modify-write of
// auction; snapshot holds an immutable copy refreshed after each change so
// display reads never wait for a bid in flight.
type entry struct {
	mu       sync.Mutex
	auction  *auction.Auction
	snapshot atomic.Value
}

func newEntry(a *auction.Auction) *entry {
	e := &entry{auction: a}
	e.storeSnapshot()
	return e
}

// storeSnapshot publishes a copy of the current state and returns it, the
// copy must be treated as read-only. Must be called with mu held.
func (e *entry) storeSnapshot() *auction.Auction {
	snapshot := e.auction.Clone()
	e.snapshot.Store(snapshot)
	return snapshot
}

func (e *entry) loadSnapshot() *auction.Auction {
	return e.snapshot.Load().(*auction.Auction).Clone()
}

// Registry is the table of live auctions. Lookups take a read lock only, an
// auction's own lock is never acquired while holding the registry lock.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

func (r *Registry) insert(e *entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[e.auction.Id]; ok {
		return auction.ErrAlreadyExists
	}
	r.entries[e.auction.Id] = e
	return nil
}

func (r *Registry) lookup(auctionId string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[auctionId]
	return e, ok
}

// remove evicts auctionId only if it still maps to e, a recreated auction
// under the same id is left alone.
func (r *Registry) remove(auctionId string, e *entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.entries[auctionId]; !ok || cur != e {
		return false
	}
	delete(r.entries, auctionId)
	return true
}

// Get returns a snapshot for display, it must not gate a mutation.
func (r *Registry) Get(auctionId string) (*auction.Auction, bool) {
	e, ok := r.lookup(auctionId)
	if !ok {
		return nil, false
	}
	return e.loadSnapshot(), true
}

// List returns snapshots of every live auction, soonest to end first.
func (r *Registry) List() []*auction.Auction {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	res := make([]*auction.Auction, 0, len(entries))
	for _, e := range entries {
		res = append(res, e.loadSnapshot())
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].EndTime.Equal(res[j].EndTime) {
			return res[i].Id < res[j].Id
		}
		return res[i].EndTime.Before(res[j].EndTime)
	})
	return res
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
