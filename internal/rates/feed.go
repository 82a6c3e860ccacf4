package rates

import (
	"sync"

	"github.com/bluecoinverse/coinverse/internal/currency"
)

// Feed broadcasts rate snapshots with replay-last-value semantics: a late
// subscriber immediately receives the most recent snapshot, and the
// current value can always be read synchronously. Slow subscribers never
// block a publish; a pending unread value is replaced by the newer one.
type Feed struct {
	mu      sync.RWMutex
	current *currency.Snapshot
	subs    map[int]chan currency.Snapshot
	nextID  int
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]chan currency.Snapshot)}
}

// Subscribe returns a channel of snapshots and a cancel function. If a
// snapshot has already been published it is delivered immediately.
func (f *Feed) Subscribe() (<-chan currency.Snapshot, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	ch := make(chan currency.Snapshot, 1)
	f.subs[id] = ch
	if f.current != nil {
		ch <- f.current.Clone()
	}

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish records snap as the current value and fans it out to all
// subscribers without blocking.
func (f *Feed) Publish(snap currency.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()

	clone := snap.Clone()
	f.current = &clone
	for _, ch := range f.subs {
		select {
		case ch <- snap.Clone():
		default:
			// Replace the unread pending value.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap.Clone():
			default:
			}
		}
	}
}

// Current returns the last published snapshot, if any.
func (f *Feed) Current() (currency.Snapshot, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current == nil {
		return currency.Snapshot{}, false
	}
	return f.current.Clone(), true
}
