package playback

import (
	"sync"

	"github.com/driftworks/playdeck/internal/jellyfin"
)

// Queue holds the ordered play queue and the current position. Membership is
// only ever replaced wholesale by the action that built it (a card list, a
// series episode run); there are no incremental edits. The pointer is always
// in bounds while the queue is non-empty.
type Queue struct {
	mu      sync.RWMutex
	items   []jellyfin.BaseItem
	current int
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Set replaces the queue wholesale and points at startIndex. A startIndex
// outside the new queue is clamped to the nearest bound to keep the pointer
// invariant.
func (q *Queue) Set(items []jellyfin.BaseItem, startIndex int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = make([]jellyfin.BaseItem, len(items))
	copy(q.items, items)

	if startIndex < 0 {
		startIndex = 0
	}
	if startIndex >= len(q.items) && len(q.items) > 0 {
		startIndex = len(q.items) - 1
	}
	q.current = startIndex
}

// Current returns the item at the pointer, or ok=false for an empty queue.
func (q *Queue) Current() (jellyfin.BaseItem, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.items) == 0 {
		return jellyfin.BaseItem{}, false
	}
	return q.items[q.current], true
}

// CurrentIndex returns the pointer position.
func (q *Queue) CurrentIndex() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.current
}

// Len returns the queue length.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// Items returns a copy of the queued items.
func (q *Queue) Items() []jellyfin.BaseItem {
	q.mu.RLock()
	defer q.mu.RUnlock()

	items := make([]jellyfin.BaseItem, len(q.items))
	copy(items, q.items)
	return items
}

// At returns the item at index. The caller validates bounds; out-of-range is
// its error to signal, and there is no wrap-around.
func (q *Queue) At(index int) (jellyfin.BaseItem, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if index < 0 || index >= len(q.items) {
		return jellyfin.BaseItem{}, false
	}
	return q.items[index], true
}

// Advance moves the pointer to index, which the caller has already validated
// via At.
func (q *Queue) Advance(index int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index >= 0 && index < len(q.items) {
		q.current = index
	}
}
