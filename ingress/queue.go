// Package ingress provides the single FIFO through which all decoded and
// synthetic messages reach the embedding application. Readers push from
// their connection goroutines; the application pops via the server's
// ReadMessage.
package ingress

import (
	"net/netip"
	"sync"
	"time"

	"github.com/cyberinferno/jsonwire/message"
)

// Item is one entry of the ingress queue: a decoded wire message or a
// synthetic software error, the IPv4 address of the originating peer, and
// the wall-clock time it was enqueued.
type Item struct {
	Message    message.Message
	Peer       netip.Addr
	ReceivedAt time.Time
}

// Queue is a mutex-guarded FIFO of ingress items. It is safe for any
// number of producers and consumers, though the server uses it with one
// consumer. Pop never blocks; Push only fails once the queue is closed.
type Queue struct {
	mu     sync.Mutex
	items  []*Item
	closed bool
}

// NewQueue returns a new, open, empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends item at the tail.
//
// Parameters:
//   - item: The item to enqueue
//
// Returns:
//   - false if the queue has been closed, true otherwise
func (q *Queue) Push(item *Item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, item)
	return true
}

// TryPush appends item at the tail without ever blocking: if the queue
// lock is contended the push is abandoned. The liveness sweeper uses this
// so a sweep can never stall behind the reader path; a dropped timeout
// report is re-emitted on the next sweep.
//
// Parameters:
//   - item: The item to enqueue
//
// Returns:
//   - false if the lock was contended or the queue is closed, true otherwise
func (q *Queue) TryPush(item *Item) bool {
	if !q.mu.TryLock() {
		return false
	}
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, item)
	return true
}

// Pop removes and returns the head item, or nil if the queue is empty.
// It never blocks waiting for a producer.
func (q *Queue) Pop() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}

	item := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return item
}

// Len returns the number of items currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the queue closed and discards any remaining items. Pushes
// after Close fail; Pop returns nil. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.items = nil
}
