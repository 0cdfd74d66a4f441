package server

import (
	"context"
	"errors"
	"sync"
)

// SnapshotBusCapacity is the fixed ring size from spec §3/§4.3.
const SnapshotBusCapacity = 100

// ErrBusClosed is returned by Subscriber.Recv once the bus has been closed,
// e.g. during graceful shutdown.
var ErrBusClosed = errors.New("snapshot bus closed")

// SnapshotBus is the single-producer, multi-consumer broadcast of serialized
// snapshot strings described in spec §4.3: a bounded ring buffer where the
// oldest entry is evicted on overflow and a lagging subscriber is fast
// forwarded to the current head rather than stalling the publisher.
type SnapshotBus struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    [SnapshotBusCapacity]string
	head   uint64 // total number of snapshots ever published
	closed bool
}

// NewSnapshotBus returns an empty snapshot bus.
func NewSnapshotBus() *SnapshotBus {
	b := &SnapshotBus{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Publish appends a snapshot, evicting the oldest if the ring is full.
// Never blocks (spec §4.3, P7): the simulation's tick rate cannot be
// affected by how many, or how slow, subscribers are.
func (b *SnapshotBus) Publish(payload string) {
	b.mu.Lock()
	b.buf[b.head%SnapshotBusCapacity] = payload
	b.head++
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Close wakes every blocked subscriber with ErrBusClosed. Safe to call once
// during shutdown.
func (b *SnapshotBus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Subscriber is a single consumer's cursor into the bus.
type Subscriber struct {
	bus    *SnapshotBus
	cursor uint64
}

// Subscribe returns a cursor positioned at the current head: the subscriber
// observes only snapshots published after this call (spec §4.3).
func (b *SnapshotBus) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &Subscriber{bus: b, cursor: b.head}
}

// Recv blocks until the next snapshot is available, the bus is closed, or
// ctx is done. lagged is true when this subscriber fell behind by more than
// the bus capacity; its cursor is fast-forwarded to the current head and the
// missed snapshots are not replayed (spec §4.3).
func (s *Subscriber) Recv(ctx context.Context) (payload string, lagged bool, err error) {
	b := s.bus

	// Wake this Wait() if ctx is canceled while we're blocked on it.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			b.cond.Broadcast()
		case <-stop:
		}
	}()

	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if b.closed {
			return "", false, ErrBusClosed
		}
		if err := ctx.Err(); err != nil {
			return "", false, err
		}

		if b.head-s.cursor > SnapshotBusCapacity {
			// Fell behind far enough that the ring already overwrote slots
			// we hadn't read. Skip to the present; the gap is not replayed.
			s.cursor = b.head
			lagged = true
		}

		if s.cursor < b.head {
			idx := s.cursor % SnapshotBusCapacity
			payload = b.buf[idx]
			s.cursor++
			return payload, lagged, nil
		}

		b.cond.Wait()
	}
}
