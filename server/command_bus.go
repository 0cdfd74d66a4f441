package server

import (
	"sync/atomic"

	"github.com/foldedspace/arena-server/game"
)

// commandNode is one link in the lock-free stack backing CommandBus.
type commandNode struct {
	packet game.GamePacket
	next   *commandNode
}

// CommandBus is the multi-producer, single-consumer queue of Game Packets
// described in spec §4.2. Push is a classic Treiber-stack CAS loop: wait-free
// in the common (uncontended) case, lock-free under contention, and never
// blocks. TryDrain atomically detaches the whole stack and reverses it once,
// which restores FIFO order for every producer's own pushes (a stronger
// guarantee than the per-producer-only FIFO the contract requires).
type CommandBus struct {
	head atomic.Pointer[commandNode]
}

// NewCommandBus returns an empty Command Bus.
func NewCommandBus() *CommandBus {
	return &CommandBus{}
}

// Push enqueues a packet. Non-blocking; never fails.
func (b *CommandBus) Push(p game.GamePacket) {
	n := &commandNode{packet: p}
	for {
		old := b.head.Load()
		n.next = old
		if b.head.CompareAndSwap(old, n) {
			return
		}
	}
}

// TryDrain returns every packet enqueued since the last drain, oldest first,
// without blocking. Returns nil if the bus is empty.
func (b *CommandBus) TryDrain() []game.GamePacket {
	top := b.head.Swap(nil)
	if top == nil {
		return nil
	}

	var reversed []game.GamePacket
	for n := top; n != nil; n = n.next {
		reversed = append(reversed, n.packet)
	}
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	return reversed
}
