// Package fabric implements the process-global synchronous rendezvous
// table: a lock-protected communication table indexed by address
// (thread*100+id), plus a shared staging list of processes made ready
// by a completed send/recv match. Node schedulers drain their own
// node's share of the staging list every tick.
package fabric

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/abrodsky/prosim/pkg/process"
)

// maxAddr bounds the address space: thread and id are each capped at
// 100 (see spec §6), so the largest possible address is 100*100+100.
const maxAddr = 100*100 + 100 + 1

type slot struct {
	mu              sync.Mutex
	senderWaiting   *process.Process
	receiverWaiting *process.Process
	senderAddr      int
	receiverAddr    int
}

// Fabric is the process-global message fabric. One value is owned by
// the Simulation and shared by every node worker.
type Fabric struct {
	slots [maxAddr]slot

	stagingMu sync.Mutex
	staging   []*process.Process

	pending int32 // atomic: number of slots currently holding a waiter
}

// New returns an empty fabric.
func New() *Fabric {
	return &Fabric{}
}

// Send implements the sender side of a rendezvous. sender must have
// its ip positioned at the SEND primitive; peerAddr is that
// primitive's argument (address of the intended receiver).
func (f *Fabric) Send(sender *process.Process, peerAddr int) {
	myAddr := sender.Addr()
	s := &f.slots[myAddr]

	s.mu.Lock()
	if s.receiverWaiting != nil && s.receiverAddr == myAddr {
		receiver := s.receiverWaiting
		s.receiverWaiting = nil
		s.receiverAddr = 0
		s.mu.Unlock()

		f.publish(receiver, sender)
		atomic.AddInt32(&f.pending, -1)
		return
	}
	s.senderWaiting = sender
	s.senderAddr = peerAddr
	atomic.AddInt32(&f.pending, 1)
	s.mu.Unlock()
}

// Recv implements the receiver side of a rendezvous. peerAddr is the
// address of the sender the receiver expects to hear from (the RECV
// primitive's argument); the slot is chosen by that address, which is
// how a send/recv pair agree on a single slot.
func (f *Fabric) Recv(receiver *process.Process, peerAddr int) {
	myAddr := receiver.Addr()
	s := &f.slots[peerAddr]

	s.mu.Lock()
	if s.senderWaiting != nil && s.senderAddr == myAddr {
		sender := s.senderWaiting
		s.senderWaiting = nil
		s.senderAddr = 0
		s.mu.Unlock()

		f.publish(sender, receiver)
		atomic.AddInt32(&f.pending, -1)
		return
	}
	s.receiverWaiting = receiver
	s.receiverAddr = peerAddr
	atomic.AddInt32(&f.pending, 1)
	s.mu.Unlock()
}

func (f *Fabric) publish(first, second *process.Process) {
	f.stagingMu.Lock()
	f.staging = append(f.staging, first, second)
	f.stagingMu.Unlock()
}

// DrainReady atomically partitions the staging list into entries
// belonging to nodeID (returned, sorted ascending by process id) and
// entries belonging to other nodes (left in the staging list).
func (f *Fabric) DrainReady(nodeID int) []*process.Process {
	f.stagingMu.Lock()
	var mine, rest []*process.Process
	for _, p := range f.staging {
		if p.Thread == nodeID {
			mine = append(mine, p)
		} else {
			rest = append(rest, p)
		}
	}
	f.staging = rest
	f.stagingMu.Unlock()

	sort.Slice(mine, func(i, j int) bool { return mine[i].ID < mine[j].ID })
	return mine
}

// HasPending reports whether any slot holds a waiter or the staging
// list is non-empty. This is a best-effort snapshot used only for
// termination detection: because every node re-checks it after its
// own barrier-synchronized tick body, it cannot produce a false
// positive for global termination.
func (f *Fabric) HasPending() bool {
	if atomic.LoadInt32(&f.pending) > 0 {
		return true
	}
	f.stagingMu.Lock()
	n := len(f.staging)
	f.stagingMu.Unlock()
	return n > 0
}
