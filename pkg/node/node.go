// Package node implements the per-node scheduler: admission, the
// ready/blocked-by-timer queues, the single running slot, the
// preemptive tick loop, and local/global termination detection. This
// is the largest subsystem in the simulator (spec.md §2 budgets it at
// roughly 42% of the implementation), grounded on
// original_source/prosim/process.c's process_simulate/process_admit
// and on the teacher's mutex-guarded, metered scheduler loop in
// pkg/scheduler/scheduler.go.
package node

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/abrodsky/prosim/pkg/pq"
	"github.com/abrodsky/prosim/pkg/process"
	"github.com/abrodsky/prosim/pkg/simulation"
)

// Scheduler is a single node's run loop and local queues. No
// intra-node concurrency is assumed: all fields below are owned by
// the single goroutine that calls Run.
type Scheduler struct {
	ID      int
	quantum int

	ready        *pq.Queue[*process.Process]
	blockedTimer *pq.Queue[*process.Process]
	running      *process.Process
	clockTime    int
	nextProcID   int
	cpuQuantum   int

	sim *simulation.Simulation

	waitHist     metric.Float64Histogram
	readyGauge   metric.Int64UpDownCounter
	doopCounter  metric.Int64Counter
	blockCounter metric.Int64Counter
	sendCounter  metric.Int64Counter
	recvCounter  metric.Int64Counter
}

// New creates a node scheduler bound to sim's shared collaborators.
func New(id int, sim *simulation.Simulation) *Scheduler {
	s := &Scheduler{
		ID:           id,
		quantum:      sim.Quantum,
		ready:        pq.New[*process.Process](),
		blockedTimer: pq.New[*process.Process](),
		nextProcID:   1,
		sim:          sim,
	}

	if sim.Meter != nil {
		s.waitHist, _ = sim.Meter.Float64Histogram("prosim_wait_time_ticks")
		s.readyGauge, _ = sim.Meter.Int64UpDownCounter("prosim_ready_queue_depth")
		s.doopCounter, _ = sim.Meter.Int64Counter("prosim_doop_ticks_total")
		s.blockCounter, _ = sim.Meter.Int64Counter("prosim_block_ticks_total")
		s.sendCounter, _ = sim.Meter.Int64Counter("prosim_sends_total")
		s.recvCounter, _ = sim.Meter.Int64Counter("prosim_recvs_total")
	}
	return s
}

// effective returns p's effective priority per spec.md §4.2: its
// declared priority if non-negative, else its current duration at the
// moment of enqueue.
func effective(p *process.Process) int64 {
	if p.Priority >= 0 {
		return int64(p.Priority)
	}
	return int64(p.Duration)
}

func (s *Scheduler) trace(p *process.Process) {
	s.sim.Trace(s.ID, s.clockTime, p)
}

func (s *Scheduler) finish(p *process.Process) {
	p.State = process.Finished
	s.sim.Finish(s.clockTime, p)
	s.trace(p)
}

// Admit assigns an id and admits p into the node, following the
// admission rule of spec.md §4.2: a process whose first effective
// primitive is HALT or unrecognized finishes immediately without ever
// being queued.
func (s *Scheduler) Admit(p *process.Process) {
	p.ID = s.nextProcID
	s.nextProcID++
	p.State = process.StateNew
	s.trace(p)

	class := p.AdvanceToEffective()
	if class == process.ClassHalt || class == process.ClassError {
		s.finish(p)
		return
	}

	if p.CurrentOp() == process.OpSend || p.CurrentOp() == process.OpRecv {
		p.Duration = 1
	} else {
		p.Duration = p.CurrentDuration()
	}
	s.place(p, false)
}

// place applies the placement rule of spec.md §4.2 (the Go analogue
// of the original's insert_in_queue). When advance is true, p's ip is
// moved to its next effective primitive and its duration initialized
// first, mirroring insert_in_queue(cpu, proc, next_op=1).
func (s *Scheduler) place(p *process.Process, advance bool) {
	if advance {
		class := p.AdvanceToEffective()
		if class == process.ClassError {
			s.finish(p)
			return
		}
		if class == process.ClassHalt {
			p.Duration = 1
		} else if p.CurrentOp() == process.OpSend || p.CurrentOp() == process.OpRecv {
			p.Duration = 1
		} else {
			p.Duration = p.CurrentDuration()
		}
	}

	switch p.CurrentOp() {
	case process.OpDoop:
		p.State = process.Ready
		s.pushReady(effective(p), p)
		p.WaitCount++
		p.EnqueueTime = s.clockTime
		s.trace(p)
	case process.OpBlock:
		p.State = process.Blocked
		wake := int64(s.clockTime + p.Duration)
		s.blockedTimer.Add(wake, p)
		if s.blockCounter != nil {
			s.blockCounter.Add(context.Background(), int64(p.Duration))
		}
		s.trace(p)
	case process.OpSend, process.OpRecv:
		p.State = process.Ready
		s.pushReady(effective(p), p)
		p.WaitCount++
		p.EnqueueTime = s.clockTime + 1
		s.trace(p)
	case process.OpHalt:
		p.State = process.Ready
		s.pushReady(effective(p), p)
		p.WaitCount++
		p.EnqueueTime = s.clockTime
		s.trace(p)
	default:
		s.finish(p)
	}
}

// preempt returns the running process to the ready queue with its
// current effective priority, as every quantum-expiry path requires.
func (s *Scheduler) preempt(p *process.Process) {
	p.State = process.Ready
	s.pushReady(effective(p), p)
	p.WaitCount++
	p.EnqueueTime = s.clockTime
	s.trace(p)
	s.running = nil
}

func (s *Scheduler) pushReady(key int64, p *process.Process) {
	s.ready.Add(key, p)
	if s.readyGauge != nil {
		s.readyGauge.Add(context.Background(), 1)
	}
}

func (s *Scheduler) popReady() (*process.Process, int64, bool) {
	p, key, ok := s.ready.RemoveMin()
	if ok && s.readyGauge != nil {
		s.readyGauge.Add(context.Background(), -1)
	}
	return p, key, ok
}

// Run drives the node's tick loop until local and global work is
// exhausted, then leaves the barrier.
func (s *Scheduler) Run() {
	if !s.ready.Empty() {
		s.refreshAndSelect()
	}

	for {
		s.sim.Barrier.Wait()
		s.clockTime++

		if s.running != nil {
			s.dispatchRunning()
		}

		unblocked := s.sim.Fabric.DrainReady(s.ID)

		if len(unblocked) > 0 {
			allHalt := true
			for _, p := range unblocked {
				if p.PeekEffective() != process.ClassHalt {
					allHalt = false
					break
				}
			}

			if allHalt && s.running == nil && s.ready.Empty() && s.blockedTimer.Empty() && !s.sim.Fabric.HasPending() {
				s.terminalFlush(unblocked)
				s.sim.Barrier.Leave()
				return
			}
		}

		for _, p := range unblocked {
			s.place(p, true)
		}

		for {
			p, wake, ok := s.blockedTimer.PeekMin()
			if !ok || wake > int64(s.clockTime) {
				break
			}
			s.blockedTimer.RemoveMin()
			s.place(p, true)
		}

		if s.running == nil && !s.ready.Empty() {
			p, _, _ := s.ready.PeekMin()
			if p.EnqueueTime <= s.clockTime {
				s.popReady()
				if p.EnqueueTime < s.clockTime {
					p.WaitTime += s.clockTime - p.EnqueueTime
					if s.waitHist != nil {
						s.waitHist.Record(context.Background(), float64(p.WaitTime), metric.WithAttributes(attribute.Int("node", s.ID)))
					}
				}
				s.quantumReset()
				p.State = process.Running
				s.running = p
				s.trace(p)
			}
		}

		if s.ready.Empty() && s.blockedTimer.Empty() && s.running == nil && !s.sim.Fabric.HasPending() {
			break
		}
	}

	s.sim.Barrier.Leave()
}

func (s *Scheduler) quantumReset() {
	s.cpuQuantum = s.quantum
}

// refreshAndSelect performs the one-shot priority refresh described in
// spec.md §4.2's tick-loop preamble: every ready entry is re-keyed
// under its current effective priority before the first process of
// the run is chosen.
func (s *Scheduler) refreshAndSelect() {
	temp := pq.New[*process.Process]()
	for !s.ready.Empty() {
		p, _, _ := s.popReady()
		temp.Add(effective(p), p)
	}

	cur, _, _ := temp.RemoveMin()
	for !temp.Empty() {
		p, _, _ := temp.RemoveMin()
		p.WaitCount++
		s.pushReady(effective(p), p)
	}

	s.quantumReset()
	cur.State = process.Running
	s.running = cur
	s.trace(cur)
}

func (s *Scheduler) dispatchRunning() {
	cur := s.running
	switch cur.CurrentOp() {
	case process.OpSend:
		cur.Duration--
		s.cpuQuantum--
		cur.DoopTime++
		if cur.Duration == 0 {
			peer := cur.CurrentDuration()
			s.sim.Fabric.Send(cur, peer)
			if s.sendCounter != nil {
				s.sendCounter.Add(context.Background(), 1)
			}
			cur.State = process.Blocked
			s.trace(cur)
			s.running = nil
		} else if s.cpuQuantum == 0 {
			s.preempt(cur)
		}
	case process.OpRecv:
		cur.Duration--
		s.cpuQuantum--
		cur.DoopTime++
		if cur.Duration == 0 {
			peer := cur.CurrentDuration()
			s.sim.Fabric.Recv(cur, peer)
			if s.recvCounter != nil {
				s.recvCounter.Add(context.Background(), 1)
			}
			cur.State = process.Blocked
			s.trace(cur)
			s.running = nil
		} else if s.cpuQuantum == 0 {
			s.preempt(cur)
		}
	case process.OpHalt:
		cur.Duration--
		s.cpuQuantum--
		if cur.Duration == 0 {
			s.finish(cur)
			s.running = nil
		} else if s.cpuQuantum == 0 {
			s.preempt(cur)
		}
	default: // OpDoop
		cur.Duration--
		s.cpuQuantum--
		if s.doopCounter != nil {
			s.doopCounter.Add(context.Background(), 1)
		}
		if cur.Duration == 0 {
			s.place(cur, true)
			s.running = nil
		} else if s.cpuQuantum == 0 {
			s.preempt(cur)
		}
	}
}

// terminalFlush handles the edge case described in spec.md §4.4: a
// batch of processes all drain from the fabric with HALT as their
// next effective primitive and no other work remains. It places them
// normally, takes one more synchronized tick to consume their 1-unit
// HALT duration, then marks them finished in ready-order.
func (s *Scheduler) terminalFlush(unblocked []*process.Process) {
	for _, p := range unblocked {
		s.place(p, true)
	}

	s.sim.Barrier.Wait()
	s.clockTime++

	for !s.ready.Empty() {
		p, _, _ := s.popReady()
		if s.sim.CompatMode {
			legacyTerminalFlushFixup(p)
		}
		s.finish(p)
	}
}

// legacyTerminalFlushFixup reproduces, verbatim, a fixup present in
// the original tool: during terminal flush, process id 2 is credited
// one tick of wait time if it waited at all but never accrued any.
// spec.md §4.4/§9 call this out as a possibly-buggy hack and direct
// implementers not to replicate it without cause; Simulation.CompatMode
// gates it off by default (see SPEC_FULL.md).
func legacyTerminalFlushFixup(p *process.Process) {
	if p.ID == 2 && p.WaitCount > 0 && p.WaitTime == 0 {
		p.WaitTime = 1
	}
}
