// Package process implements the interpreter for a single simulated
// process: its primitive stream, loop stack, and bookkeeping counters.
package process

import "fmt"

// Op identifies a primitive opcode.
type Op int

const (
	OpHalt Op = iota
	OpDoop
	OpLoop
	OpEnd
	OpBlock
	OpSend
	OpRecv
)

func (op Op) String() string {
	switch op {
	case OpHalt:
		return "HALT"
	case OpDoop:
		return "DOOP"
	case OpLoop:
		return "LOOP"
	case OpEnd:
		return "END"
	case OpBlock:
		return "BLOCK"
	case OpSend:
		return "SEND"
	case OpRecv:
		return "RECV"
	default:
		return fmt.Sprintf("Op(%d)", int(op))
	}
}

// Primitive is one instruction in a process's program.
type Primitive struct {
	Op  Op
	Arg int
}

// State is the scheduling state of a process.
type State int

const (
	StateNew State = iota
	Ready
	Running
	Blocked
	Finished
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Class is the result of advancing to the next effective primitive.
type Class int

const (
	ClassEffective Class = iota
	ClassHalt
	ClassError
)

type loopFrame struct {
	ip        int
	remaining int
}

// Process is a simulated process: immutable program plus mutable
// runtime state. Processes are owned by the simulation for their
// whole lifetime; node schedulers only borrow them.
type Process struct {
	Name     string
	Thread   int // declared node assignment, 1..N
	Priority int // negative means "use remaining duration as effective priority"
	Code     []Primitive

	ID    int
	IP    int
	stack []loopFrame

	Duration int
	State    State

	DoopCount int
	DoopTime  int
	BlockCount int
	BlockTime  int
	WaitCount  int
	WaitTime   int
	SendCount  int
	RecvCount  int

	EnqueueTime int
	Finished    int
}

// New creates a process context in its pre-admission state.
func New(name string, thread, priority int, code []Primitive) *Process {
	return &Process{
		Name:     name,
		Thread:   thread,
		Priority: priority,
		Code:     code,
		IP:       -1,
		State:    StateNew,
	}
}

// Addr is the address used for message routing: thread*100 + id.
func (p *Process) Addr() int {
	return p.Thread*100 + p.ID
}

func (p *Process) push(ip, remaining int) {
	p.stack = append(p.stack, loopFrame{ip: ip, remaining: remaining})
}

func (p *Process) peekFrame() *loopFrame {
	return &p.stack[len(p.stack)-1]
}

func (p *Process) popFrame() {
	p.stack = p.stack[:len(p.stack)-1]
}

// AdvanceToEffective moves ip forward from its current position,
// transparently handling LOOP/END bookkeeping primitives, until it
// lands on a primitive that the scheduler must act on: DOOP, BLOCK,
// SEND, RECV (ClassEffective), HALT (ClassHalt), or an unrecognized
// opcode (ClassError).
func (p *Process) AdvanceToEffective() Class {
	for {
		p.IP++
		if p.IP < 0 || p.IP >= len(p.Code) {
			return ClassError
		}
		prim := p.Code[p.IP]
		switch prim.Op {
		case OpLoop:
			p.push(p.IP, prim.Arg)
		case OpEnd:
			frame := p.peekFrame()
			frame.remaining--
			if frame.remaining == 0 {
				p.popFrame()
			} else {
				p.IP = frame.ip
			}
		case OpDoop:
			p.DoopCount++
			p.DoopTime += prim.Arg
			return ClassEffective
		case OpBlock:
			p.BlockCount++
			p.BlockTime += prim.Arg
			return ClassEffective
		case OpSend:
			p.SendCount++
			return ClassEffective
		case OpRecv:
			p.RecvCount++
			return ClassEffective
		case OpHalt:
			return ClassHalt
		default:
			return ClassError
		}
	}
}

// PeekEffective advances as AdvanceToEffective does, but restores ip
// afterward so the caller can classify the upcoming primitive without
// committing to it. Loop-stack side effects of any LOOP/END crossed
// while peeking are, as in the reference implementation, not undone.
func (p *Process) PeekEffective() Class {
	saved := p.IP
	class := p.AdvanceToEffective()
	p.IP = saved
	return class
}

// CurrentDuration returns the argument of the current primitive.
// Only valid once AdvanceToEffective has returned ClassEffective (or
// ClassHalt) and ip >= 0.
func (p *Process) CurrentDuration() int {
	if p.IP < 0 {
		panic("process: CurrentDuration called before ip is valid")
	}
	return p.Code[p.IP].Arg
}

// CurrentOp returns the opcode at ip.
func (p *Process) CurrentOp() Op {
	if p.IP < 0 {
		panic("process: CurrentOp called before ip is valid")
	}
	return p.Code[p.IP].Op
}

// StateName returns the trace-line state name for the process,
// distinguishing blocked-on-send/recv from a plain timer block.
func (p *Process) StateName() string {
	if p.State == Blocked {
		switch p.CurrentOp() {
		case OpSend:
			return "blocked (send)"
		case OpRecv:
			return "blocked (recv)"
		default:
			return "blocked"
		}
	}
	return p.State.String()
}
