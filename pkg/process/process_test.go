package process

import "testing"

func TestAdvanceToEffectiveDoop(t *testing.T) {
	p := New("p", 1, 0, []Primitive{{Op: OpDoop, Arg: 5}, {Op: OpHalt}})

	class := p.AdvanceToEffective()
	if class != ClassEffective {
		t.Fatalf("AdvanceToEffective() class = %v, want ClassEffective", class)
	}
	if p.CurrentOp() != OpDoop {
		t.Fatalf("CurrentOp() = %v, want OpDoop", p.CurrentOp())
	}
	if p.DoopCount != 1 || p.DoopTime != 5 {
		t.Fatalf("DoopCount/DoopTime = %d/%d, want 1/5", p.DoopCount, p.DoopTime)
	}
}

func TestAdvanceToEffectiveHalt(t *testing.T) {
	p := New("p", 1, 0, []Primitive{{Op: OpHalt}})

	class := p.AdvanceToEffective()
	if class != ClassHalt {
		t.Fatalf("AdvanceToEffective() class = %v, want ClassHalt", class)
	}
}

func TestAdvanceToEffectiveUnknown(t *testing.T) {
	p := New("p", 1, 0, []Primitive{{Op: Op(99)}})

	class := p.AdvanceToEffective()
	if class != ClassError {
		t.Fatalf("AdvanceToEffective() class = %v, want ClassError", class)
	}
}

func TestAdvanceToEffectiveLoop(t *testing.T) {
	// LOOP 2 ; DOOP 1 ; END -- should execute the DOOP body, leaving
	// ip parked on the first DOOP and the loop frame still on the
	// stack with one iteration remaining.
	p := New("p", 1, 0, []Primitive{
		{Op: OpLoop, Arg: 2},
		{Op: OpDoop, Arg: 1},
		{Op: OpEnd},
		{Op: OpHalt},
	})

	class := p.AdvanceToEffective()
	if class != ClassEffective || p.CurrentOp() != OpDoop {
		t.Fatalf("first AdvanceToEffective() = (%v, %v), want (ClassEffective, OpDoop)", class, p.CurrentOp())
	}
	if len(p.stack) != 1 {
		t.Fatalf("len(stack) = %d, want 1 after entering loop body", len(p.stack))
	}

	// Re-enter the loop body: ip jumps back past END, the loop frame's
	// counter decrements and is popped once exhausted.
	class = p.AdvanceToEffective()
	if class != ClassEffective || p.CurrentOp() != OpDoop {
		t.Fatalf("second AdvanceToEffective() = (%v, %v), want (ClassEffective, OpDoop)", class, p.CurrentOp())
	}
	if len(p.stack) != 1 {
		t.Fatalf("len(stack) = %d, want 1 on second loop iteration", len(p.stack))
	}

	class = p.AdvanceToEffective()
	if class != ClassHalt {
		t.Fatalf("third AdvanceToEffective() class = %v, want ClassHalt", class)
	}
	if len(p.stack) != 0 {
		t.Fatalf("len(stack) = %d, want 0 after loop exhausted", len(p.stack))
	}
}

func TestPeekEffectiveDoesNotRestoreLoopStack(t *testing.T) {
	// PeekEffective only saves/restores ip, matching the original
	// context_next_op quirk: stack mutations and stat bumps from a
	// peek persist even though ip rewinds.
	p := New("p", 1, 0, []Primitive{
		{Op: OpLoop, Arg: 3},
		{Op: OpDoop, Arg: 1},
		{Op: OpEnd},
		{Op: OpHalt},
	})

	savedIP := p.IP
	class := p.PeekEffective()
	if class != ClassEffective {
		t.Fatalf("PeekEffective() class = %v, want ClassEffective", class)
	}
	if p.IP != savedIP {
		t.Fatalf("IP after peek = %d, want restored to %d", p.IP, savedIP)
	}
	if len(p.stack) != 1 {
		t.Fatalf("len(stack) after peek = %d, want 1 (loop stack not restored)", len(p.stack))
	}
	if p.DoopCount != 1 {
		t.Fatalf("DoopCount after peek = %d, want 1 (stat bump persists)", p.DoopCount)
	}
}

func TestStateNameBlockedSendRecv(t *testing.T) {
	p := New("p", 1, 0, []Primitive{{Op: OpSend, Arg: 201}, {Op: OpHalt}})
	p.AdvanceToEffective()
	p.State = Blocked
	if got := p.StateName(); got != "blocked (send)" {
		t.Fatalf("StateName() = %q, want %q", got, "blocked (send)")
	}

	q := New("q", 2, 0, []Primitive{{Op: OpRecv, Arg: 101}, {Op: OpHalt}})
	q.AdvanceToEffective()
	q.State = Blocked
	if got := q.StateName(); got != "blocked (recv)" {
		t.Fatalf("StateName() = %q, want %q", got, "blocked (recv)")
	}
}

func TestAddr(t *testing.T) {
	p := New("p", 3, 0, nil)
	p.ID = 7
	if got, want := p.Addr(), 3*100+7; got != want {
		t.Fatalf("Addr() = %d, want %d", got, want)
	}
}
