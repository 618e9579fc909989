package simulation_test

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/abrodsky/prosim/pkg/node"
	"github.com/abrodsky/prosim/pkg/process"
	"github.com/abrodsky/prosim/pkg/simulation"
)

func TestEndToEndTwoNodeRendezvousAndSummary(t *testing.T) {
	var trace bytes.Buffer
	sim := simulation.New(2, 4, &trace, zerolog.Nop(), nil, nil)

	s1 := node.New(1, sim)
	s2 := node.New(2, sim)

	sender := process.New("sender", 1, 0, []process.Primitive{
		{Op: process.OpDoop, Arg: 2},
		{Op: process.OpSend, Arg: 2*100 + 1},
		{Op: process.OpHalt},
	})
	receiver := process.New("receiver", 2, 0, []process.Primitive{
		{Op: process.OpRecv, Arg: 1*100 + 1},
		{Op: process.OpHalt},
	})

	s1.Admit(sender)
	s2.Admit(receiver)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); s1.Run() }()
	go func() { defer wg.Done(); s2.Run() }()
	wg.Wait()

	if sender.State != process.Finished || receiver.State != process.Finished {
		t.Fatalf("both processes should finish: sender=%v receiver=%v", sender.State, receiver.State)
	}

	var summary bytes.Buffer
	sim.PrintSummary(&summary)
	lines := strings.Split(strings.TrimSpace(summary.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("summary lines = %d, want 2:\n%s", len(lines), summary.String())
	}
	for _, l := range lines {
		if !strings.Contains(l, "| Proc ") || !strings.Contains(l, "Sends") {
			t.Fatalf("summary line malformed: %q", l)
		}
	}

	if !strings.Contains(trace.String(), "process 1") {
		t.Fatalf("trace output missing expected process reference:\n%s", trace.String())
	}
}

func TestFinishOrdersBySpecifiedKey(t *testing.T) {
	sim := simulation.New(1, 4, &bytes.Buffer{}, zerolog.Nop(), nil, nil)

	late := process.New("late", 1, 0, nil)
	late.ID = 1
	early := process.New("early", 2, 0, nil)
	early.ID = 1

	sim.Finish(5, late)  // key 5*10000 + 1*100 + 1
	sim.Finish(3, early) // key 3*10000 + 2*100 + 1, strictly smaller

	var out bytes.Buffer
	sim.PrintSummary(&out)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("summary lines = %d, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "00003") {
		t.Fatalf("first summary line = %q, want the earlier clock time first", lines[0])
	}
}
