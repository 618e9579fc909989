// Package simulation wires together the process-global collaborators
// that every node worker shares: the message fabric, the clock
// barrier, the finished-process queue, the trace sink and telemetry.
// A single Simulation value is constructed by the driver and passed
// by reference to every node worker; per spec.md §9 this is
// deliberately not hidden behind a package-level singleton the way
// the teacher repository's `sched`/`client` globals are.
package simulation

import (
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/rs/zerolog"

	"github.com/abrodsky/prosim/pkg/barrier"
	"github.com/abrodsky/prosim/pkg/fabric"
	"github.com/abrodsky/prosim/pkg/pq"
	"github.com/abrodsky/prosim/pkg/process"
)

// finishedOrderClockUnit and finishedOrderAddrUnit mirror the original
// source's clock_time*MAX_PROCS*MAX_THREADS + thread*MAX_PROCS + id
// key with MAX_PROCS = MAX_THREADS = 100, matching spec.md §3's
// clock_time*10_000 + thread*100 + id.
const (
	finishedOrderClockUnit = 10_000
	finishedOrderAddrUnit  = 100
)

// Simulation holds every process-wide collaborator: the fabric, the
// barrier, the finished queue, the trace sink, and telemetry.
type Simulation struct {
	Fabric  *fabric.Fabric
	Barrier *barrier.Barrier
	Quantum int

	// CompatMode replays the original tool's known wait_time=1 fixup
	// for process id 2 during terminal flush. Defaults to false: see
	// SPEC_FULL.md's SUPPLEMENTED FEATURES section.
	CompatMode bool

	Logger zerolog.Logger
	Tracer trace.Tracer
	Meter  metric.Meter

	finishedMu sync.Mutex
	finished   *pq.Queue[*process.Process]

	traceMu  sync.Mutex
	traceOut io.Writer
}

// New constructs a Simulation for numNodes worker goroutines.
func New(numNodes, quantum int, traceOut io.Writer, logger zerolog.Logger, tracer trace.Tracer, meter metric.Meter) *Simulation {
	return &Simulation{
		Fabric:   fabric.New(),
		Barrier:  barrier.New(numNodes),
		Quantum:  quantum,
		Logger:   logger,
		Tracer:   tracer,
		Meter:    meter,
		finished: pq.New[*process.Process](),
		traceOut: traceOut,
	}
}

// Trace prints the single-line state transition required by spec.md
// §6: `[NN] TTTTT: process I <state-name>`. Every call is serialized
// through one mutex, matching the original's single print_process
// lock around stdout.
func (s *Simulation) Trace(nodeID, clockTime int, p *process.Process) {
	s.traceMu.Lock()
	defer s.traceMu.Unlock()
	fmt.Fprintf(s.traceOut, "[%02d] %05d: process %d %s\n", nodeID, clockTime, p.ID, p.StateName())
}

// Finish records a process's completion time and files it in the
// finished queue, keyed so the summary prints in (time, node, id)
// order.
func (s *Simulation) Finish(clockTime int, p *process.Process) {
	p.Finished = clockTime
	key := int64(clockTime)*finishedOrderClockUnit + int64(p.Thread)*finishedOrderAddrUnit + int64(p.ID)

	s.finishedMu.Lock()
	s.finished.Add(key, p)
	s.finishedMu.Unlock()
}

// PrintSummary drains the finished queue in (time, node, id) order
// and writes one line per process, per spec.md §6.
func (s *Simulation) PrintSummary(w io.Writer) {
	s.finishedMu.Lock()
	defer s.finishedMu.Unlock()

	for {
		p, _, ok := s.finished.RemoveMin()
		if !ok {
			break
		}
		fmt.Fprintf(w, "| %05d | Proc %02d.%02d | Run %d, Block %d, Wait %d, Sends %d, Recvs %d\n",
			p.Finished, p.Thread, p.ID, p.DoopTime, p.BlockTime, p.WaitTime, p.SendCount, p.RecvCount)
	}
}
