// Package workload synthesizes random process programs for fuzz-style
// exercising of the simulator, adapted from the teacher's job
// generator in pkg/client/client.go (distuv.Beta/Poisson job sizing
// driven off a seeded golang.org/x/exp/rand source). Here a Beta
// distribution sizes DOOP/BLOCK durations and a uniform distribution
// sizes program length, instead of job core/memory requirements;
// SEND/RECV peers are chosen by position (adjacent processes), not
// drawn at random.
package workload

import (
	"fmt"

	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/abrodsky/prosim/pkg/process"
)

// Config controls the shape of generated programs.
type Config struct {
	NumProcs    int
	NumThreads  int
	Quantum     int
	MinOps      int
	MaxOps      int
	MaxDuration int // upper bound for DOOP/BLOCK argument sizing
	Seed        uint64
	// SendRecvPairs, when true, emits matched SEND/RECV pairs across
	// adjacent processes instead of plain DOOP/BLOCK programs; useful
	// for exercising the message fabric.
	SendRecvPairs bool
}

// Generator produces random programs from a fixed distribution set,
// mirroring the teacher's pattern of holding one distuv distribution
// per concern (size, duration) rather than re-seeding per call.
type Generator struct {
	cfg      Config
	rng      *exprand.Rand
	opLen    distuv.Uniform
	duration distuv.Beta
}

// New builds a Generator seeded for reproducible output.
func New(cfg Config) *Generator {
	src := exprand.NewSource(cfg.Seed)
	return &Generator{
		cfg: cfg,
		rng: exprand.New(src),
		opLen: distuv.Uniform{
			Min: float64(cfg.MinOps),
			Max: float64(cfg.MaxOps) + 1,
			Src: src,
		},
		duration: distuv.Beta{
			Alpha: 2,
			Beta:  2,
			Src:   src,
		},
	}
}

func (g *Generator) randDuration() int {
	d := int(g.duration.Rand() * float64(g.cfg.MaxDuration))
	if d < 1 {
		d = 1
	}
	return d
}

// Programs returns cfg.NumProcs freshly generated process programs,
// distributed round-robin across cfg.NumThreads node threads. Each
// program's ID is pre-assigned to match the id a node's Admit would
// give it (processes are admitted in input order, per thread,
// starting at 1), so SendRecvPairs can address peers correctly before
// admission ever runs.
func (g *Generator) Programs() []*process.Process {
	procs := make([]*process.Process, 0, g.cfg.NumProcs)
	nextID := make(map[int]int, g.cfg.NumThreads)
	for i := 0; i < g.cfg.NumProcs; i++ {
		thread := (i % g.cfg.NumThreads) + 1
		nextID[thread]++
		p := g.program(i, thread)
		p.ID = nextID[thread]
		procs = append(procs, p)
	}
	if g.cfg.SendRecvPairs {
		g.pairSendRecv(procs)
	}
	return procs
}

func (g *Generator) program(index, thread int) *process.Process {
	size := int(g.opLen.Rand())
	if size < 1 {
		size = 1
	}
	code := make([]process.Primitive, 0, size+1)
	for i := 0; i < size; i++ {
		if g.rng.Float64() < 0.2 {
			code = append(code, process.Primitive{Op: process.OpBlock, Arg: g.randDuration()})
		} else {
			code = append(code, process.Primitive{Op: process.OpDoop, Arg: g.randDuration()})
		}
	}
	code = append(code, process.Primitive{Op: process.OpHalt})

	priority := -1
	if g.rng.Float64() < 0.5 {
		priority = g.rng.Intn(10)
	}
	return process.New(fmt.Sprintf("gen%03d", index), thread, priority, code)
}

// pairSendRecv rewrites the last non-HALT primitive of adjacent
// processes into a matched SEND/RECV pair addressed to each other, so
// a generated workload reliably exercises cross-node rendezvous.
func (g *Generator) pairSendRecv(procs []*process.Process) {
	for i := 0; i+1 < len(procs); i += 2 {
		a, b := procs[i], procs[i+1]
		if len(a.Code) == 0 || len(b.Code) == 0 {
			continue
		}
		aIdx := len(a.Code) - 2
		bIdx := len(b.Code) - 2
		if aIdx < 0 || bIdx < 0 {
			continue
		}
		a.Code[aIdx] = process.Primitive{Op: process.OpSend, Arg: b.Addr()}
		b.Code[bIdx] = process.Primitive{Op: process.OpRecv, Arg: a.Addr()}
	}
}
