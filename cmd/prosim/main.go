// Command prosim runs the multi-node process scheduling simulator: it
// reads a process-descriptor stream, admits each program to its node,
// and drives every node's tick loop in lock-step until the system
// terminates, printing a per-process trace and summary.
//
// Usage:
//
//	prosim [-quantum N] [-compat] [-gen] [input-file]
//
// With no input file, programs are read from stdin, matching
// original_source/prosim/main.c's `scanf`-from-stdin driver. With
// -gen, the descriptor stream is skipped and a synthetic workload is
// generated instead (see pkg/workload).
package main

import (
	"context"
	"flag"
	stlog "log"
	"os"
	"sync"

	"github.com/abrodsky/prosim/internal/telemetry"
	"github.com/abrodsky/prosim/pkg/input"
	"github.com/abrodsky/prosim/pkg/node"
	"github.com/abrodsky/prosim/pkg/process"
	"github.com/abrodsky/prosim/pkg/simulation"
	"github.com/abrodsky/prosim/pkg/workload"
)

func main() {
	quantum := flag.Int("quantum", 0, "CPU quantum in ticks (0 = use value from input header)")
	compat := flag.Bool("compat", false, "replay the original tool's process-id-2 wait_time fixup during terminal flush")
	gen := flag.Bool("gen", false, "generate a synthetic workload instead of reading process descriptors")
	genProcs := flag.Int("gen-procs", 20, "number of synthetic processes (-gen only)")
	genThreads := flag.Int("gen-threads", 4, "number of synthetic node threads (-gen only)")
	genSeed := flag.Uint64("gen-seed", 1, "PRNG seed for synthetic workload generation (-gen only)")
	flag.Parse()

	ctx := context.Background()

	providers, err := telemetry.New(ctx, telemetry.Config{
		ServiceName:    envOr("SERVICE_NAME", "prosim"),
		CollectorURL:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Insecure:       os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true",
		LogEnvironment: os.Getenv("LOG_ENVIRONMENT"),
	})
	if err != nil {
		stlog.Fatalf("prosim: telemetry setup failed: %v", err)
	}
	defer func() {
		if err := providers.Shutdown(ctx); err != nil {
			providers.Logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	var procs []*process.Process
	var numThreads, headerQuantum int

	if *gen {
		g := workload.New(workload.Config{
			NumProcs:      *genProcs,
			NumThreads:    *genThreads,
			Quantum:       4,
			MinOps:        3,
			MaxOps:        12,
			MaxDuration:   10,
			Seed:          *genSeed,
			SendRecvPairs: true,
		})
		procs = g.Programs()
		numThreads = *genThreads
		headerQuantum = 4
	} else {
		in := os.Stdin
		if flag.NArg() > 0 {
			f, err := os.Open(flag.Arg(0))
			if err != nil {
				stlog.Fatalf("prosim: %v", err)
			}
			defer f.Close()
			in = f
		}

		header, sc, err := input.ReadHeader(in)
		if err != nil {
			stlog.Fatalf("prosim: %v", err)
		}
		procs, err = input.ReadPrograms(header, sc)
		if err != nil {
			stlog.Fatalf("prosim: %v", err)
		}
		numThreads = header.NumThreads
		headerQuantum = header.Quantum
	}

	q := headerQuantum
	if *quantum > 0 {
		q = *quantum
	}

	sim := simulation.New(numThreads, q, os.Stdout, providers.Logger, providers.Tracer, providers.Meter)
	sim.CompatMode = *compat

	schedulers := make([]*node.Scheduler, numThreads+1) // 1-indexed, matching thread ids
	for id := 1; id <= numThreads; id++ {
		schedulers[id] = node.New(id, sim)
	}

	for _, p := range procs {
		if p.Thread < 1 || p.Thread > numThreads {
			stlog.Fatalf("prosim: process %q assigned to thread %d, outside 1..%d", p.Name, p.Thread, numThreads)
		}
		schedulers[p.Thread].Admit(p)
	}

	var wg sync.WaitGroup
	for id := 1; id <= numThreads; id++ {
		wg.Add(1)
		go func(s *node.Scheduler) {
			defer wg.Done()
			s.Run()
		}(schedulers[id])
	}
	wg.Wait()

	sim.PrintSummary(os.Stdout)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
