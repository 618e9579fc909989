// Package input reads the textual process-descriptor format consumed
// by the simulator: a header line of `num_procs quantum num_threads`
// followed by one program per process, each itself a one-line header
// of `name size priority thread` and `size` whitespace-separated
// primitives. Parsing aborts on the first malformed token, matching
// original_source/prosim/context.c's context_load.
package input

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/abrodsky/prosim/pkg/process"
)

// Header carries the top-of-file simulation parameters.
type Header struct {
	NumProcs   int
	Quantum    int
	NumThreads int
}

// opNames mirrors context.c's static OPS table; order doesn't matter
// here since lookup is by name, not index.
var opNames = map[string]process.Op{
	"HALT":  process.OpHalt,
	"DOOP":  process.OpDoop,
	"LOOP":  process.OpLoop,
	"END":   process.OpEnd,
	"BLOCK": process.OpBlock,
	"SEND":  process.OpSend,
	"RECV":  process.OpRecv,
}

// argOps is the set of primitives that carry an integer argument.
var argOps = map[process.Op]bool{
	process.OpLoop:  true,
	process.OpDoop:  true,
	process.OpBlock: true,
	process.OpSend:  true,
	process.OpRecv:  true,
}

// scanner is a whitespace-token reader over the whole input stream,
// the Go analogue of repeated fscanf("%s", ...) calls against stdin.
type scanner struct {
	sc *bufio.Scanner
}

func newScanner(r io.Reader) *scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sc.Split(bufio.ScanWords)
	return &scanner{sc: sc}
}

func (s *scanner) next() (string, bool) {
	if !s.sc.Scan() {
		return "", false
	}
	return s.sc.Text(), true
}

func (s *scanner) nextInt() (int, error) {
	tok, ok := s.next()
	if !ok {
		return 0, io.ErrUnexpectedEOF
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("expected integer, got %q: %w", tok, err)
	}
	return n, nil
}

// ReadHeader reads the simulation's leading `num_procs quantum
// num_threads` line.
func ReadHeader(r io.Reader) (Header, *scanner, error) {
	s := newScanner(r)
	numProcs, err := s.nextInt()
	if err != nil {
		return Header{}, nil, fmt.Errorf("bad input: expecting # of processes, quantum, and # of threads: %w", err)
	}
	quantum, err := s.nextInt()
	if err != nil {
		return Header{}, nil, fmt.Errorf("bad input: expecting # of processes, quantum, and # of threads: %w", err)
	}
	numThreads, err := s.nextInt()
	if err != nil {
		return Header{}, nil, fmt.Errorf("bad input: expecting # of processes, quantum, and # of threads: %w", err)
	}
	return Header{NumProcs: numProcs, Quantum: quantum, NumThreads: numThreads}, s, nil
}

// ReadPrograms reads exactly header.NumProcs program descriptors from
// s, aborting on the first malformed token. This mirrors context_load
// being called num_procs times in the original's main loop, with the
// same all-or-nothing failure behavior.
func ReadPrograms(header Header, s *scanner) ([]*process.Process, error) {
	procs := make([]*process.Process, 0, header.NumProcs)
	for i := 0; i < header.NumProcs; i++ {
		p, err := readProgram(s)
		if err != nil {
			return nil, fmt.Errorf("bad input: could not load program description %d: %w", i+1, err)
		}
		procs = append(procs, p)
	}
	return procs, nil
}

func readProgram(s *scanner) (*process.Process, error) {
	name, ok := s.next()
	if !ok {
		return nil, fmt.Errorf("expecting program name, size, priority, and thread")
	}
	size, err := s.nextInt()
	if err != nil {
		return nil, fmt.Errorf("expecting program name, size, priority, and thread: %w", err)
	}
	priority, err := s.nextInt()
	if err != nil {
		return nil, fmt.Errorf("expecting program name, size, priority, and thread: %w", err)
	}
	thread, err := s.nextInt()
	if err != nil {
		return nil, fmt.Errorf("expecting program name, size, priority, and thread: %w", err)
	}

	code := make([]process.Primitive, size)
	for i := 0; i < size; i++ {
		tok, ok := s.next()
		if !ok {
			return nil, fmt.Errorf("expecting operation on line %d in %s", i+1, name)
		}
		op, known := opNames[strings.ToUpper(tok)]
		if !known {
			return nil, fmt.Errorf("operation %d unknown: %s", i+1, tok)
		}
		prim := process.Primitive{Op: op}
		if argOps[op] {
			arg, err := s.nextInt()
			if err != nil {
				return nil, fmt.Errorf("expecting argument to op on line %d in %s: %w", i+1, name, err)
			}
			prim.Arg = arg
		}
		code[i] = prim
	}

	return process.New(name, thread, priority, code), nil
}
