// Package circuit assembles wires and gates read from a Bristol circuit
// file into an evaluable graph, and exposes the wire-hash list a session
// exchanges during commitment.
package circuit

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bitvm-labs/bitvmd/gate"
	"github.com/bitvm-labs/bitvmd/wire"
)

// Circuit is an ordered sequence of gates over an arena of wires, with
// input and output segments carved out of that arena.
type Circuit struct {
	InputSizes  []int
	OutputSizes []int
	Gates       []*gate.Gate
	Wires       []*wire.Wire
}

// WireHashes returns the hash pair of every wire in arena order, the list
// a Prover sends a Verifier during session commitment so both sides build
// identical circuits.
func (c *Circuit) WireHashes() []wire.HashPair {
	hashes := make([]wire.HashPair, len(c.Wires))
	for i, w := range c.Wires {
		hashes[i] = w.Hashes
	}
	return hashes
}

// Evaluate sets the selector of every input wire from inputs (one slice
// per input segment, matching InputSizes), runs every gate in file order,
// and returns the selector bits of every output segment.
func (c *Circuit) Evaluate(inputs [][]bool) ([][]bool, error) {
	if len(inputs) != len(c.InputSizes) {
		return nil, fmt.Errorf("circuit: expected %d input segments, got %d",
			len(c.InputSizes), len(inputs))
	}

	var combined []bool
	for i, segment := range inputs {
		if len(segment) != c.InputSizes[i] {
			return nil, fmt.Errorf("circuit: input segment %d expects %d bits, got %d",
				i, c.InputSizes[i], len(segment))
		}
		combined = append(combined, segment...)
	}
	for i, bit := range combined {
		c.Wires[i].SetSelector(bit)
	}

	for gi, g := range c.Gates {
		if err := g.Evaluate(); err != nil {
			return nil, fmt.Errorf("circuit: gate %d (%s): %w", gi, g.Kind(), err)
		}
	}

	totalOutputs := 0
	for _, s := range c.OutputSizes {
		totalOutputs += s
	}
	outputIndex := len(c.Wires) - totalOutputs

	outputs := make([][]bool, len(c.OutputSizes))
	for i, size := range c.OutputSizes {
		segment := make([]bool, size)
		for j := 0; j < size; j++ {
			bit, ok := c.Wires[outputIndex+j].Selector()
			if !ok {
				return nil, fmt.Errorf("circuit: output wire %d has no selector after evaluation",
					outputIndex+j)
			}
			segment[j] = bit
		}
		outputs[i] = segment
		outputIndex += size
	}
	return outputs, nil
}

// FromBristol parses a Bristol-format circuit description from r. If
// wireHashes is non-nil, wires are reconstructed from those hashes (the
// Verifier's path, rebuilding a circuit from a received wire-hash list);
// otherwise fresh random preimages are generated (the Prover's path,
// building the circuit it will evaluate in the clear).
//
// Format: a header line "G W" (gate count, wire count), an input-sizes
// line "n s_1 .. s_n", an output-sizes line "m t_1 .. t_m", then G gate
// lines "a b in_1 .. in_a out_1 .. out_b TYPE". Blank lines are ignored.
func FromBristol(r io.Reader, wireHashes []wire.HashPair) (*Circuit, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		numGates, numWires int
		inputSizes         []int
		outputSizes        []int
		wires              []*wire.Wire
		gates              []*gate.Gate
		lineNo             int
		defined            []bool
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" && lineNo < 3 {
			continue
		}
		switch lineNo {
		case 0:
			fields := strings.Fields(line)
			if len(fields) != 2 {
				return nil, fmt.Errorf("circuit: malformed header line %q", line)
			}
			var err error
			if numGates, err = strconv.Atoi(fields[0]); err != nil {
				return nil, fmt.Errorf("circuit: bad gate count: %w", err)
			}
			if numWires, err = strconv.Atoi(fields[1]); err != nil {
				return nil, fmt.Errorf("circuit: bad wire count: %w", err)
			}
			wires = make([]*wire.Wire, numWires)
			for i := 0; i < numWires; i++ {
				if wireHashes != nil {
					if i >= len(wireHashes) {
						return nil, fmt.Errorf("circuit: not enough wire hashes supplied, need %d", numWires)
					}
					wires[i] = wire.NewWithHashes(uint32(i), wireHashes[i])
					continue
				}
				w, err := wire.New(uint32(i))
				if err != nil {
					return nil, fmt.Errorf("circuit: generating wire %d: %w", i, err)
				}
				wires[i] = w
			}

		case 1:
			sizes, err := parseSizeLine(line)
			if err != nil {
				return nil, fmt.Errorf("circuit: input-sizes line: %w", err)
			}
			inputSizes = sizes
			defined = make([]bool, numWires)
			for i := 0; i < sum(inputSizes) && i < numWires; i++ {
				defined[i] = true
			}

		case 2:
			sizes, err := parseSizeLine(line)
			if err != nil {
				return nil, fmt.Errorf("circuit: output-sizes line: %w", err)
			}
			outputSizes = sizes

		default:
			if line == "" {
				lineNo++
				continue
			}
			g, err := parseGateLine(line, wires, defined)
			if err != nil {
				return nil, fmt.Errorf("circuit: gate line %d: %w", lineNo, err)
			}
			gates = append(gates, g)
		}
		lineNo++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("circuit: reading bristol file: %w", err)
	}

	if len(gates) != numGates {
		return nil, fmt.Errorf("circuit: header declared %d gates, found %d", numGates, len(gates))
	}
	totalSegments := sum(inputSizes) + sum(outputSizes)
	if totalSegments > numWires {
		return nil, fmt.Errorf("circuit: input+output segments (%d) exceed wire count (%d)",
			totalSegments, numWires)
	}

	log.Debugf("parsed bristol circuit: %d gates, %d wires", numGates, numWires)

	return &Circuit{
		InputSizes:  inputSizes,
		OutputSizes: outputSizes,
		Gates:       gates,
		Wires:       wires,
	}, nil
}

func parseSizeLine(line string) ([]int, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty size line")
	}
	count, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, fmt.Errorf("bad segment count: %w", err)
	}
	if len(fields) != count+1 {
		return nil, fmt.Errorf("declared %d segments, found %d", count, len(fields)-1)
	}
	sizes := make([]int, count)
	for i := 0; i < count; i++ {
		sizes[i], err = strconv.Atoi(fields[i+1])
		if err != nil {
			return nil, fmt.Errorf("bad segment size %q: %w", fields[i+1], err)
		}
	}
	return sizes, nil
}

func parseGateLine(line string, wires []*wire.Wire, defined []bool) (*gate.Gate, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil, fmt.Errorf("too few fields in %q", line)
	}
	numIn, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, fmt.Errorf("bad input count: %w", err)
	}
	numOut, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("bad output count: %w", err)
	}
	want := 2 + numIn + numOut + 1
	if len(fields) != want {
		return nil, fmt.Errorf("expected %d fields for %d-in/%d-out gate, got %d",
			want, numIn, numOut, len(fields))
	}

	resolveIndex := func(tokenIdx int) (int, error) {
		idx, err := strconv.Atoi(fields[tokenIdx])
		if err != nil {
			return 0, fmt.Errorf("bad wire index %q: %w", fields[tokenIdx], err)
		}
		if idx < 0 || idx >= len(wires) {
			return 0, fmt.Errorf("wire index %d out of range [0,%d)", idx, len(wires))
		}
		return idx, nil
	}

	in := make([]*wire.Wire, numIn)
	for i := 0; i < numIn; i++ {
		idx, err := resolveIndex(2 + i)
		if err != nil {
			return nil, err
		}
		// The file order is the topological order: every input wire of a
		// gate must already have a value, either because it is part of
		// the circuit's input segment or because an earlier gate produced
		// it.
		if !defined[idx] {
			return nil, fmt.Errorf("wire %d used as input before being defined", idx)
		}
		in[i] = wires[idx]
	}
	out := make([]*wire.Wire, numOut)
	for i := 0; i < numOut; i++ {
		idx, err := resolveIndex(2 + numIn + i)
		if err != nil {
			return nil, err
		}
		if defined[idx] {
			return nil, fmt.Errorf("wire %d redefined as gate output", idx)
		}
		defined[idx] = true
		out[i] = wires[idx]
	}

	typeToken := fields[2+numIn+numOut]
	g, err := gate.New(typeToken, in, out)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func sum(xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}
