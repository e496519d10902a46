// Package gate implements the polymorphic gate library: NOT, AND, XOR, OR,
// and ADD1 (half-adder). Each gate knows its truth table, how to build the
// response script that verifies one input/output assignment against the
// committed wire hashes using only stack opcodes, and how to construct the
// witness that unlocks that script when the gate has been evaluated
// correctly.
package gate

import (
	"fmt"
	"strings"

	"github.com/bitvm-labs/bitvmd/wire"
)

// Kind names one of the five recognized gate variants.
type Kind string

// Recognized gate kinds.
const (
	KindNot  Kind = "not"
	KindAnd  Kind = "and"
	KindXor  Kind = "xor"
	KindOr   Kind = "or"
	KindAdd1 Kind = "add1"
)

// arities maps each kind to its (inputs, outputs) count.
var arities = map[Kind][2]int{
	KindNot:  {1, 1},
	KindAnd:  {2, 1},
	KindXor:  {2, 1},
	KindOr:   {2, 1},
	KindAdd1: {2, 2},
}

// aliases maps recognized Bristol type tokens (already lower-cased) onto a
// canonical Kind. NOT and INV are the same gate under two spellings.
var aliases = map[string]Kind{
	"not":  KindNot,
	"inv":  KindNot,
	"and":  KindAnd,
	"xor":  KindXor,
	"or":   KindOr,
	"add1": KindAdd1,
}

// truthTables implements the Boolean function of each gate kind over its
// full input space, used by Evaluate and by the exhaustive truth-table
// tests.
var truthTables = map[Kind]func(in []bool) []bool{
	KindNot: func(in []bool) []bool { return []bool{!in[0]} },
	KindAnd: func(in []bool) []bool { return []bool{in[0] && in[1]} },
	KindXor: func(in []bool) []bool { return []bool{in[0] != in[1]} },
	KindOr:  func(in []bool) []bool { return []bool{in[0] || in[1]} },
	KindAdd1: func(in []bool) []bool {
		sum := in[0] != in[1]
		carry := in[0] && in[1]
		return []bool{sum, carry}
	},
}

// ErrUnknownGateType is returned by New/ParseKind for an unrecognized
// Bristol gate token.
var ErrUnknownGateType = fmt.Errorf("gate: unknown gate type")

// ParseKind resolves a Bristol gate type token (case-insensitive) to a
// canonical Kind.
func ParseKind(token string) (Kind, error) {
	kind, ok := aliases[strings.ToLower(token)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownGateType, token)
	}
	return kind, nil
}

// Arity returns the (input count, output count) for a kind.
func (k Kind) Arity() (int, int) {
	a := arities[k]
	return a[0], a[1]
}

// Evaluate applies the kind's Boolean function to x.
func (k Kind) Evaluate(x []bool) []bool {
	return truthTables[k](x)
}

// Gate is one node of the circuit: a polymorphic variant over {NOT, AND,
// XOR, OR, ADD1} operating on arena-indexed input and output wires.
type Gate struct {
	kind Kind
	in   []*wire.Wire
	out  []*wire.Wire
}

// New constructs a gate of the given Bristol type token over in/out wires,
// validating arity.
func New(token string, in, out []*wire.Wire) (*Gate, error) {
	kind, err := ParseKind(token)
	if err != nil {
		return nil, err
	}
	nin, nout := kind.Arity()
	if len(in) != nin {
		return nil, fmt.Errorf("gate: %s expects %d inputs, got %d", kind, nin, len(in))
	}
	if len(out) != nout {
		return nil, fmt.Errorf("gate: %s expects %d outputs, got %d", kind, nout, len(out))
	}
	return &Gate{kind: kind, in: in, out: out}, nil
}

// Kind reports the gate's variant.
func (g *Gate) Kind() Kind { return g.kind }

// InputWires returns the gate's input wires in declared order.
func (g *Gate) InputWires() []*wire.Wire { return g.in }

// OutputWires returns the gate's output wires in declared order.
func (g *Gate) OutputWires() []*wire.Wire { return g.out }

// Evaluate reads the selector bit of every input wire, applies the gate's
// Boolean function, and sets the selector bit of every output wire.
func (g *Gate) Evaluate() error {
	x := make([]bool, len(g.in))
	for i, w := range g.in {
		bit, ok := w.Selector()
		if !ok {
			return fmt.Errorf("gate: input wire %d has no selector set", w.Index)
		}
		x[i] = bit
	}
	y := g.kind.Evaluate(x)
	for i, w := range g.out {
		w.SetSelector(y[i])
	}
	return nil
}
