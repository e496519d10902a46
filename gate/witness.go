package gate

import (
	"fmt"

	"github.com/bitvm-labs/bitvmd/wire"
)

// ResponseWitness builds the witness stack that satisfies ResponseScript,
// given the gate has already been Evaluate()'d (so every input/output wire
// carries a selector and thus a resolvable preimage), the challenge
// preimage the Verifier revealed for this gate, and the Prover's 64-byte
// Schnorr signature over this spend.
//
// The returned slice is in witness order (index 0 is pushed first, ends up
// deepest): [sig, challenge_preimage, in_last..in_0, out_last..out_0].
func (g *Gate) ResponseWitness(challengePreimage wire.Hash, sig []byte) ([][]byte, error) {
	witness := make([][]byte, 0, 2+len(g.in)+len(g.out))
	witness = append(witness, sig, challengePreimage[:])

	for i := len(g.in) - 1; i >= 0; i-- {
		preimage, err := wirePreimage(g.in[i])
		if err != nil {
			return nil, fmt.Errorf("gate: input %d: %w", i, err)
		}
		witness = append(witness, preimage[:])
	}
	for i := len(g.out) - 1; i >= 0; i-- {
		preimage, err := wirePreimage(g.out[i])
		if err != nil {
			return nil, fmt.Errorf("gate: output %d: %w", i, err)
		}
		witness = append(witness, preimage[:])
	}
	return witness, nil
}

func wirePreimage(w *wire.Wire) (wire.Hash, error) {
	bit, ok := w.Selector()
	if !ok {
		return wire.Hash{}, fmt.Errorf("wire %d has no selector set", w.Index)
	}
	preimage, ok := w.Preimage(bit)
	if !ok {
		return wire.Hash{}, fmt.Errorf("wire %d has no preimage for bit %v", w.Index, bit)
	}
	return preimage, nil
}
