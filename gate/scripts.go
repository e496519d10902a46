package gate

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"

	"github.com/bitvm-labs/bitvmd/wire"
)

// ResponseScript builds the Taproot leaf script that lets the Prover spend
// the response-ladder output for this gate. challengeHash is the per-rung
// challenge hash the Verifier issued for this gate (L_i in spec notation);
// proverPK binds the final signature check to the Prover's key.
//
// Witness layout required to satisfy the returned script, bottom (pushed
// first) to top (pushed last, consumed first):
//
//	[sig, challenge_preimage, in_last..in_0, out_last..out_0]
//
// i.e. declared-order input/output preimages are consumed first-to-last by
// the script, with the challenge preimage and signature surfacing only
// once every wire preimage above them has been checked and discarded.
func (g *Gate) ResponseScript(challengeHash wire.Hash, proverPK *btcec.PublicKey) ([]byte, error) {
	builder := txscript.NewScriptBuilder()

	// Step 1: each output wire's bit-commitment snippet result is stashed
	// on the alt-stack for later comparison against the gate's computed
	// result.
	for _, w := range g.out {
		w.AddBitCommitmentSnippet(builder)
		builder.AddOp(txscript.OP_TOALTSTACK)
	}

	// Step 2: each input wire's bit-commitment snippet runs in turn. Every
	// input but the last is parked on the alt-stack; the last is left on
	// the main stack for step 3.
	for i, w := range g.in {
		w.AddBitCommitmentSnippet(builder)
		if i < len(g.in)-1 {
			builder.AddOp(txscript.OP_TOALTSTACK)
		}
	}

	// Step 3 + 4: combine the input bits per the gate's Boolean operation,
	// then verify the result against each expected output popped back off
	// the alt-stack.
	if err := g.appendCombineAndVerify(builder); err != nil {
		return nil, err
	}

	// Step 5: the challenge preimage, now on top of the stack with only
	// the signature below it, must hash to the rung's issued challenge hash.
	builder.AddOp(txscript.OP_SHA256)
	builder.AddData(challengeHash[:])
	builder.AddOp(txscript.OP_EQUALVERIFY)

	// Final: a signature from the Prover over this spend.
	builder.AddData(schnorr.SerializePubKey(proverPK))
	builder.AddOp(txscript.OP_CHECKSIG)

	return builder.Script()
}

// appendCombineAndVerify appends the gate-specific stack choreography that
// turns the raw input bits left by step 2 into the gate's output bits and
// checks them against the expected values parked on the alt-stack by step
// 1. It is the one part of the script that differs meaningfully between
// gate kinds.
func (g *Gate) appendCombineAndVerify(b *txscript.ScriptBuilder) error {
	switch g.kind {
	case KindNot:
		// main: [in0_bit]
		b.AddOp(txscript.OP_NOT)
		// main: [result]; altstack: [out0_expected]
		b.AddOp(txscript.OP_FROMALTSTACK)
		b.AddOp(txscript.OP_EQUALVERIFY)
		return nil

	case KindAnd, KindOr, KindXor:
		// main: [in1_bit]; altstack: [out0_expected, in0_bit]
		b.AddOp(txscript.OP_FROMALTSTACK)
		// main: [in1_bit, in0_bit]; altstack: [out0_expected]
		switch g.kind {
		case KindAnd:
			b.AddOp(txscript.OP_BOOLAND)
		case KindOr:
			b.AddOp(txscript.OP_BOOLOR)
		case KindXor:
			b.AddOp(txscript.OP_NUMEQUAL)
			b.AddOp(txscript.OP_NOT)
		}
		// main: [result]
		b.AddOp(txscript.OP_FROMALTSTACK)
		b.AddOp(txscript.OP_EQUALVERIFY)
		return nil

	case KindAdd1:
		// main: [in1_bit]; altstack: [sum_expected, carry_expected, in0_bit]
		b.AddOp(txscript.OP_FROMALTSTACK)
		// main: [in1_bit, in0_bit]; altstack: [sum_expected, carry_expected]
		b.AddOp(txscript.OP_2DUP)
		// main: [in1_bit, in0_bit, in1_bit, in0_bit]
		b.AddOp(txscript.OP_BOOLAND)
		// main: [in1_bit, in0_bit, carry_bit]
		b.AddOp(txscript.OP_TOALTSTACK)
		// main: [in1_bit, in0_bit]; altstack: [sum_expected, carry_expected, carry_bit]
		b.AddOp(txscript.OP_NUMEQUAL)
		b.AddOp(txscript.OP_NOT)
		// main: [sum_bit]
		b.AddOp(txscript.OP_FROMALTSTACK)
		// main: [sum_bit, carry_bit]; altstack: [sum_expected, carry_expected]
		b.AddOp(txscript.OP_FROMALTSTACK)
		// main: [sum_bit, carry_bit, carry_expected]; altstack: [sum_expected]
		b.AddOp(txscript.OP_EQUALVERIFY)
		// main: [sum_bit]
		b.AddOp(txscript.OP_FROMALTSTACK)
		// main: [sum_bit, sum_expected]; altstack: []
		b.AddOp(txscript.OP_EQUALVERIFY)
		// main: []
		return nil

	default:
		return fmt.Errorf("gate: no response script combine step for kind %q", g.kind)
	}
}
