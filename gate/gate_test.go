package gate_test

import (
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/bitvm-labs/bitvmd/chainscript"
	"github.com/bitvm-labs/bitvmd/gate"
	"github.com/bitvm-labs/bitvmd/txgraph"
	"github.com/bitvm-labs/bitvmd/wire"
)

func newWires(t *testing.T, n int) []*wire.Wire {
	t.Helper()
	wires := make([]*wire.Wire, n)
	for i := range wires {
		w, err := wire.New(uint32(i))
		require.NoError(t, err)
		wires[i] = w
	}
	return wires
}

func TestParseKindAliases(t *testing.T) {
	for _, token := range []string{"AND", "and", "Xor", "OR", "NOT", "inv", "INV", "ADD1"} {
		_, err := gate.ParseKind(token)
		require.NoError(t, err, token)
	}
	_, err := gate.ParseKind("nand")
	require.ErrorIs(t, err, gate.ErrUnknownGateType)
}

// TestExhaustiveTruthTables walks every input assignment for every gate
// kind and checks the computed output against a hand-written reference,
// matching the contract that the circuit's evaluate step and the gate's
// response-script witness agree on the same function.
func TestExhaustiveTruthTables(t *testing.T) {
	cases := []struct {
		kind gate.Kind
		ref  func(x []bool) []bool
	}{
		{gate.KindNot, func(x []bool) []bool { return []bool{!x[0]} }},
		{gate.KindAnd, func(x []bool) []bool { return []bool{x[0] && x[1]} }},
		{gate.KindOr, func(x []bool) []bool { return []bool{x[0] || x[1]} }},
		{gate.KindXor, func(x []bool) []bool { return []bool{x[0] != x[1]} }},
		{gate.KindAdd1, func(x []bool) []bool { return []bool{x[0] != x[1], x[0] && x[1]} }},
	}

	for _, c := range cases {
		nin, _ := c.kind.Arity()
		total := 1 << uint(nin)
		for mask := 0; mask < total; mask++ {
			x := make([]bool, nin)
			for i := range x {
				x[i] = mask&(1<<uint(i)) != 0
			}
			require.Equal(t, c.ref(x), c.kind.Evaluate(x), "%s(%v)", c.kind, x)
		}
	}
}

func TestGateEvaluateSetsOutputSelectors(t *testing.T) {
	in := newWires(t, 2)
	out := newWires(t, 1)
	g, err := gate.New("and", in, out)
	require.NoError(t, err)

	in[0].SetSelector(true)
	in[1].SetSelector(true)
	require.NoError(t, g.Evaluate())

	bit, ok := out[0].Selector()
	require.True(t, ok)
	require.True(t, bit)
}

func TestNewRejectsWrongArity(t *testing.T) {
	in := newWires(t, 1)
	out := newWires(t, 1)
	_, err := gate.New("and", in, out)
	require.Error(t, err)
}

func TestResponseWitnessMatchesEvaluatedSelectors(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	proverPK := priv.PubKey()

	kinds := []gate.Kind{gate.KindNot, gate.KindAnd, gate.KindOr, gate.KindXor, gate.KindAdd1}
	for _, kind := range kinds {
		nin, nout := kind.Arity()
		in := newWires(t, nin)
		out := newWires(t, nout)
		g, err := gate.New(string(kind), in, out)
		require.NoError(t, err, kind)

		for i, w := range in {
			w.SetSelector(i%2 == 0)
		}
		require.NoError(t, g.Evaluate())

		var challengePreimage wire.Hash
		_, err = rand.Read(challengePreimage[:])
		require.NoError(t, err)
		challengeHash := wire.Hash(sha256.Sum256(challengePreimage[:]))

		script, err := g.ResponseScript(challengeHash, proverPK)
		require.NoError(t, err, kind)
		require.NotEmpty(t, script)

		sig := make([]byte, 64)
		_, err = rand.Read(sig)
		require.NoError(t, err)

		witness, err := g.ResponseWitness(challengePreimage, sig)
		require.NoError(t, err, kind)
		require.Len(t, witness, 2+nin+nout)
		for i, w := range in {
			bit, ok := w.Selector()
			require.True(t, ok)
			p, _ := w.Preimage(bit)
			require.Equal(t, p[:], witness[2+nin-1-i], kind)
		}
		for i, w := range out {
			bit, ok := w.Selector()
			require.True(t, ok)
			p, _ := w.Preimage(bit)
			require.Equal(t, p[:], witness[2+nin+nout-1-i], kind)
		}
	}
}

// TestResponseScriptExhaustiveWitnesses iterates every combination of
// revealed input and output preimages for one gate instance of each kind
// and checks that exactly 2^inputs of the 2^(inputs+outputs) combinations
// satisfy the response script: one correct output assignment per input
// assignment, and no others.
func TestResponseScriptExhaustiveWitnesses(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	proverPK := priv.PubKey()

	kinds := []gate.Kind{gate.KindNot, gate.KindAnd, gate.KindOr, gate.KindXor, gate.KindAdd1}
	for _, kind := range kinds {
		nin, nout := kind.Arity()
		in := newWires(t, nin)
		out := newWires(t, nout)
		g, err := gate.New(string(kind), in, out)
		require.NoError(t, err, kind)

		var challengePreimage wire.Hash
		_, err = rand.Read(challengePreimage[:])
		require.NoError(t, err)
		challengeHash := wire.Hash(sha256.Sum256(challengePreimage[:]))

		script, err := g.ResponseScript(challengeHash, proverPK)
		require.NoError(t, err, kind)

		sigPriv, err := btcec.NewPrivateKey()
		require.NoError(t, err)

		accepted := 0
		total := 1 << uint(nin+nout)
		for mask := 0; mask < total; mask++ {
			inBits := make([]bool, nin)
			for i := range inBits {
				inBits[i] = mask&(1<<uint(i)) != 0
			}
			outBits := make([]bool, nout)
			for i := range outBits {
				outBits[i] = mask&(1<<uint(nin+i)) != 0
			}

			witness := make([][]byte, 0, 2+nin+nout)
			// sig comes first; it is computed per spend below since the
			// sighash depends on the surrounding transaction, not on the
			// bit assignment, so a placeholder is filled in once the
			// tree/tx are known.
			witness = append(witness, nil, challengePreimage[:])
			for i := nin - 1; i >= 0; i-- {
				p, ok := in[i].Preimage(inBits[i])
				require.True(t, ok)
				witness = append(witness, append([]byte{}, p[:]...))
			}
			for i := nout - 1; i >= 0; i-- {
				p, ok := out[i].Preimage(outBits[i])
				require.True(t, ok)
				witness = append(witness, append([]byte{}, p[:]...))
			}

			err := executeResponseScriptSigned(t, script, witness, sigPriv)
			want := kind.Evaluate(inBits)
			correct := boolsEqual(want, outBits)
			if correct {
				require.NoError(t, err, "%s: input %v output %v should satisfy the response script", kind, inBits, outBits)
			}
			if err == nil {
				accepted++
			}
		}

		require.Equal(t, 1<<uint(nin), accepted, "%s: expected exactly 2^%d accepting witnesses", kind, nin)
	}
}

func boolsEqual(a, b []bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// executeResponseScriptSigned spends script as a leaf of a two-leaf tree
// and runs it through the script engine, first computing and filling in
// witness[0]'s signature against the actual spend's sighash, since a gate
// response leaf's witness depends on the transaction it is embedded in.
func executeResponseScriptSigned(t *testing.T, script []byte, witness [][]byte, signer *btcec.PrivateKey) error {
	t.Helper()

	filler, err := chainscript.TimelockLeafScript(signer.PubKey(), 1)
	require.NoError(t, err)
	tree, err := chainscript.BuildScriptTree([][]byte{script, filler})
	require.NoError(t, err)

	pkScript, err := tree.PkScript()
	require.NoError(t, err)

	op := btcwire.OutPoint{Hash: chainhash.Hash{0x03}, Index: 0}
	prevOut := btcwire.NewTxOut(100_000, pkScript)

	tx := btcwire.NewMsgTx(btcwire.TxVersion)
	tx.AddTxIn(btcwire.NewTxIn(&op, nil, nil))
	tx.AddTxOut(btcwire.NewTxOut(90_000, pkScript))

	fetcher, err := txgraph.PrevOutFetcher([]btcwire.OutPoint{op}, []*btcwire.TxOut{prevOut})
	require.NoError(t, err)

	sigHash, err := txgraph.ScriptPathSigHash(tx, 0, fetcher, script)
	require.NoError(t, err)
	sig, err := schnorr.Sign(signer, sigHash)
	require.NoError(t, err)
	witness[0] = sig.Serialize()

	controlBlock, err := tree.ControlBlock(0)
	require.NoError(t, err)
	tx.TxIn[0].Witness = append(btcwire.TxWitness{}, append(witness, script, controlBlock)...)

	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	vm, err := txscript.NewEngine(pkScript, tx, 0, txscript.StandardVerifyFlags, nil, sigHashes, prevOut.Value, fetcher)
	require.NoError(t, err)
	return vm.Execute()
}
