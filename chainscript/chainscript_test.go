package chainscript_test

import (
	"crypto/sha256"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/bitvm-labs/bitvmd/chainscript"
	"github.com/bitvm-labs/bitvmd/circuit"
	"github.com/bitvm-labs/bitvmd/txgraph"
	"github.com/bitvm-labs/bitvmd/wire"
)

func newKey(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func newKeyPair(t *testing.T) (*btcec.PrivateKey, *btcec.PublicKey) {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv, priv.PubKey()
}

func TestNUMSInternalKeyIsDeterministic(t *testing.T) {
	k1 := chainscript.NUMSInternalKey()
	k2 := chainscript.NUMSInternalKey()
	require.True(t, k1.IsEqual(k2))
}

func TestTimelockLeafScriptRejectsOutOfRange(t *testing.T) {
	pk := newKey(t)
	_, err := chainscript.TimelockLeafScript(pk, 0)
	require.Error(t, err)
	_, err = chainscript.TimelockLeafScript(pk, 0x10000)
	require.Error(t, err)
}

func TestBuildScriptTreeAddressIsDeterministic(t *testing.T) {
	proverPK, verifierPK := newKey(t), newKey(t)

	timelock, err := chainscript.TimelockLeafScript(proverPK, 10)
	require.NoError(t, err)
	cosign, err := chainscript.CoSignLeafScript(proverPK, verifierPK)
	require.NoError(t, err)

	tree1, err := chainscript.BuildScriptTree([][]byte{cosign, timelock})
	require.NoError(t, err)
	tree2, err := chainscript.BuildScriptTree([][]byte{cosign, timelock})
	require.NoError(t, err)
	require.True(t, tree1.OutputKey.IsEqual(tree2.OutputKey))

	addr1, err := tree1.Address(&chaincfg.RegressionNetParams)
	require.NoError(t, err)
	addr2, err := tree2.Address(&chaincfg.RegressionNetParams)
	require.NoError(t, err)
	require.Equal(t, addr1.String(), addr2.String())
	require.True(t, strings.HasPrefix(addr1.String(), "bcrt1p"))
}

func TestControlBlockVerifiesEveryLeaf(t *testing.T) {
	proverPK, verifierPK := newKey(t), newKey(t)
	timelock, err := chainscript.TimelockLeafScript(proverPK, 10)
	require.NoError(t, err)
	cosign, err := chainscript.CoSignLeafScript(proverPK, verifierPK)
	require.NoError(t, err)
	leaves := [][]byte{cosign, timelock}

	tree, err := chainscript.BuildScriptTree(leaves)
	require.NoError(t, err)

	for i, script := range leaves {
		cb, err := tree.ControlBlock(i)
		require.NoError(t, err)
		parsed, err := txscript.ParseControlBlock(cb)
		require.NoError(t, err)
		require.True(t, parsed.InternalKey.IsEqual(tree.InternalKey))
		require.NotEmpty(t, script)
		require.NoError(t, txscript.VerifyTaprootLeafCommitment(parsed, schnorr.SerializePubKey(tree.OutputKey), script))
	}

	_, err = tree.ControlBlock(len(leaves))
	require.Error(t, err)
}

func simpleCircuit(t *testing.T) *circuit.Circuit {
	t.Helper()
	const bristol = "1 3\n2 1 1\n1 1\n2 1 0 1 2 AND\n"
	c, err := circuit.FromBristol(strings.NewReader(bristol), nil)
	require.NoError(t, err)
	return c
}

func TestBuildChallengeAndResponseAddresses(t *testing.T) {
	proverPK, verifierPK := newKey(t), newKey(t)
	c := simpleCircuit(t)

	challengeHashes := make([]wire.Hash, len(c.Gates))
	for i := range challengeHashes {
		var preimage wire.Hash
		preimage[0] = byte(i + 1)
		challengeHashes[i] = preimage
	}

	challengeTree, err := chainscript.BuildChallengeAddress(c, verifierPK, challengeHashes)
	require.NoError(t, err)
	require.Len(t, challengeTree.Leaves, len(c.Gates))

	responseTree, err := chainscript.BuildResponseAddress(c, proverPK, challengeHashes)
	require.NoError(t, err)
	require.Len(t, responseTree.Leaves, len(c.Gates))

	require.False(t, challengeTree.OutputKey.IsEqual(responseTree.OutputKey))
}

func TestBuildChallengeAddressRejectsHashCountMismatch(t *testing.T) {
	verifierPK := newKey(t)
	c := simpleCircuit(t)
	_, err := chainscript.BuildChallengeAddress(c, verifierPK, nil)
	require.Error(t, err)
}

func TestBuildEquivocationAndResponseSecondAddresses(t *testing.T) {
	proverPK, verifierPK := newKey(t), newKey(t)
	c := simpleCircuit(t)

	equivocationTree, err := chainscript.BuildEquivocationAddress(c, proverPK, verifierPK, chainscript.DefaultTimelockBlocks)
	require.NoError(t, err)
	// one anti-contradiction leaf per wire, plus the prover timelock and
	// the cosign leaf.
	require.Len(t, equivocationTree.Leaves, len(c.Wires)+2)

	responseSecondTree, err := chainscript.BuildResponseSecondAddress(proverPK, verifierPK, chainscript.DefaultTimelockBlocks)
	require.NoError(t, err)
	// only the verifier timelock and the cosign leaf — no anti-contradiction
	// leaves, since slashing only ever targets equivocation_addr.
	require.Len(t, responseSecondTree.Leaves, 2)

	require.False(t, equivocationTree.OutputKey.IsEqual(responseSecondTree.OutputKey))
}

// spendLeaf builds a single-input, single-output transaction spending a
// script-tree output through leafIndex with the given witness stack (the
// leaf script and control block are appended automatically), and runs the
// real script interpreter against it the way a full node would, following
// the teacher's txscript.NewEngine/.Execute() idiom rather than asserting
// on disassembled opcodes.
func spendLeaf(t *testing.T, tree *chainscript.ScriptTree, leafIndex int, sequence uint32, buildWitness func(sigHash []byte) [][]byte) error {
	t.Helper()

	pkScript, err := tree.PkScript()
	require.NoError(t, err)

	op := btcwire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}
	prevOut := btcwire.NewTxOut(100_000, pkScript)

	tx := btcwire.NewMsgTx(2)
	txIn := btcwire.NewTxIn(&op, nil, nil)
	txIn.Sequence = sequence
	tx.AddTxIn(txIn)
	tx.AddTxOut(btcwire.NewTxOut(90_000, pkScript))

	fetcher, err := txgraph.PrevOutFetcher([]btcwire.OutPoint{op}, []*btcwire.TxOut{prevOut})
	require.NoError(t, err)

	leafScript := tree.Leaves[leafIndex]
	sigHash, err := txgraph.ScriptPathSigHash(tx, 0, fetcher, leafScript)
	require.NoError(t, err)

	controlBlock, err := tree.ControlBlock(leafIndex)
	require.NoError(t, err)

	witness := buildWitness(sigHash)
	tx.TxIn[0].Witness = append(btcwire.TxWitness{}, append(witness, leafScript, controlBlock)...)

	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	vm, err := txscript.NewEngine(pkScript, tx, 0, txscript.StandardVerifyFlags, nil, sigHashes, prevOut.Value, fetcher)
	require.NoError(t, err)
	return vm.Execute()
}

func TestChallengeLeafScriptExecution(t *testing.T) {
	verifierPriv, verifierPK := newKeyPair(t)

	var preimage wire.Hash
	preimage[0] = 0x42
	hash := wire.Hash(sha256.Sum256(preimage[:]))

	leaf, err := chainscript.ChallengeLeafScript(hash, verifierPK)
	require.NoError(t, err)
	other, err := chainscript.CoSignLeafScript(verifierPK, verifierPK)
	require.NoError(t, err)
	tree, err := chainscript.BuildScriptTree([][]byte{leaf, other})
	require.NoError(t, err)

	err = spendLeaf(t, tree, 0, btcwire.MaxTxInSequenceNum, func(sigHash []byte) [][]byte {
		sig, err := schnorr.Sign(verifierPriv, sigHash)
		require.NoError(t, err)
		return [][]byte{sig.Serialize(), preimage[:]}
	})
	require.NoError(t, err, "valid verifier reveal must satisfy the challenge leaf")

	err = spendLeaf(t, tree, 0, btcwire.MaxTxInSequenceNum, func(sigHash []byte) [][]byte {
		sig, err := schnorr.Sign(verifierPriv, sigHash)
		require.NoError(t, err)
		wrong := preimage
		wrong[1] ^= 0xff
		return [][]byte{sig.Serialize(), wrong[:]}
	})
	require.Error(t, err, "a preimage that does not hash to the committed value must be rejected")
}

func TestGateResponseLeafScriptExecution(t *testing.T) {
	proverPriv, proverPK := newKeyPair(t)
	c := simpleCircuit(t)
	g := c.Gates[0]

	in := g.InputWires()
	for i, w := range in {
		w.SetSelector(i%2 == 0)
	}
	require.NoError(t, g.Evaluate())

	var preimage wire.Hash
	preimage[0] = 0x7
	hash := wire.Hash(sha256.Sum256(preimage[:]))

	leaf, err := chainscript.GateResponseLeafScript(g, hash, proverPK)
	require.NoError(t, err)
	other, err := chainscript.CoSignLeafScript(proverPK, proverPK)
	require.NoError(t, err)
	tree, err := chainscript.BuildScriptTree([][]byte{leaf, other})
	require.NoError(t, err)

	err = spendLeaf(t, tree, 0, btcwire.MaxTxInSequenceNum, func(sigHash []byte) [][]byte {
		sig, err := schnorr.Sign(proverPriv, sigHash)
		require.NoError(t, err)
		witness, err := g.ResponseWitness(preimage, sig.Serialize())
		require.NoError(t, err)
		return witness
	})
	require.NoError(t, err, "a correctly evaluated gate must satisfy its own response leaf")
}

func TestAntiContradictionLeafScriptExecution(t *testing.T) {
	verifierPriv, verifierPK := newKeyPair(t)
	w, err := wire.New(0)
	require.NoError(t, err)

	leaf, err := w.AntiContradictionScript(verifierPK)
	require.NoError(t, err)
	other, err := chainscript.CoSignLeafScript(verifierPK, verifierPK)
	require.NoError(t, err)
	tree, err := chainscript.BuildScriptTree([][]byte{leaf, other})
	require.NoError(t, err)

	p0, _ := w.Preimage(false)
	p1, _ := w.Preimage(true)

	err = spendLeaf(t, tree, 0, btcwire.MaxTxInSequenceNum, func(sigHash []byte) [][]byte {
		sig, err := schnorr.Sign(verifierPriv, sigHash)
		require.NoError(t, err)
		return [][]byte{sig.Serialize(), p1[:], p0[:]}
	})
	require.NoError(t, err, "both genuine preimages must satisfy the equivocation leaf")

	err = spendLeaf(t, tree, 0, btcwire.MaxTxInSequenceNum, func(sigHash []byte) [][]byte {
		sig, err := schnorr.Sign(verifierPriv, sigHash)
		require.NoError(t, err)
		var bogus wire.Hash
		bogus[0] = 0xee
		return [][]byte{sig.Serialize(), p1[:], bogus[:]}
	})
	require.Error(t, err, "a preimage matching neither commitment must be rejected")
}

func TestCoSignLeafScriptExecution(t *testing.T) {
	proverPriv, proverPK := newKeyPair(t)
	verifierPriv, verifierPK := newKeyPair(t)

	leaf, err := chainscript.CoSignLeafScript(proverPK, verifierPK)
	require.NoError(t, err)
	timelock, err := chainscript.TimelockLeafScript(proverPK, 5)
	require.NoError(t, err)
	tree, err := chainscript.BuildScriptTree([][]byte{leaf, timelock})
	require.NoError(t, err)

	err = spendLeaf(t, tree, 0, btcwire.MaxTxInSequenceNum, func(sigHash []byte) [][]byte {
		proverSig, err := schnorr.Sign(proverPriv, sigHash)
		require.NoError(t, err)
		verifierSig, err := schnorr.Sign(verifierPriv, sigHash)
		require.NoError(t, err)
		return [][]byte{verifierSig.Serialize(), proverSig.Serialize()}
	})
	require.NoError(t, err, "both signatures present must satisfy the 2-of-2")

	err = spendLeaf(t, tree, 0, btcwire.MaxTxInSequenceNum, func(sigHash []byte) [][]byte {
		proverSig, err := schnorr.Sign(proverPriv, sigHash)
		require.NoError(t, err)
		return [][]byte{nil, proverSig.Serialize()}
	})
	require.Error(t, err, "a missing verifier signature must fail the 2-of-2")
}

func TestTimelockLeafScriptExecution(t *testing.T) {
	priv, pk := newKeyPair(t)
	leaf, err := chainscript.TimelockLeafScript(pk, 10)
	require.NoError(t, err)
	other, err := chainscript.CoSignLeafScript(pk, pk)
	require.NoError(t, err)
	tree, err := chainscript.BuildScriptTree([][]byte{leaf, other})
	require.NoError(t, err)

	err = spendLeaf(t, tree, 0, 10, func(sigHash []byte) [][]byte {
		sig, err := schnorr.Sign(priv, sigHash)
		require.NoError(t, err)
		return [][]byte{sig.Serialize()}
	})
	require.NoError(t, err, "a sequence at least the timelock delta must satisfy the leaf")

	err = spendLeaf(t, tree, 0, 3, func(sigHash []byte) [][]byte {
		sig, err := schnorr.Sign(priv, sigHash)
		require.NoError(t, err)
		return [][]byte{sig.Serialize()}
	})
	require.Error(t, err, "a sequence below the timelock delta must be rejected")
}
