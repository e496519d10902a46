// Package chainscript builds the Taproot script trees and leaf scripts a
// bisection rung settles on: the challenge leaf, the per-gate response
// leaf, the anti-contradiction leaf, the cooperative 2-of-2 leaf, and the
// timelock fallback leaf, assembled into a single P2TR output per the
// fixed nothing-up-my-sleeve internal key.
package chainscript

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/bitvm-labs/bitvmd/bitutil"
	"github.com/bitvm-labs/bitvmd/gate"
	"github.com/bitvm-labs/bitvmd/wire"
)

// NUMSInternalKeyHex is the nothing-up-my-sleeve x-only public key used as
// the Taproot internal key for every script-path-only output this package
// builds: nobody knows its discrete log, so the key-path spend is
// provably unusable and every coin can only move through a revealed
// script leaf.
const NUMSInternalKeyHex = "93c7378d96518a75448821c4f7c8f4bae7ce60f804d03d1f0628dd5dd0f5de51"

// NUMSInternalKey parses NUMSInternalKeyHex into a public key. It panics on
// failure since the constant is fixed at compile time and must always
// parse; a failure here means the constant itself is broken.
func NUMSInternalKey() *btcec.PublicKey {
	raw, err := bitutil.HexToBytes(NUMSInternalKeyHex, 32)
	if err != nil {
		panic(fmt.Sprintf("chainscript: bad NUMS key constant: %v", err))
	}
	pk, err := schnorr.ParsePubKey(raw)
	if err != nil {
		panic(fmt.Sprintf("chainscript: NUMS key does not parse: %v", err))
	}
	return pk
}

// ChallengeLeafScript builds one leaf of challenge_addr_r: the Verifier
// alone reveals the preimage of this rung's challenge hash and signs,
// unilaterally picking which gate the Prover must answer for. No Prover
// signature is required here — that is the whole point of the leaf: the
// Verifier can narrow the dispute without the Prover's cooperation.
func ChallengeLeafScript(challengeHash wire.Hash, verifierPK *btcec.PublicKey) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_SHA256)
	b.AddData(challengeHash[:])
	b.AddOp(txscript.OP_EQUALVERIFY)
	b.AddData(schnorr.SerializePubKey(verifierPK))
	b.AddOp(txscript.OP_CHECKSIG)
	return b.Script()
}

// GateResponseLeafScript is the per-gate leaf of response_addr_r, response_r's
// dust output: it
// delegates to the gate's own response script, the one a Prover satisfies
// by revealing every wire preimage the gate touches plus its signature.
func GateResponseLeafScript(g *gate.Gate, challengeHash wire.Hash, proverPK *btcec.PublicKey) ([]byte, error) {
	return g.ResponseScript(challengeHash, proverPK)
}

// AntiContradictionLeafScript is the leaf a Verifier spends to slash a
// Prover caught revealing both preimages of the same wire.
func AntiContradictionLeafScript(w *wire.Wire, verifierPK *btcec.PublicKey) ([]byte, error) {
	return w.AntiContradictionScript(verifierPK)
}

// CoSignLeafScript is a plain 2-of-2 requiring both actors' signatures,
// the cooperative leaf of equivocation_addr and response_second_addr that
// the pre-signed ladder spends move through.
func CoSignLeafScript(firstPK, secondPK *btcec.PublicKey) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddData(schnorr.SerializePubKey(firstPK))
	b.AddOp(txscript.OP_CHECKSIGVERIFY)
	b.AddData(schnorr.SerializePubKey(secondPK))
	b.AddOp(txscript.OP_CHECKSIG)
	return b.Script()
}

// TimelockLeafScript lets actorPK reclaim the output alone once
// blocks relative blocks have passed since confirmation, the fallback
// path when the counterparty goes silent mid-protocol.
func TimelockLeafScript(actorPK *btcec.PublicKey, blocks uint32) ([]byte, error) {
	if blocks == 0 || blocks > 0xffff {
		return nil, fmt.Errorf("chainscript: timelock block count %d out of CSV range", blocks)
	}
	b := txscript.NewScriptBuilder()
	b.AddInt64(int64(blocks))
	b.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	b.AddOp(txscript.OP_DROP)
	b.AddData(schnorr.SerializePubKey(actorPK))
	b.AddOp(txscript.OP_CHECKSIG)
	return b.Script()
}

// ScriptTree is a Taproot output assembled from an ordered list of leaf
// scripts under the fixed NUMS internal key, along with everything needed
// to spend any one of those leaves.
type ScriptTree struct {
	InternalKey *btcec.PublicKey
	OutputKey   *btcec.PublicKey
	Leaves      [][]byte
	tree        *txscript.IndexedTapScriptTree
}

// BuildScriptTree assembles leaves into a single Taproot output. The tree
// shape is btcd's standard script-tree assembly: leaves are paired in
// order (an odd last leaf joins the last pair's branch) and the branches
// are then merged in queue order; a single leaf is the root itself. Leaf
// depths do not follow an m=ceil(log2 n), k=2^m-n placement: with five
// leaves, leaves 0, 1 and 4 sit at depth 2 and leaves 2 and 3 at depth 3.
func BuildScriptTree(leaves [][]byte) (*ScriptTree, error) {
	if len(leaves) == 0 {
		return nil, fmt.Errorf("chainscript: need at least one leaf")
	}
	tapLeaves := make([]txscript.TapLeaf, len(leaves))
	for i, script := range leaves {
		tapLeaves[i] = txscript.NewBaseTapLeaf(script)
	}
	tree := txscript.AssembleTaprootScriptTree(tapLeaves...)
	root := tree.RootNode.TapHash()

	internalKey := NUMSInternalKey()
	outputKey := txscript.ComputeTaprootOutputKey(internalKey, root[:])

	log.Debugf("assembled script tree with %d leaves, output key %x",
		len(leaves), schnorr.SerializePubKey(outputKey))

	return &ScriptTree{
		InternalKey: internalKey,
		OutputKey:   outputKey,
		Leaves:      leaves,
		tree:        tree,
	}, nil
}

// Address returns the bech32m P2TR address for this script tree on the
// given network.
func (t *ScriptTree) Address(net *chaincfg.Params) (*btcutil.AddressTaproot, error) {
	return btcutil.NewAddressTaproot(schnorr.SerializePubKey(t.OutputKey), net)
}

// PkScript returns the P2TR scriptPubKey (OP_1 <32-byte-x-only-key>).
func (t *ScriptTree) PkScript() ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_1)
	b.AddData(schnorr.SerializePubKey(t.OutputKey))
	return b.Script()
}

// ControlBlock returns the control block proving leaf index leafIndex is
// part of this tree, the third witness element a script-path spend needs
// alongside the leaf script and its own satisfying witness.
func (t *ScriptTree) ControlBlock(leafIndex int) ([]byte, error) {
	if leafIndex < 0 || leafIndex >= len(t.Leaves) {
		return nil, fmt.Errorf("chainscript: leaf index %d out of range [0,%d)", leafIndex, len(t.Leaves))
	}
	cb := t.tree.LeafMerkleProofs[leafIndex].ToControlBlock(t.InternalKey)
	return cb.ToBytes()
}
