package chainscript

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/bitvm-labs/bitvmd/circuit"
	"github.com/bitvm-labs/bitvmd/wire"
)

// DefaultTimelockBlocks is the relative CSV delay on every timelock
// fallback leaf, used where a caller has no session-specific value. The
// reference protocol uses one fixed delta for both actors rather than
// negotiating separate Prover/Verifier deltas.
const DefaultTimelockBlocks = 10

// BuildChallengeAddress assembles challenge_addr_r, challenge_r's dust
// output: one leaf per gate letting the Verifier alone pick which gate it
// disputes by revealing that gate's challenge preimage and signing. No
// Prover signature is required on any leaf here, so the Verifier can
// always move the dispute forward without the Prover's cooperation.
func BuildChallengeAddress(c *circuit.Circuit, verifierPK *btcec.PublicKey, challengeHashes []wire.Hash) (*ScriptTree, error) {
	if len(challengeHashes) != len(c.Gates) {
		return nil, fmt.Errorf("chainscript: need %d challenge hashes, got %d", len(c.Gates), len(challengeHashes))
	}

	leaves := make([][]byte, 0, len(c.Gates))
	for i, h := range challengeHashes {
		script, err := ChallengeLeafScript(h, verifierPK)
		if err != nil {
			return nil, fmt.Errorf("chainscript: gate %d challenge leaf: %w", i, err)
		}
		leaves = append(leaves, script)
	}

	return BuildScriptTree(leaves)
}

// BuildResponseAddress assembles response_addr_r, response_r's dust
// output: one leaf per gate letting the Prover alone answer the rung's
// accused gate by revealing every wire preimage it touches and signing.
func BuildResponseAddress(c *circuit.Circuit, proverPK *btcec.PublicKey, challengeHashes []wire.Hash) (*ScriptTree, error) {
	if len(challengeHashes) != len(c.Gates) {
		return nil, fmt.Errorf("chainscript: need %d challenge hashes, got %d", len(c.Gates), len(challengeHashes))
	}

	leaves := make([][]byte, 0, len(c.Gates))
	for i, h := range challengeHashes {
		script, err := GateResponseLeafScript(c.Gates[i], h, proverPK)
		if err != nil {
			return nil, fmt.Errorf("chainscript: gate %d response leaf: %w", i, err)
		}
		leaves = append(leaves, script)
	}

	return BuildScriptTree(leaves)
}

// BuildEquivocationAddress assembles equivocation_addr, challenge_r's
// remainder output: one anti-contradiction leaf per wire letting the
// Verifier slash a Prover caught revealing both preimages of the same
// wire, a Prover timelock letting the Prover reclaim the stake if the
// Verifier never spends it, and the cooperative 2-of-2 letting both
// actors jointly advance the ladder. This tree is fixed for the life of a
// session and reused at every rung.
func BuildEquivocationAddress(c *circuit.Circuit, proverPK, verifierPK *btcec.PublicKey, proverTimelockBlocks uint32) (*ScriptTree, error) {
	leaves := make([][]byte, 0, len(c.Wires)+2)
	for i, w := range c.Wires {
		script, err := AntiContradictionLeafScript(w, verifierPK)
		if err != nil {
			return nil, fmt.Errorf("chainscript: wire %d anti-contradiction leaf: %w", i, err)
		}
		leaves = append(leaves, script)
	}
	timelock, err := TimelockLeafScript(proverPK, proverTimelockBlocks)
	if err != nil {
		return nil, fmt.Errorf("chainscript: prover timelock leaf: %w", err)
	}
	leaves = append(leaves, timelock)
	cosign, err := CoSignLeafScript(proverPK, verifierPK)
	if err != nil {
		return nil, fmt.Errorf("chainscript: cosign leaf: %w", err)
	}
	leaves = append(leaves, cosign)

	return BuildScriptTree(leaves)
}

// BuildResponseSecondAddress assembles response_second_addr, response_r's
// remainder output: a Verifier timelock letting the Verifier reclaim the
// stake if the Prover never spends it, and the cooperative 2-of-2 letting
// both actors jointly advance the ladder. Unlike equivocation_addr, this
// tree carries no anti-contradiction leaves — slashing only ever targets
// challenge_r's remainder, never response_r's. This tree is fixed for the
// life of a session and reused at every rung.
func BuildResponseSecondAddress(proverPK, verifierPK *btcec.PublicKey, verifierTimelockBlocks uint32) (*ScriptTree, error) {
	timelock, err := TimelockLeafScript(verifierPK, verifierTimelockBlocks)
	if err != nil {
		return nil, fmt.Errorf("chainscript: verifier timelock leaf: %w", err)
	}
	cosign, err := CoSignLeafScript(proverPK, verifierPK)
	if err != nil {
		return nil, fmt.Errorf("chainscript: cosign leaf: %w", err)
	}

	return BuildScriptTree([][]byte{timelock, cosign})
}
