package session

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	btcwire "github.com/btcsuite/btcd/wire"

	"github.com/bitvm-labs/bitvmd/actor"
	"github.com/bitvm-labs/bitvmd/gate"
	"github.com/bitvm-labs/bitvmd/txgraph"
	"github.com/bitvm-labs/bitvmd/watcher"
	bitvmwire "github.com/bitvm-labs/bitvmd/wire"
)

// gateChallenge records which gate the Verifier challenged at a rung and
// the challenge preimage that identifies it, learned either by revealing
// it directly (Verifier) or by extracting it from the confirmed response
// transaction's witness (Prover).
type gateChallenge struct {
	GateIndex int
	Preimage  bitvmwire.Hash
}

// runDisputeLoop walks every pre-signed rung in order. At each rung the
// Verifier reveals which gate it disputes by unilaterally spending that
// gate's challenge leaf into response_r; the Prover has no transport
// message to wait on and instead extracts the same information from the
// confirmed transaction's witness. Short of the final rung, the Prover
// then answers on chain by spending the accused gate's response leaf to
// advance the ladder, which is also where the revealed wire preimages are
// checked for equivocation against every earlier rung's answers.
func (s *Session) runDisputeLoop() error {
	for r, rung := range s.Ladder.Rungs {
		var challenge gateChallenge
		var err error
		if s.Role == RoleVerifier {
			challenge, err = s.revealChallenge(r, rung)
		} else {
			challenge, err = s.extractChallenge(r, rung)
		}
		if err != nil {
			return err
		}
		s.challenges = append(s.challenges, challenge)

		if r+1 < len(s.Ladder.Rungs) {
			if err := s.advanceLadder(r, challenge); err != nil {
				return err
			}
		}

		log.Infof("%s: rung %d resolved", s.Role, r)
	}
	return nil
}

// revealChallenge has the Verifier pick the gate to dispute at rung r — a
// fixed round-robin over the circuit's gates exercises every gate across a
// session of L >= len(Gates) rungs — and broadcast response_r: input 0
// unilaterally spends challenge_addr_r's leaf for that gate, revealing the
// preimage behind the chosen hash with only the Verifier's own signature;
// input 1 spends the pre-signed equivocation_addr cosign leaf. No Prover
// cooperation or transport round-trip is needed to place this on chain.
func (s *Session) revealChallenge(r int, rung *txgraph.Rung) (gateChallenge, error) {
	gateIndex := r % len(s.Circuit.Gates)
	preimage, ok := s.Actor.Store.IssuedChallenge(actor.ChallengeKey{Rung: r, GateIndex: gateIndex})
	if !ok {
		return gateChallenge{}, NewRungError(BadMessage, r, fmt.Errorf("no issued preimage for gate %d", gateIndex))
	}

	fetcher, err := prevRungFetcher(rung.ChallengeTx)
	if err != nil {
		return gateChallenge{}, NewRungError(BadMessage, r, err)
	}

	challengeLeaf := s.challengeAddrs[r].Leaves[gateIndex]
	sigHash, err := txgraph.ScriptPathSigHash(rung.ResponseTx, 0, fetcher, challengeLeaf)
	if err != nil {
		return gateChallenge{}, NewRungError(SighashMismatch, r, err)
	}
	sig, err := s.Actor.SignLeaf(sigHash)
	if err != nil {
		return gateChallenge{}, NewRungError(SignatureInvalid, r, err)
	}
	challengeControlBlock, err := s.challengeAddrs[r].ControlBlock(gateIndex)
	if err != nil {
		return gateChallenge{}, NewRungError(BadMessage, r, err)
	}
	rung.ResponseTx.TxIn[0].Witness = btcwire.TxWitness{
		sig.Serialize(),
		preimage[:],
		challengeLeaf,
		challengeControlBlock,
	}

	pair, ok := s.cosigs[cosignKey("response", r)]
	if !ok {
		return gateChallenge{}, NewRungError(BadMessage, r, fmt.Errorf("missing pre-signed cosign for response rung %d", r))
	}
	equivControlBlock, err := s.equivocationTree.ControlBlock(len(s.equivocationTree.Leaves) - 1)
	if err != nil {
		return gateChallenge{}, NewRungError(BadMessage, r, err)
	}
	rung.ResponseTx.TxIn[1].Witness = btcwire.TxWitness{
		pair.Verifier.Serialize(),
		pair.Prover.Serialize(),
		s.cosignLeafScript,
		equivControlBlock,
	}

	txid, err := s.Chain.Broadcast(rung.ResponseTx)
	if err != nil {
		return gateChallenge{}, NewRungError(ChainUnavailable, r, fmt.Errorf("broadcasting response: %w", err))
	}
	log.Infof("verifier: broadcast response for rung %d, challenging gate %d: %s", r, gateIndex, txid)
	return gateChallenge{GateIndex: gateIndex, Preimage: preimage}, nil
}

// extractChallenge has the Prover watch for response_r's deterministic
// txid — both sides already hold byte-identical unsigned copies of it from
// ladder setup, since Taproot txids exclude witness data — and, once
// confirmed, read the preimage the Verifier revealed at witness index 1 of
// its first input. The preimage is matched back against the rung's
// challenge hash table to recover which gate was picked.
func (s *Session) extractChallenge(r int, rung *txgraph.Rung) (gateChallenge, error) {
	confirmed, err := s.Watcher.WaitForTx(context.Background(), rung.ResponseTx.TxHash())
	if err != nil {
		return gateChallenge{}, NewRungError(ChainUnavailable, r, fmt.Errorf("waiting for response: %w", err))
	}

	witness := confirmed.TxIn[0].Witness
	if len(witness) < 2 {
		return gateChallenge{}, NewRungError(BadMessage, r, fmt.Errorf("response witness carries %d items, want at least 2", len(witness)))
	}
	var preimage bitvmwire.Hash
	copy(preimage[:], witness[1])

	hash := bitvmwire.Hash(sha256.Sum256(preimage[:]))
	gateIndex := -1
	for i, h := range s.challengeHashes[r] {
		if hash == h {
			gateIndex = i
			break
		}
	}
	if gateIndex < 0 {
		return gateChallenge{}, NewRungError(BadMessage, r, fmt.Errorf("revealed preimage at rung %d matches no challenge hash", r))
	}

	log.Infof("prover: observed challenge for gate %d at rung %d", gateIndex, r)
	return gateChallenge{GateIndex: gateIndex, Preimage: preimage}, nil
}

// advanceLadder has the Prover answer the gate challenge extends: it
// spends response_r's accused-gate leaf with a gate response witness
// exposing every wire preimage the gate touches, together with the
// pre-signed response_second_addr cosign leaf, to produce and broadcast
// challenge_{r+1}. The Verifier, having no witness data of its own to
// build, instead watches for that same deterministic txid. Either way,
// once challenge_{r+1} is in hand its revealed preimages are fed through
// checkEquivocation before the next rung's dispute begins.
func (s *Session) advanceLadder(r int, challenge gateChallenge) error {
	cur := s.Ladder.Rungs[r]
	next := s.Ladder.Rungs[r+1]

	if s.Role == RoleProver {
		g := s.Circuit.Gates[challenge.GateIndex]

		fetcher, err := prevRungFetcher(cur.ResponseTx)
		if err != nil {
			return NewRungError(BadMessage, r, err)
		}

		responseLeaf := s.responseAddrs[r].Leaves[challenge.GateIndex]
		sigHash, err := txgraph.ScriptPathSigHash(next.ChallengeTx, 0, fetcher, responseLeaf)
		if err != nil {
			return NewRungError(SighashMismatch, r, err)
		}
		sig, err := s.Actor.SignLeaf(sigHash)
		if err != nil {
			return NewRungError(SignatureInvalid, r, err)
		}
		witness, err := g.ResponseWitness(challenge.Preimage, sig.Serialize())
		if err != nil {
			return NewRungError(ScriptExecutionFailed, r, fmt.Errorf("building gate response witness: %w", err))
		}
		responseControlBlock, err := s.responseAddrs[r].ControlBlock(challenge.GateIndex)
		if err != nil {
			return NewRungError(BadMessage, r, err)
		}
		next.ChallengeTx.TxIn[0].Witness = append(btcwire.TxWitness{}, append(witness, responseLeaf, responseControlBlock)...)

		pair, ok := s.cosigs[cosignKey("challenge", r+1)]
		if !ok {
			return NewRungError(BadMessage, r+1, fmt.Errorf("missing pre-signed cosign for challenge rung %d", r+1))
		}
		secondControlBlock, err := s.responseSecondTree.ControlBlock(len(s.responseSecondTree.Leaves) - 1)
		if err != nil {
			return NewRungError(BadMessage, r+1, err)
		}
		next.ChallengeTx.TxIn[1].Witness = btcwire.TxWitness{
			pair.Verifier.Serialize(),
			pair.Prover.Serialize(),
			s.cosignLeafScript,
			secondControlBlock,
		}

		txid, err := s.Chain.Broadcast(next.ChallengeTx)
		if err != nil {
			return NewRungError(ChainUnavailable, r+1, fmt.Errorf("broadcasting rung %d: %w", r+1, err))
		}
		log.Infof("prover: advanced to rung %d, answering gate %d: %s", r+1, challenge.GateIndex, txid)

		return s.checkEquivocation(r, challenge.GateIndex, cur, next.ChallengeTx)
	}

	confirmed, err := s.Watcher.WaitForTx(context.Background(), next.ChallengeTx.TxHash())
	if err != nil {
		return NewRungError(ChainUnavailable, r+1, err)
	}
	log.Infof("verifier: observed rung %d", r+1)

	return s.checkEquivocation(r, challenge.GateIndex, cur, confirmed)
}

// checkEquivocation extracts the wire preimages challenge_{r+1}'s gate
// response input exposes and feeds each into its wire's AddPreimage, the
// single point that detects a Prover contradicting itself across rungs.
// On the Verifier side, a caught contradiction is immediately worth
// cashing in: it spends cur's equivocation output for that wire before
// surfacing the Equivocation error. The ladder's last rung never answers
// on chain — there is no challenge beyond it to carry the reveal — so its
// gate response is never checked here.
func (s *Session) checkEquivocation(r, gateIndex int, cur *txgraph.Rung, confirmed *btcwire.MsgTx) error {
	g := s.Circuit.Gates[gateIndex]
	offsets, wires := gateWitnessOffsets(g)

	preimages, err := watcher.ExtractPreimages(confirmed, 0, offsets)
	if err != nil {
		return NewRungError(BadMessage, r, err)
	}

	for off, w := range wires {
		preimage, ok := preimages[off]
		if !ok {
			continue
		}
		if err := w.AddPreimage(preimage); err != nil {
			if equiv, ok := err.(*bitvmwire.EquivocationError); ok {
				log.Warnf("%s: equivocation on wire %d at rung %d", s.Role, equiv.Index, r)
				if s.Role == RoleVerifier {
					if slashErr := s.slashWire(r, cur, equiv); slashErr != nil {
						log.Errorf("verifier: slashing wire %d failed: %v", equiv.Index, slashErr)
					}
				}
				return NewRungError(Equivocation, r, fmt.Errorf("wire %d: %w", equiv.Index, err))
			}
			// ErrAlreadyCommitted is expected once the same preimage has
			// already been observed through an earlier rung's answer.
		}
	}
	return nil
}

// slashWire spends cur's equivocation output through the
// anti-contradiction leaf for the equivocating wire, paying the stake to
// the Verifier's own address. Every rung's challenge transaction opens the
// same wire-indexed equivocation_addr, so cur pins which confirmed output
// actually holds the funds at stake for this contradiction.
func (s *Session) slashWire(r int, cur *txgraph.Rung, equiv *bitvmwire.EquivocationError) error {
	fetcher, err := prevRungFetcher(cur.ChallengeTx)
	if err != nil {
		return NewRungError(BadMessage, r, err)
	}

	leafIndex := int(equiv.Index)
	leaf := s.equivocationTree.Leaves[leafIndex]
	remainderOut := cur.ChallengeTx.TxOut[1]

	slashTx := btcwire.NewMsgTx(btcwire.TxVersion)
	slashTx.AddTxIn(btcwire.NewTxIn(&btcwire.OutPoint{Hash: cur.ChallengeTx.TxHash(), Index: 1}, nil, nil))

	payout := remainderOut.Value - s.Config.Params.FeeSat
	if payout <= 0 {
		return NewRungError(BadMessage, r, fmt.Errorf("remainder value %d too small to cover fee %d", remainderOut.Value, s.Config.Params.FeeSat))
	}
	payScript, err := txscript.PayToAddrScript(s.Actor.Address())
	if err != nil {
		return NewRungError(BadMessage, r, err)
	}
	slashTx.AddTxOut(btcwire.NewTxOut(payout, payScript))

	sigHash, err := txgraph.ScriptPathSigHash(slashTx, 0, fetcher, leaf)
	if err != nil {
		return NewRungError(SighashMismatch, r, err)
	}
	sig, err := s.Actor.SignLeaf(sigHash)
	if err != nil {
		return NewRungError(SignatureInvalid, r, err)
	}
	controlBlock, err := s.equivocationTree.ControlBlock(leafIndex)
	if err != nil {
		return NewRungError(BadMessage, r, err)
	}
	slashTx.TxIn[0].Witness = btcwire.TxWitness{
		sig.Serialize(),
		equiv.Preimages[1][:],
		equiv.Preimages[0][:],
		leaf,
		controlBlock,
	}

	txid, err := s.Chain.Broadcast(slashTx)
	if err != nil {
		return NewRungError(ChainUnavailable, r, fmt.Errorf("broadcasting slash of wire %d: %w", leafIndex, err))
	}
	log.Infof("verifier: slashed wire %d at rung %d: %s", leafIndex, r, txid)
	return nil
}

// gateWitnessOffsets returns, for a gate's response witness layout
// ([sig, challenge_preimage, in_last..in_0, out_last..out_0]), the witness
// offsets carrying wire preimages and the wire each one belongs to.
func gateWitnessOffsets(g *gate.Gate) ([]int, map[int]*bitvmwire.Wire) {
	in := g.InputWires()
	out := g.OutputWires()
	offsets := make([]int, 0, len(in)+len(out))
	wires := make(map[int]*bitvmwire.Wire, len(in)+len(out))

	off := 2
	for i := len(in) - 1; i >= 0; i-- {
		offsets = append(offsets, off)
		wires[off] = in[i]
		off++
	}
	for i := len(out) - 1; i >= 0; i-- {
		offsets = append(offsets, off)
		wires[off] = out[i]
		off++
	}
	return offsets, wires
}
