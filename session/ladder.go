package session

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	btcwire "github.com/btcsuite/btcd/wire"

	"github.com/bitvm-labs/bitvmd/actor"
	"github.com/bitvm-labs/bitvmd/chainscript"
	"github.com/bitvm-labs/bitvmd/txgraph"
	bitvmwire "github.com/bitvm-labs/bitvmd/wire"
)

// cosignPair holds both actors' signatures over the same script-path
// sighash, the shape whichever side ends up broadcasting a cooperative
// spend needs regardless of which side originally produced it.
type cosignPair struct {
	Prover   *schnorr.Signature
	Verifier *schnorr.Signature
}

// runLadderSetup builds the two fixed remainder trees once — equivocation_addr,
// which backs every challenge_r's remainder output and lets the Verifier slash
// a Prover caught equivocating, and response_second_addr, which backs every
// response_r's remainder output and carries no slashing leaves of its own —
// then for each of Config.BisectionLength rungs: the Verifier samples one
// challenge preimage per gate and sends the hashes, both sides derive that
// rung's challenge/response addresses and extend the ladder with them, and
// the two actors exchange and verify the pre-signatures that let the ladder
// be walked forward later without either side's cooperation being optional.
func (s *Session) runLadderSetup() error {
	equivocationTree, err := chainscript.BuildEquivocationAddress(s.Circuit, s.proverPK(), s.verifierPK(), s.Config.TimelockBlocks)
	if err != nil {
		return NewError(BadMessage, fmt.Errorf("building equivocation address: %w", err))
	}
	equivocationPkScript, err := equivocationTree.PkScript()
	if err != nil {
		return NewError(BadMessage, err)
	}
	responseSecondTree, err := chainscript.BuildResponseSecondAddress(s.proverPK(), s.verifierPK(), s.Config.TimelockBlocks)
	if err != nil {
		return NewError(BadMessage, fmt.Errorf("building response-second address: %w", err))
	}
	responseSecondPkScript, err := responseSecondTree.PkScript()
	if err != nil {
		return NewError(BadMessage, err)
	}
	cosign, err := chainscript.CoSignLeafScript(s.proverPK(), s.verifierPK())
	if err != nil {
		return NewError(BadMessage, fmt.Errorf("building cosign leaf: %w", err))
	}

	s.equivocationTree = equivocationTree
	s.responseSecondTree = responseSecondTree
	s.cosignLeafScript = cosign

	s.Ladder = txgraph.NewLadder(s.fundingTxid, s.fundingVout, s.Config.FundingAmount, s.Config.Params, equivocationPkScript, responseSecondPkScript)

	for r := 0; r < s.Config.BisectionLength; r++ {
		challengeHashes, err := s.exchangeChallengeHashes(r)
		if err != nil {
			return err
		}
		s.challengeHashes = append(s.challengeHashes, challengeHashes)

		challengeAddr, err := chainscript.BuildChallengeAddress(s.Circuit, s.verifierPK(), challengeHashes)
		if err != nil {
			return NewRungError(BadMessage, r, fmt.Errorf("building challenge address: %w", err))
		}
		responseAddr, err := chainscript.BuildResponseAddress(s.Circuit, s.proverPK(), challengeHashes)
		if err != nil {
			return NewRungError(BadMessage, r, fmt.Errorf("building response address: %w", err))
		}
		s.challengeAddrs = append(s.challengeAddrs, challengeAddr)
		s.responseAddrs = append(s.responseAddrs, responseAddr)

		challengePkScript, err := challengeAddr.PkScript()
		if err != nil {
			return NewRungError(BadMessage, r, err)
		}
		responsePkScript, err := responseAddr.PkScript()
		if err != nil {
			return NewRungError(BadMessage, r, err)
		}

		rung, err := s.Ladder.AppendRung(challengePkScript, responsePkScript)
		if err != nil {
			return NewRungError(ScriptExecutionFailed, r, err)
		}

		if err := s.presignRung(r, rung); err != nil {
			return err
		}

		log.Infof("%s: rung %d pre-signed", s.Role, r)
	}

	return nil
}

// exchangeChallengeHashes has the Verifier sample B=len(circuit.Gates)
// fresh preimages for rung r, record them for later accusation, and send
// their hashes; the Prover only ever sees the hashes at this point.
func (s *Session) exchangeChallengeHashes(r int) ([]bitvmwire.Hash, error) {
	if s.Role == RoleVerifier {
		hashes := make([]bitvmwire.Hash, len(s.Circuit.Gates))
		for i := range s.Circuit.Gates {
			var preimage bitvmwire.Hash
			if _, err := rand.Read(preimage[:]); err != nil {
				return nil, NewRungError(ChainUnavailable, r, err)
			}
			hashes[i] = sha256.Sum256(preimage[:])
			s.Actor.Store.RecordIssuedChallenge(actor.ChallengeKey{Rung: r, GateIndex: i}, preimage)
		}
		if err := s.Transport.Send(encodeChallengeHashes(hashes)); err != nil {
			return nil, NewRungError(BadMessage, r, err)
		}
		return hashes, nil
	}

	var msg challengeHashesMsg
	if err := s.Transport.Receive(&msg); err != nil {
		return nil, NewRungError(BadMessage, r, err)
	}
	hashes, err := msg.decode()
	if err != nil {
		return nil, NewRungError(BadMessage, r, err)
	}
	if len(hashes) != len(s.Circuit.Gates) {
		return nil, NewRungError(BadMessage, r, fmt.Errorf("expected %d challenge hashes, got %d", len(s.Circuit.Gates), len(hashes)))
	}
	return hashes, nil
}

// presignRung exchanges the pre-signatures a rung needs before the ladder
// can be walked by either side alone: both actors sign response_r's
// remainder input, and — once a previous rung exists — both sign this
// rung's own remainder input, the one that spends the previous rung's
// response output forward into this one.
func (s *Session) presignRung(r int, rung *txgraph.Rung) error {
	if r > 0 {
		prev := s.Ladder.Rungs[r-1]
		fetcher, err := prevRungFetcher(prev.ResponseTx)
		if err != nil {
			return NewRungError(BadMessage, r, err)
		}
		pair, err := s.exchangeCosign(r, "challenge", rung.ChallengeTx, 1, fetcher, s.cosignLeafScript)
		if err != nil {
			return err
		}
		s.cosigs[cosignKey("challenge", r)] = pair
	}

	fetcher, err := prevRungFetcher(rung.ChallengeTx)
	if err != nil {
		return NewRungError(BadMessage, r, err)
	}
	pair, err := s.exchangeCosign(r, "response", rung.ResponseTx, 1, fetcher, s.cosignLeafScript)
	if err != nil {
		return err
	}
	s.cosigs[cosignKey("response", r)] = pair
	return nil
}

// exchangeCosign has both actors sign the same script-path sighash and
// trade signatures, so that whichever side ends up broadcasting the
// cooperative spend later has both halves of the 2-of-2 leaf in hand.
func (s *Session) exchangeCosign(r int, label string, tx *btcwire.MsgTx, idx int, fetcher txscript.PrevOutputFetcher, leafScript []byte) (*cosignPair, error) {
	sigHash, err := txgraph.ScriptPathSigHash(tx, idx, fetcher, leafScript)
	if err != nil {
		return nil, NewRungError(SighashMismatch, r, fmt.Errorf("%s: %w", label, err))
	}

	mySig, err := s.Actor.SignLeaf(sigHash)
	if err != nil {
		return nil, NewRungError(SignatureInvalid, r, err)
	}
	if err := s.Transport.Send(encodeCosig(mySig)); err != nil {
		return nil, NewRungError(BadMessage, r, err)
	}

	var msg cosigMsg
	if err := s.Transport.Receive(&msg); err != nil {
		return nil, NewRungError(BadMessage, r, err)
	}
	peerSig, err := msg.decode()
	if err != nil {
		return nil, NewRungError(BadMessage, r, err)
	}
	if !peerSig.Verify(sigHash, s.PeerPubKey) {
		return nil, NewRungError(SignatureInvalid, r, fmt.Errorf("%s: counterparty signature does not verify", label))
	}

	pair := &cosignPair{}
	if s.Role == RoleProver {
		pair.Prover, pair.Verifier = mySig, peerSig
	} else {
		pair.Verifier, pair.Prover = mySig, peerSig
	}
	return pair, nil
}

func cosignKey(label string, r int) string {
	return fmt.Sprintf("%s-%d", label, r)
}

// prevRungFetcher builds the prevout fetcher describing the two outputs
// of a just-built rung transaction, the inputs its successor spends.
func prevRungFetcher(tx *btcwire.MsgTx) (txscript.PrevOutputFetcher, error) {
	hash := tx.TxHash()
	outpoints := []btcwire.OutPoint{
		{Hash: hash, Index: 0},
		{Hash: hash, Index: 1},
	}
	return txgraph.PrevOutFetcher(outpoints, []*btcwire.TxOut{tx.TxOut[0], tx.TxOut[1]})
}
