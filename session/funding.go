package session

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	btcwire "github.com/btcsuite/btcd/wire"

	"github.com/bitvm-labs/bitvmd/txgraph"
)

// prepareFunding fixes the outpoint every rung-0 transaction spends
// before the ladder is built: the Prover funds its own key-path-only
// address (the only signature the funding output will ever need is the
// Prover's own, for the kickoff spend) and tells the Verifier which
// output to expect. The funding transaction is already broadcast at this
// point; what is deferred to the funding phase proper is the kickoff
// spend that actually starts the bisection.
func (s *Session) prepareFunding() error {
	switch s.Role {
	case RoleProver:
		return s.proverPrepareFunding()
	default:
		return s.verifierPrepareFunding()
	}
}

func (s *Session) proverPrepareFunding() error {
	amount := btcutil.Amount(s.Config.FundingAmount)
	txid, err := s.Chain.FundAddress(s.Actor.Address(), amount)
	if err != nil {
		return NewError(ChainUnavailable, fmt.Errorf("funding own address: %w", err))
	}

	vout, err := s.findFundingVout(*txid, amount)
	if err != nil {
		return NewError(ChainUnavailable, err)
	}

	s.fundingTxid = *txid
	s.fundingVout = vout

	if err := s.Transport.Send(encodeFundingOutpoint(*txid, vout)); err != nil {
		return NewError(BadMessage, fmt.Errorf("sending funding outpoint: %w", err))
	}

	log.Infof("prover: funded %s:%d with %s", txid, vout, amount)
	return nil
}

func (s *Session) verifierPrepareFunding() error {
	var msg fundingOutpointMsg
	if err := s.Transport.Receive(&msg); err != nil {
		return NewError(BadMessage, fmt.Errorf("receiving funding outpoint: %w", err))
	}
	txid, vout, err := msg.decode()
	if err != nil {
		return NewError(BadMessage, err)
	}

	if _, err := s.Watcher.WaitForTx(context.Background(), txid); err != nil {
		return NewError(ChainUnavailable, fmt.Errorf("confirming funding tx: %w", err))
	}

	s.fundingTxid = txid
	s.fundingVout = vout
	log.Infof("verifier: observed funding at %s:%d", txid, vout)
	return nil
}

// findFundingVout locates the output FundAddress paid to the actor's own
// address, since SendToAddress only returns a txid and the wallet is
// free to order outputs (change included) however it likes.
func (s *Session) findFundingVout(txid chainhash.Hash, amount btcutil.Amount) (uint32, error) {
	tx, err := s.Chain.GetRawTransaction(&txid)
	if err != nil {
		return 0, fmt.Errorf("fetching funding tx: %w", err)
	}
	want, err := txscript.PayToAddrScript(s.Actor.Address())
	if err != nil {
		return 0, fmt.Errorf("building expected pkscript: %w", err)
	}
	for i, out := range tx.TxOut {
		if out.Value == int64(amount) && scriptsEqual(out.PkScript, want) {
			return uint32(i), nil
		}
	}
	return 0, fmt.Errorf("funding tx %s has no output matching %s to %s", txid, amount, s.Actor.Address())
}

func scriptsEqual(a, b []byte) bool {
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

// broadcastKickoff has the Prover key-path-sign and broadcast challenge_0
// — the only transaction in the ladder spent by key path rather than
// through a script leaf — and announce its txid; the Verifier simply
// waits for it to confirm, since its own copy of challenge_0 was already
// fixed during ladder setup.
func (s *Session) broadcastKickoff() error {
	rung0 := s.Ladder.Rungs[0]

	switch s.Role {
	case RoleProver:
		fetcher, err := txgraphFundingFetcher(s)
		if err != nil {
			return NewError(ChainUnavailable, err)
		}
		sigHash, err := txgraph.KeyPathSigHash(rung0.ChallengeTx, 0, fetcher)
		if err != nil {
			return NewError(SighashMismatch, err)
		}
		sig, err := s.Actor.SignKeyPath(sigHash)
		if err != nil {
			return NewError(SignatureInvalid, err)
		}
		rung0.ChallengeTx.TxIn[0].Witness = btcwire.TxWitness{sig.Serialize()}

		txid, err := s.Chain.Broadcast(rung0.ChallengeTx)
		if err != nil {
			return NewError(ChainUnavailable, fmt.Errorf("broadcasting kickoff: %w", err))
		}
		if err := s.Transport.Send(encodeKickoffTxid(*txid)); err != nil {
			return NewError(BadMessage, err)
		}
		log.Infof("prover: broadcast kickoff %s", txid)
		return nil

	default:
		var msg kickoffTxidMsg
		if err := s.Transport.Receive(&msg); err != nil {
			return NewError(BadMessage, err)
		}
		txid, err := msg.decode()
		if err != nil {
			return NewError(BadMessage, err)
		}
		if _, err := s.Watcher.WaitForTx(context.Background(), txid); err != nil {
			return NewError(ChainUnavailable, fmt.Errorf("confirming kickoff: %w", err))
		}
		log.Infof("verifier: observed kickoff %s", txid)
		return nil
	}
}

func txgraphFundingFetcher(s *Session) (txscript.PrevOutputFetcher, error) {
	amount := int64(s.Config.FundingAmount)
	pkScript, err := txscript.PayToAddrScript(s.Actor.Address())
	if err != nil {
		return nil, err
	}
	op := btcwire.OutPoint{Hash: s.fundingTxid, Index: s.fundingVout}
	out := btcwire.NewTxOut(amount, pkScript)
	return txgraph.PrevOutFetcher([]btcwire.OutPoint{op}, []*btcwire.TxOut{out})
}
