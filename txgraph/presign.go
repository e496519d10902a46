package txgraph

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// PresignedSpend bundles everything a co-signer needs to countersign one
// ladder input through its 2-of-2 leaf: the sighash that was signed and
// the signature itself, so the recipient can verify before countersigning
// its own half.
type PresignedSpend struct {
	SigHash   []byte
	Signature *schnorr.Signature
}

// SignRungInput produces the Schnorr signature over input idx of tx,
// spent through the 2-of-2 leaf leafScript, using priv. The caller
// supplies the prevout fetcher describing every input being spent,
// matching BIP 341's requirement that the sighash commit to all spent
// amounts and scripts, not just the one being signed.
func SignRungInput(tx *wire.MsgTx, idx int, fetcher txscript.PrevOutputFetcher, leafScript []byte, priv *btcec.PrivateKey) (*PresignedSpend, error) {
	sigHash, err := ScriptPathSigHash(tx, idx, fetcher, leafScript)
	if err != nil {
		return nil, fmt.Errorf("txgraph: computing sighash: %w", err)
	}
	sig, err := schnorr.Sign(priv, sigHash)
	if err != nil {
		return nil, fmt.Errorf("txgraph: signing: %w", err)
	}
	return &PresignedSpend{SigHash: sigHash, Signature: sig}, nil
}

// VerifyRungInput checks a counterparty-supplied PresignedSpend against
// the expected sighash for input idx of tx under leafScript, the gate a
// Prover or Verifier must pass before counting on the other side's
// pre-signature to be usable later in the ladder.
func VerifyRungInput(tx *wire.MsgTx, idx int, fetcher txscript.PrevOutputFetcher, leafScript []byte, pub *btcec.PublicKey, spend *PresignedSpend) error {
	sigHash, err := ScriptPathSigHash(tx, idx, fetcher, leafScript)
	if err != nil {
		return fmt.Errorf("txgraph: computing sighash: %w", err)
	}
	if !bytes.Equal(sigHash, spend.SigHash) {
		return fmt.Errorf("txgraph: sighash mismatch, rung transaction was mutated")
	}
	if !spend.Signature.Verify(sigHash, pub) {
		return fmt.Errorf("txgraph: invalid counterparty signature")
	}
	return nil
}
