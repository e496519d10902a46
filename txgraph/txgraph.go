// Package txgraph builds the pre-signed bisection ladder: a chain of
// challenge_r/response_r transaction pairs, each spending the previous
// pair's outputs and shrinking the remaining stake by a fixed fee+dust
// amount per step, bottoming out at the funding output.
package txgraph

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// Params carries the fixed per-step costs of the ladder.
type Params struct {
	FeeSat  int64
	DustSat int64
}

// DefaultParams matches the values the reference protocol settles on: a
// 500-satoshi fee per transaction and the standard 546-satoshi dust
// threshold.
var DefaultParams = Params{FeeSat: 500, DustSat: 546}

// RemainderValue returns the stake left in the ladder's remainder output
// after k transactions have each paid FeeSat+DustSat out of the original
// funding amount.
func RemainderValue(funding int64, k int, p Params) int64 {
	return funding - int64(k)*(p.FeeSat+p.DustSat)
}

// NewRBFTxIn builds a transaction input spending outpoint with sequence
// two below the max (0xfffffffd), which signals BIP 125 opt-in
// replace-by-fee with no relative locktime; every pre-signed ladder input
// is built this way.
func NewRBFTxIn(outpoint wire.OutPoint) *wire.TxIn {
	txIn := wire.NewTxIn(&outpoint, nil, nil)
	txIn.Sequence = wire.MaxTxInSequenceNum - 2
	return txIn
}

// BuildRungTx constructs one ladder transaction: it spends prevOuts in
// order and pays a dust-value primary output (the next rung's script
// commitment) followed by the shrinking remainder output.
func BuildRungTx(prevOuts []wire.OutPoint, primaryScript []byte, dustSat int64, remainderScript []byte, remainderValue int64) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.LockTime = 0
	for _, op := range prevOuts {
		tx.AddTxIn(NewRBFTxIn(op))
	}
	tx.AddTxOut(wire.NewTxOut(dustSat, primaryScript))
	tx.AddTxOut(wire.NewTxOut(remainderValue, remainderScript))
	return tx
}

// PrevOutFetcher builds a txscript.MultiPrevOutFetcher mapping each
// outpoint to its spent output, the shape CalcTaprootSignatureHash and
// CalcTapscriptSignaturehash both need to authenticate every input even
// when only one is being signed right now.
func PrevOutFetcher(outpoints []wire.OutPoint, outs []*wire.TxOut) (txscript.PrevOutputFetcher, error) {
	if len(outpoints) != len(outs) {
		return nil, fmt.Errorf("txgraph: %d outpoints but %d prevouts", len(outpoints), len(outs))
	}
	m := make(map[wire.OutPoint]*wire.TxOut, len(outpoints))
	for i, op := range outpoints {
		m[op] = outs[i]
	}
	return txscript.NewMultiPrevOutFetcher(m), nil
}

// KeyPathSigHash computes the taproot key-path spend sighash for input
// idx, used to sign the initial funding-to-kickoff spend.
func KeyPathSigHash(tx *wire.MsgTx, idx int, fetcher txscript.PrevOutputFetcher) ([]byte, error) {
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	return txscript.CalcTaprootSignatureHash(sigHashes, txscript.SigHashDefault, tx, idx, fetcher)
}

// ScriptPathSigHash computes the tapscript spend sighash for input idx
// through leafScript, used for every co-signed rung spend (the 2-of-2
// challenge/response leaves each actor pre-signs for the other).
func ScriptPathSigHash(tx *wire.MsgTx, idx int, fetcher txscript.PrevOutputFetcher, leafScript []byte) ([]byte, error) {
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	leaf := txscript.NewBaseTapLeaf(leafScript)
	return txscript.CalcTapscriptSignaturehash(sigHashes, txscript.SigHashDefault, tx, idx, fetcher, leaf)
}

// Rung is one bisection step: the challenge_r transaction the Prover's
// funds sit in while the Verifier is deciding which gate to dispute, and
// the response_r transaction those funds move to once the Verifier picks
// one.
type Rung struct {
	Index       int
	ChallengeTx *wire.MsgTx
	ResponseTx  *wire.MsgTx
}

// ChallengeOutPoint returns the outpoint of the challenge_r output at
// index vout (0 = next-script commitment, 1 = remainder).
func (r *Rung) ChallengeOutPoint(vout uint32) wire.OutPoint {
	return wire.OutPoint{Hash: r.ChallengeTx.TxHash(), Index: vout}
}

// ResponseOutPoint returns the outpoint of the response_r output at index
// vout (0 = next-script commitment, 1 = remainder).
func (r *Rung) ResponseOutPoint(vout uint32) wire.OutPoint {
	return wire.OutPoint{Hash: r.ResponseTx.TxHash(), Index: vout}
}

// Ladder is the full pre-signed chain of rungs rooted at a single funding
// outpoint. EquivocationScript and ResponseSecondScript are fixed for the
// life of a session — only the per-rung challenge/response scripts change
// as the bisection narrows — so they are set once here rather than
// threaded through every AppendRung call.
type Ladder struct {
	FundingOutPoint       wire.OutPoint
	FundingAmount         int64
	Params                Params
	EquivocationScript    []byte
	ResponseSecondScript  []byte
	Rungs                 []*Rung
}

// NewLadder starts an empty ladder anchored at the funding transaction's
// output, with the two fixed remainder scripts every rung's second output
// pays into.
func NewLadder(fundingTxid chainhash.Hash, fundingVout uint32, fundingAmount int64, params Params, equivocationScript, responseSecondScript []byte) *Ladder {
	return &Ladder{
		FundingOutPoint:      wire.OutPoint{Hash: fundingTxid, Index: fundingVout},
		FundingAmount:        fundingAmount,
		Params:               params,
		EquivocationScript:   equivocationScript,
		ResponseSecondScript: responseSecondScript,
	}
}

// AppendRung extends the ladder by one rung. challengeScript and
// responseScript are the script-tree commitments (chainscript.ScriptTree
// PkScripts) the Verifier's challenge choice and the next bisection round
// settle into, respectively; they are the only per-rung scripts, since
// the remainder outputs always pay to the ladder's fixed fallback
// scripts.
func (l *Ladder) AppendRung(challengeScript, responseScript []byte) (*Rung, error) {
	index := len(l.Rungs)
	k1 := 2*index + 1
	k2 := 2*index + 2

	var challengePrevOuts []wire.OutPoint
	if index == 0 {
		challengePrevOuts = []wire.OutPoint{l.FundingOutPoint}
	} else {
		prev := l.Rungs[index-1]
		challengePrevOuts = []wire.OutPoint{
			prev.ResponseOutPoint(0),
			prev.ResponseOutPoint(1),
		}
	}

	remainder1 := RemainderValue(l.FundingAmount, k1, l.Params)
	if remainder1 <= l.Params.DustSat {
		return nil, fmt.Errorf("txgraph: rung %d remainder %d at or below dust limit", index, remainder1)
	}
	challengeTx := BuildRungTx(challengePrevOuts, challengeScript, l.Params.DustSat, l.EquivocationScript, remainder1)

	responsePrevOuts := []wire.OutPoint{
		{Hash: challengeTx.TxHash(), Index: 0},
		{Hash: challengeTx.TxHash(), Index: 1},
	}
	remainder2 := RemainderValue(l.FundingAmount, k2, l.Params)
	if remainder2 <= l.Params.DustSat {
		return nil, fmt.Errorf("txgraph: rung %d remainder %d at or below dust limit", index, remainder2)
	}
	responseTx := BuildRungTx(responsePrevOuts, responseScript, l.Params.DustSat, l.ResponseSecondScript, remainder2)

	rung := &Rung{Index: index, ChallengeTx: challengeTx, ResponseTx: responseTx}
	l.Rungs = append(l.Rungs, rung)

	log.Debugf("ladder: appended rung %d, challenge remainder %d, response remainder %d",
		index, remainder1, remainder2)

	return rung, nil
}
