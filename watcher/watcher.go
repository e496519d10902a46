// Package watcher polls the chain for the pre-signed transactions a
// bisection ladder expects to appear, and extracts the wire preimages a
// counterparty reveals when it spends through a response or challenge
// leaf.
package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"

	bitvmwire "github.com/bitvm-labs/bitvmd/wire"
)

// ChainBackend is the minimal read-only view of a full node the watcher
// needs: given a txid, return the transaction if it has been broadcast
// and found on chain.
type ChainBackend interface {
	GetRawTransaction(txid *chainhash.Hash) (*btcwire.MsgTx, error)
}

// ErrNotFound is returned by a ChainBackend when a txid has not appeared
// on chain yet; the watcher treats it as "keep polling" rather than a
// fatal error.
var ErrNotFound = fmt.Errorf("watcher: transaction not found")

// Watcher polls a ChainBackend at a fixed interval for deterministic,
// pre-computed ladder txids — since every ladder transaction is
// pre-signed, its txid is known before it is ever broadcast, so watching
// for it is a matter of polling for that exact hash rather than scanning
// for an arbitrary spend of an outpoint.
type Watcher struct {
	backend  ChainBackend
	interval time.Duration
	clock    clock.Clock
}

// New returns a Watcher polling backend every interval.
func New(backend ChainBackend, interval time.Duration) *Watcher {
	return &Watcher{backend: backend, interval: interval, clock: clock.NewDefaultClock()}
}

// WaitForTx blocks until txid is found on chain or ctx is cancelled.
func (w *Watcher) WaitForTx(ctx context.Context, txid chainhash.Hash) (*btcwire.MsgTx, error) {
	start := w.clock.Now()
	t := ticker.New(w.interval)
	t.Resume()
	defer t.Stop()

	for {
		tx, err := w.backend.GetRawTransaction(&txid)
		switch {
		case err == nil:
			log.Debugf("watcher: observed txid %s on chain after %s", txid, w.clock.Now().Sub(start))
			return tx, nil
		case err == ErrNotFound:
			// not yet seen, keep polling
		default:
			return nil, fmt.Errorf("watcher: querying backend for %s: %w", txid, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.Ticks():
		}
	}
}

// ExtractPreimages reads the witness of tx's inputIndex-th input at the
// given offsets and decodes each 32-byte element as a wire preimage. The
// offsets match the layout a gate.ResponseWitness or a challenge-leaf
// witness produces: fixed positions known from the leaf script that was
// satisfied, not discovered by scanning.
func ExtractPreimages(tx *btcwire.MsgTx, inputIndex uint32, offsets []int) (map[int]bitvmwire.Hash, error) {
	if int(inputIndex) >= len(tx.TxIn) {
		return nil, fmt.Errorf("watcher: input index %d out of range, tx has %d inputs",
			inputIndex, len(tx.TxIn))
	}
	witness := tx.TxIn[inputIndex].Witness

	out := make(map[int]bitvmwire.Hash, len(offsets))
	for _, off := range offsets {
		if off < 0 || off >= len(witness) {
			return nil, fmt.Errorf("watcher: witness offset %d out of range, witness has %d elements",
				off, len(witness))
		}
		elem := witness[off]
		if len(elem) != bitvmwire.HashSize {
			return nil, fmt.Errorf("watcher: witness element %d is %d bytes, want %d",
				off, len(elem), bitvmwire.HashSize)
		}
		var h bitvmwire.Hash
		copy(h[:], elem)
		out[off] = h
	}
	return out, nil
}
