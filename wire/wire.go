// Package wire implements the two-preimage bit-commitment scheme that
// anchors every boolean value carried across the circuit: each Wire holds
// two 32-byte preimages and their SHA-256 hashes, one pair per possible
// bit value. Revealing a preimage commits the wire to the matching bit;
// revealing both is equivocation.
package wire

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
)

// HashSize is the length in bytes of a wire preimage and its hash.
const HashSize = 32

// Hash is a 32-byte preimage or SHA-256 digest.
type Hash [HashSize]byte

// HashPair holds the zero-bit and one-bit hashes of a wire, in that order.
type HashPair struct {
	Zero Hash
	One  Hash
}

var (
	// ErrAlreadyCommitted is returned by AddPreimage when the caller
	// supplies a preimage for a bit the wire already holds.
	ErrAlreadyCommitted = fmt.Errorf("wire: preimage for this bit already recorded")

	// ErrPreimageMismatch is returned when a supplied preimage does not
	// hash to either of the wire's two commitments.
	ErrPreimageMismatch = fmt.Errorf("wire: preimage matches neither commitment")
)

// EquivocationError is returned by AddPreimage the moment a wire's second,
// opposite-bit preimage arrives, completing a contradiction. The zero
// value is never a valid error (check for nil).
type EquivocationError struct {
	Index     uint32
	Preimages [2]Hash
}

func (e *EquivocationError) Error() string {
	return fmt.Sprintf("wire: equivocation detected on wire %d", e.Index)
}

// Wire is one arena-indexed boolean value in a circuit. The zero value is
// not usable; construct with New or NewWithHashes.
type Wire struct {
	Index  uint32
	Hashes HashPair

	mu        sync.Mutex
	preimage0 *Hash
	preimage1 *Hash
	selector  *bool
}

// New creates a wire at the given circuit-local index with freshly
// generated random preimages. The caller (the party building the circuit)
// retains both preimages; a counterparty reconstructing the same circuit
// from transmitted hashes uses NewWithHashes instead.
func New(index uint32) (*Wire, error) {
	var p0, p1 Hash
	if _, err := rand.Read(p0[:]); err != nil {
		return nil, fmt.Errorf("wire: generating preimage 0: %w", err)
	}
	if _, err := rand.Read(p1[:]); err != nil {
		return nil, fmt.Errorf("wire: generating preimage 1: %w", err)
	}

	w := &Wire{
		Index:     index,
		Hashes:    HashPair{Zero: sha256.Sum256(p0[:]), One: sha256.Sum256(p1[:])},
		preimage0: &p0,
		preimage1: &p1,
	}
	log.Tracef("generated wire %d with hashes %x / %x", index,
		w.Hashes.Zero[:4], w.Hashes.One[:4])
	return w, nil
}

// NewWithHashes creates a wire for which only the hash commitments are
// known; no preimages are held until AddPreimage supplies them. This is
// the shape a counterparty reconstructs a circuit in after receiving the
// wire-hash list during session commitment.
func NewWithHashes(index uint32, hashes HashPair) *Wire {
	return &Wire{Index: index, Hashes: hashes}
}

// Preimage returns the preimage committing the wire to bit, if known.
func (w *Wire) Preimage(bit bool) (Hash, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if bit {
		if w.preimage1 == nil {
			return Hash{}, false
		}
		return *w.preimage1, true
	}
	if w.preimage0 == nil {
		return Hash{}, false
	}
	return *w.preimage0, true
}

// Selector returns the bit the wire has been set to, if evaluation has
// assigned one.
func (w *Wire) Selector() (bool, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.selector == nil {
		return false, false
	}
	return *w.selector, true
}

// SetSelector assigns the wire's evaluated bit directly, without going
// through a preimage. Used by Circuit.Evaluate for the party that holds
// both preimages and is computing the circuit in the clear.
func (w *Wire) SetSelector(bit bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.selector = &bit
}

// AddPreimage records a preimage revealed on-chain (or handed over
// out-of-band) for this wire. It validates the preimage against the
// wire's commitments, sets the selector, and — this is the single
// compare-and-swap point required by the concurrency model — detects the
// instant a second, opposite-bit preimage arrives by returning an
// *EquivocationError carrying both preimages.
func (w *Wire) AddPreimage(preimage Hash) error {
	h := sha256.Sum256(preimage[:])

	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case bytes.Equal(h[:], w.Hashes.Zero[:]):
		if w.preimage0 != nil {
			return ErrAlreadyCommitted
		}
		w.preimage0 = &preimage
		bit := false
		w.selector = &bit

	case bytes.Equal(h[:], w.Hashes.One[:]):
		if w.preimage1 != nil {
			return ErrAlreadyCommitted
		}
		w.preimage1 = &preimage
		bit := true
		w.selector = &bit

	default:
		return ErrPreimageMismatch
	}

	if w.preimage0 != nil && w.preimage1 != nil {
		log.Warnf("equivocation: wire %d has both preimages", w.Index)
		return &EquivocationError{
			Index:     w.Index,
			Preimages: [2]Hash{*w.preimage0, *w.preimage1},
		}
	}
	return nil
}

// AntiContradictionScript builds the Taproot leaf script spendable by the
// Verifier once it holds both preimages of this wire: the witness supplies
// both preimages plus a Verifier signature, and the script checks each
// preimage against its commitment before requiring the signature.
//
//	⟨P1⟩ ⟨P0⟩ ⟨sig_V⟩ → OP_SHA256 〈H0〉 OP_EQUALVERIFY
//	                     OP_SHA256 〈H1〉 OP_EQUALVERIFY
//	                     〈PK_V〉 OP_CHECKSIG
func (w *Wire) AntiContradictionScript(verifierPK *btcec.PublicKey) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_SHA256)
	builder.AddData(w.Hashes.Zero[:])
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddOp(txscript.OP_SHA256)
	builder.AddData(w.Hashes.One[:])
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddData(schnorr.SerializePubKey(verifierPK))
	builder.AddOp(txscript.OP_CHECKSIG)
	return builder.Script()
}

// AddBitCommitmentSnippet appends the in-script subroutine that consumes
// one preimage from the top of the stack and leaves the committed bit (as
// an OP_1/OP_0-equivalent boolean) in its place, aborting the script if the
// preimage matches neither of the wire's commitments.
//
// Stack effect: ⟨preimage⟩ → ⟨bit⟩
//
//	OP_SHA256 OP_DUP 〈H1〉 OP_EQUAL
//	OP_DUP OP_ROT 〈H0〉 OP_EQUAL
//	OP_BOOLOR OP_VERIFY
//
// After OP_SHA256 the stack holds the hash twice-duplicated in sequence so
// that both the H1 and H0 comparisons can run without re-hashing; the
// surviving "matches H1" flag is the committed bit.
func (w *Wire) AddBitCommitmentSnippet(builder *txscript.ScriptBuilder) *txscript.ScriptBuilder {
	builder.AddOp(txscript.OP_SHA256)
	builder.AddOp(txscript.OP_DUP)
	builder.AddData(w.Hashes.One[:])
	builder.AddOp(txscript.OP_EQUAL)
	builder.AddOp(txscript.OP_DUP)
	builder.AddOp(txscript.OP_ROT)
	builder.AddData(w.Hashes.Zero[:])
	builder.AddOp(txscript.OP_EQUAL)
	builder.AddOp(txscript.OP_BOOLOR)
	builder.AddOp(txscript.OP_VERIFY)
	return builder
}
