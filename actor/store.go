package actor

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/bitvm-labs/bitvmd/wire"
)

// ChallengeKey identifies one gate's challenge within one bisection rung.
type ChallengeKey struct {
	Rung      int
	GateIndex int
}

// Store is an actor's in-memory record of a single session: the
// challenge preimages it issued (so it can later reveal the right one to
// narrow the dispute), the counterparty co-signatures it has collected
// for the ladder it is pre-signing, and the preimages it has observed
// revealed on chain.
type Store struct {
	mu sync.Mutex

	issuedPreimages map[ChallengeKey]wire.Hash
	coSignatures    map[ChallengeKey]*schnorr.Signature
	seenReveals     map[wire.Hash]wire.Hash
}

// NewStore returns an empty session store.
func NewStore() *Store {
	return &Store{
		issuedPreimages: make(map[ChallengeKey]wire.Hash),
		coSignatures:    make(map[ChallengeKey]*schnorr.Signature),
		seenReveals:     make(map[wire.Hash]wire.Hash),
	}
}

// RecordIssuedChallenge records the preimage this actor generated for a
// gate's challenge hash at a given rung.
func (s *Store) RecordIssuedChallenge(key ChallengeKey, preimage wire.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issuedPreimages[key] = preimage
}

// IssuedChallenge returns the preimage previously recorded for key.
func (s *Store) IssuedChallenge(key ChallengeKey) (wire.Hash, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	preimage, ok := s.issuedPreimages[key]
	return preimage, ok
}

// RecordCoSignature stores a counterparty's signature over a rung's
// co-signed spend.
func (s *Store) RecordCoSignature(key ChallengeKey, sig *schnorr.Signature) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coSignatures[key] = sig
}

// CoSignature returns the counterparty signature previously recorded for
// key.
func (s *Store) CoSignature(key ChallengeKey) (*schnorr.Signature, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.coSignatures[key]
	return sig, ok
}

// RecordReveal records a preimage the watcher observed spent on chain,
// keyed by the hash it opens. Recording a second, different preimage for
// a hash already on record signals equivocation to the caller.
func (s *Store) RecordReveal(hash, preimage wire.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.seenReveals[hash]; ok && existing != preimage {
		return fmt.Errorf("actor: conflicting reveal for hash %x: had %x, saw %x",
			hash, existing, preimage)
	}
	s.seenReveals[hash] = preimage
	return nil
}

// Reveal returns the preimage observed on chain for hash, if any.
func (s *Store) Reveal(hash wire.Hash) (wire.Hash, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	preimage, ok := s.seenReveals[hash]
	return preimage, ok
}
