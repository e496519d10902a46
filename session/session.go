// Package session drives one bisection protocol run end to end: the
// handshake, wire-hash commitment, ladder setup with pre-signature
// exchange, funding, and the watcher-driven dispute loop, for both the
// Prover and the Verifier side of a single counterparty pairing.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	btcwire "github.com/btcsuite/btcd/wire"

	"github.com/bitvm-labs/bitvmd/actor"
	"github.com/bitvm-labs/bitvmd/chainscript"
	"github.com/bitvm-labs/bitvmd/circuit"
	"github.com/bitvm-labs/bitvmd/transport"
	"github.com/bitvm-labs/bitvmd/txgraph"
	"github.com/bitvm-labs/bitvmd/watcher"
	bitvmwire "github.com/bitvm-labs/bitvmd/wire"
)

// Role identifies which side of the protocol a Session plays.
type Role int

const (
	RoleProver Role = iota
	RoleVerifier
)

func (r Role) String() string {
	if r == RoleProver {
		return "prover"
	}
	return "verifier"
}

// State is the coarse-grained macro-phase a Session has reached, moving
// strictly forward except into Failed.
type State int

const (
	StateHandshake State = iota
	StateCommitted
	StateLadderSetup
	StateFunded
	StateDisputing
	StateResolved
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateHandshake:
		return "handshake"
	case StateCommitted:
		return "committed"
	case StateLadderSetup:
		return "ladder_setup"
	case StateFunded:
		return "funded"
	case StateDisputing:
		return "disputing"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ChainClient is the chain-facing surface a Session needs: funding a key
// path address, broadcasting a fully-signed transaction, and the
// watcher's read-only view used to confirm the pre-signed ladder as it
// advances.
type ChainClient interface {
	watcher.ChainBackend
	FundAddress(addr btcutil.Address, amount btcutil.Amount) (*chainhash.Hash, error)
	Broadcast(tx *btcwire.MsgTx) (*chainhash.Hash, error)
}

// Config carries the protocol constants both sides must agree on
// out-of-band before a session starts.
type Config struct {
	Net             *chaincfg.Params
	FundingAmount   int64
	Params          txgraph.Params
	BisectionLength int
	TimelockBlocks  uint32
	WatchInterval   time.Duration
}

// Session is one Prover-Verifier pairing running the protocol over a
// single Transport. Exactly one goroutine drives Run; a Session is not
// safe to drive concurrently from two goroutines, mirroring the
// cooperative single-threaded-per-role runner the protocol assumes.
type Session struct {
	Role   Role
	Config Config

	Actor     *actor.Actor
	Transport transport.Transport
	Chain     ChainClient
	Watcher   *watcher.Watcher

	CircuitPath string
	// Inputs is the Prover's private witness for the circuit, consumed
	// during commitment to resolve every wire's preimage before any gate
	// accusation can be answered. Unused on the Verifier side.
	Inputs [][]bool

	PeerPubKey *btcec.PublicKey
	Circuit    *circuit.Circuit
	Ladder     *txgraph.Ladder

	fundingTxid chainhash.Hash
	fundingVout uint32

	equivocationTree   *chainscript.ScriptTree
	responseSecondTree *chainscript.ScriptTree
	cosignLeafScript   []byte
	challengeHashes    [][]bitvmwire.Hash
	challengeAddrs     []*chainscript.ScriptTree
	responseAddrs      []*chainscript.ScriptTree
	cosigs             map[string]*cosignPair
	challenges         []gateChallenge

	mu    sync.Mutex
	state State
}

// New builds a Session for role over t, talking to backend for chain
// queries and broadcasts. circuitPath is the local path to the Bristol
// file; the Prover sends it to the Verifier during the handshake, and the
// Verifier is expected to already hold an identical copy at the same
// path (or one resolved the same way by its own configuration).
func New(role Role, a *actor.Actor, t transport.Transport, chain ChainClient, circuitPath string, cfg Config) *Session {
	return &Session{
		Role:        role,
		Config:      cfg,
		Actor:       a,
		Transport:   t,
		Chain:       chain,
		Watcher:     watcher.New(chain, cfg.WatchInterval),
		CircuitPath: circuitPath,
		cosigs:      make(map[string]*cosignPair),
		state:       StateHandshake,
	}
}

// proverPK and verifierPK return the two actors' keys in protocol order
// regardless of which role this session plays, once the handshake has
// populated PeerPubKey.
func (s *Session) proverPK() *btcec.PublicKey {
	if s.Role == RoleProver {
		return s.Actor.PublicKey()
	}
	return s.PeerPubKey
}

func (s *Session) verifierPK() *btcec.PublicKey {
	if s.Role == RoleVerifier {
		return s.Actor.PublicKey()
	}
	return s.PeerPubKey
}

// State returns the session's current macro-phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log.Infof("%s: %s -> %s", s.Role, s.state, next)
	s.state = next
}

func (s *Session) fail(err error) error {
	s.setState(StateFailed)
	return err
}

// Run drives the session through every macro-phase in order: handshake,
// commitment, funding (the outpoint is fixed here so every rung-0
// transaction can be built deterministically), ladder setup, the kickoff
// broadcast, and the dispute loop. It returns once the session resolves
// or on the first error any phase reports; Run retries nothing itself,
// not even errors whose kind reports Retryable.
func (s *Session) Run() error {
	if err := s.runHandshake(); err != nil {
		return s.fail(fmt.Errorf("session: handshake: %w", err))
	}
	s.setState(StateCommitted)

	if err := s.runCommitment(); err != nil {
		return s.fail(fmt.Errorf("session: commitment: %w", err))
	}

	if err := s.prepareFunding(); err != nil {
		return s.fail(fmt.Errorf("session: preparing funding: %w", err))
	}
	s.setState(StateLadderSetup)

	if err := s.runLadderSetup(); err != nil {
		return s.fail(fmt.Errorf("session: ladder setup: %w", err))
	}

	if err := s.broadcastKickoff(); err != nil {
		return s.fail(fmt.Errorf("session: kickoff: %w", err))
	}
	s.setState(StateFunded)
	s.setState(StateDisputing)

	if err := s.runDisputeLoop(); err != nil {
		return s.fail(fmt.Errorf("session: dispute loop: %w", err))
	}
	s.setState(StateResolved)
	return nil
}
