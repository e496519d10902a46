package session

import (
	"fmt"
	"os"

	"github.com/bitvm-labs/bitvmd/circuit"
)

// runCommitment has the Prover build the circuit it will actually
// evaluate, holding every wire's real preimages, and send the resulting
// hash list; the Verifier rebuilds an identical-shaped circuit from its
// own local copy of the Bristol file, binding its wires to the received
// hashes instead of generating fresh ones. Both sides end up with a
// *circuit.Circuit whose wire hashes are byte-identical, which is what
// every later script and address derivation relies on.
func (s *Session) runCommitment() error {
	switch s.Role {
	case RoleProver:
		return s.proverCommitment()
	default:
		return s.verifierCommitment()
	}
}

func (s *Session) proverCommitment() error {
	f, err := os.Open(s.CircuitPath)
	if err != nil {
		return NewError(BadMessage, fmt.Errorf("opening circuit file: %w", err))
	}
	defer f.Close()

	c, err := circuit.FromBristol(f, nil)
	if err != nil {
		return NewError(BadMessage, fmt.Errorf("parsing circuit: %w", err))
	}
	s.Circuit = c

	if s.Inputs != nil {
		if _, err := c.Evaluate(s.Inputs); err != nil {
			return NewError(BadMessage, fmt.Errorf("evaluating circuit over inputs: %w", err))
		}
	}

	if err := s.Transport.Send(encodeWireHashes(c.WireHashes())); err != nil {
		return NewError(BadMessage, fmt.Errorf("sending wire hashes: %w", err))
	}

	log.Infof("prover: committed circuit with %d gates, %d wires", len(c.Gates), len(c.Wires))
	return nil
}

func (s *Session) verifierCommitment() error {
	var msg wireHashesMsg
	if err := s.Transport.Receive(&msg); err != nil {
		return NewError(BadMessage, fmt.Errorf("receiving wire hashes: %w", err))
	}
	hashes, err := msg.decode()
	if err != nil {
		return NewError(BadMessage, err)
	}

	f, err := os.Open(s.CircuitPath)
	if err != nil {
		return NewError(BadMessage, fmt.Errorf("opening local circuit copy: %w", err))
	}
	defer f.Close()

	c, err := circuit.FromBristol(f, hashes)
	if err != nil {
		return NewError(BadMessage, fmt.Errorf("rebuilding circuit from received hashes: %w", err))
	}
	s.Circuit = c

	log.Infof("verifier: reconstructed circuit with %d gates, %d wires", len(c.Gates), len(c.Wires))
	return nil
}
