package session

import "fmt"

// runHandshake exchanges the circuit identifier and both actors' public
// keys in a fixed order: the Prover sends the circuit path, the Verifier
// answers with PK_V, and the Prover sends PK_P last.
func (s *Session) runHandshake() error {
	switch s.Role {
	case RoleProver:
		return s.proverHandshake()
	default:
		return s.verifierHandshake()
	}
}

func (s *Session) proverHandshake() error {
	if err := s.Transport.Send(circuitPathMsg{CircuitPath: s.CircuitPath}); err != nil {
		return NewError(BadMessage, fmt.Errorf("sending circuit path: %w", err))
	}

	var peerKeyMsg pubkeyMsg
	if err := s.Transport.Receive(&peerKeyMsg); err != nil {
		return NewError(BadMessage, fmt.Errorf("receiving verifier pubkey: %w", err))
	}
	peerPK, err := peerKeyMsg.decode()
	if err != nil {
		return NewError(BadMessage, err)
	}
	s.PeerPubKey = peerPK

	if err := s.Transport.Send(encodePubKey(s.Actor.PublicKey())); err != nil {
		return NewError(BadMessage, fmt.Errorf("sending prover pubkey: %w", err))
	}

	log.Debugf("prover: handshake complete, circuit=%s peer=%x", s.CircuitPath, peerPK.SerializeCompressed())
	return nil
}

func (s *Session) verifierHandshake() error {
	var circuitMsg circuitPathMsg
	if err := s.Transport.Receive(&circuitMsg); err != nil {
		return NewError(BadMessage, fmt.Errorf("receiving circuit path: %w", err))
	}
	if circuitMsg.CircuitPath == "" {
		return NewError(BadMessage, fmt.Errorf("empty circuit path"))
	}
	s.CircuitPath = circuitMsg.CircuitPath

	if err := s.Transport.Send(encodePubKey(s.Actor.PublicKey())); err != nil {
		return NewError(BadMessage, fmt.Errorf("sending verifier pubkey: %w", err))
	}

	var peerKeyMsg pubkeyMsg
	if err := s.Transport.Receive(&peerKeyMsg); err != nil {
		return NewError(BadMessage, fmt.Errorf("receiving prover pubkey: %w", err))
	}
	peerPK, err := peerKeyMsg.decode()
	if err != nil {
		return NewError(BadMessage, err)
	}
	s.PeerPubKey = peerPK

	log.Debugf("verifier: handshake complete, circuit=%s peer=%x", s.CircuitPath, peerPK.SerializeCompressed())
	return nil
}
