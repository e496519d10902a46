package session

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/bitvm-labs/bitvmd/bitutil"
	"github.com/bitvm-labs/bitvmd/wire"
)

// circuitPathMsg is the Prover's opening frame, naming the Bristol file
// both sides already have a local copy of.
type circuitPathMsg struct {
	CircuitPath string `json:"circuit_path"`
}

// pubkeyMsg exchanges a 32-byte x-only public key as hex, sent once by
// each side during the handshake.
type pubkeyMsg struct {
	PubKey string `json:"pubkey"`
}

func encodePubKey(pk *btcec.PublicKey) pubkeyMsg {
	return pubkeyMsg{PubKey: bitutil.BytesToHex(schnorr.SerializePubKey(pk))}
}

func (m pubkeyMsg) decode() (*btcec.PublicKey, error) {
	raw, err := bitutil.HexToBytes(m.PubKey, 32)
	if err != nil {
		return nil, fmt.Errorf("session: decoding pubkey: %w", err)
	}
	return schnorr.ParsePubKey(raw)
}

// hashPairJSON mirrors wire.HashPair for the over-the-wire wire-hash
// list: two 64-hex-character commitments per wire.
type hashPairJSON struct {
	Zero string `json:"zero"`
	One  string `json:"one"`
}

type wireHashesMsg struct {
	WireHashes []hashPairJSON `json:"wire_hashes"`
}

func encodeWireHashes(hashes []wire.HashPair) wireHashesMsg {
	out := make([]hashPairJSON, len(hashes))
	for i, h := range hashes {
		out[i] = hashPairJSON{
			Zero: bitutil.BytesToHex(h.Zero[:]),
			One:  bitutil.BytesToHex(h.One[:]),
		}
	}
	return wireHashesMsg{WireHashes: out}
}

func (m wireHashesMsg) decode() ([]wire.HashPair, error) {
	out := make([]wire.HashPair, len(m.WireHashes))
	for i, h := range m.WireHashes {
		zero, err := bitutil.HexToBytes(h.Zero, 32)
		if err != nil {
			return nil, fmt.Errorf("session: wire %d zero hash: %w", i, err)
		}
		one, err := bitutil.HexToBytes(h.One, 32)
		if err != nil {
			return nil, fmt.Errorf("session: wire %d one hash: %w", i, err)
		}
		copy(out[i].Zero[:], zero)
		copy(out[i].One[:], one)
	}
	return out, nil
}

// challengeHashesMsg is the Verifier's per-rung challenge commitment: one
// 32-byte hash per gate in the circuit.
type challengeHashesMsg struct {
	ChallengeHashes []string `json:"challenge_hashes"`
}

func encodeChallengeHashes(hashes []wire.Hash) challengeHashesMsg {
	out := make([]string, len(hashes))
	for i, h := range hashes {
		out[i] = bitutil.BytesToHex(h[:])
	}
	return challengeHashesMsg{ChallengeHashes: out}
}

func (m challengeHashesMsg) decode() ([]wire.Hash, error) {
	out := make([]wire.Hash, len(m.ChallengeHashes))
	for i, h := range m.ChallengeHashes {
		raw, err := bitutil.HexToBytes(h, 32)
		if err != nil {
			return nil, fmt.Errorf("session: challenge hash %d: %w", i, err)
		}
		copy(out[i][:], raw)
	}
	return out, nil
}

// cosigMsg carries one 64-byte Schnorr signature as hex.
type cosigMsg struct {
	Cosig string `json:"cosig"`
}

func encodeCosig(sig *schnorr.Signature) cosigMsg {
	return cosigMsg{Cosig: bitutil.BytesToHex(sig.Serialize())}
}

func (m cosigMsg) decode() (*schnorr.Signature, error) {
	raw, err := bitutil.HexToBytes(m.Cosig, 64)
	if err != nil {
		return nil, fmt.Errorf("session: decoding cosig: %w", err)
	}
	return schnorr.ParseSignature(raw)
}

// fundingOutpointMsg announces the outpoint the Prover has funded its
// own key-path address with, the point every rung-0 transaction in the
// ladder ultimately spends. Sent before ladder setup begins so both
// sides build byte-identical rung transactions.
type fundingOutpointMsg struct {
	Txid string `json:"txid"`
	Vout uint32 `json:"vout"`
}

func encodeFundingOutpoint(txid chainhash.Hash, vout uint32) fundingOutpointMsg {
	return fundingOutpointMsg{Txid: txid.String(), Vout: vout}
}

func (m fundingOutpointMsg) decode() (chainhash.Hash, uint32, error) {
	h, err := chainhash.NewHashFromStr(m.Txid)
	if err != nil {
		return chainhash.Hash{}, 0, fmt.Errorf("session: decoding funding txid: %w", err)
	}
	return *h, m.Vout, nil
}

// kickoffTxidMsg announces the funding/kickoff transaction's txid once
// broadcast.
type kickoffTxidMsg struct {
	KickoffTxid string `json:"kickoff_txid"`
}

func encodeKickoffTxid(txid chainhash.Hash) kickoffTxidMsg {
	return kickoffTxidMsg{KickoffTxid: txid.String()}
}

func (m kickoffTxidMsg) decode() (chainhash.Hash, error) {
	return chainhash.NewHashFromStr(m.KickoffTxid)
}
