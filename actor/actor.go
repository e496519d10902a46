// Package actor holds one session participant's keypair and the local
// bookkeeping it needs across a bisection: the challenge preimages it has
// issued, the co-signatures it has collected, and the on-chain reveals it
// has observed.
package actor

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// Actor is one Prover or Verifier identity: a keypair and the plain P2TR
// address that key controls outright (used only to receive the initial
// funding, before any script tree is involved).
type Actor struct {
	priv    *btcec.PrivateKey
	pub     *btcec.PublicKey
	address *btcutil.AddressTaproot

	Store *Store
}

// New generates a fresh keypair and derives its key-path-only P2TR
// address on net.
func New(net *chaincfg.Params) (*Actor, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("actor: generating key: %w", err)
	}
	return fromPrivateKey(priv, net)
}

func fromPrivateKey(priv *btcec.PrivateKey, net *chaincfg.Params) (*Actor, error) {
	pub := priv.PubKey()
	outputKey := txscript.ComputeTaprootKeyNoScript(pub)
	addr, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(outputKey), net)
	if err != nil {
		return nil, fmt.Errorf("actor: deriving address: %w", err)
	}
	return &Actor{
		priv:    priv,
		pub:     pub,
		address: addr,
		Store:   NewStore(),
	}, nil
}

// PublicKey returns the actor's untweaked x-only public key, the one
// counterparties see over the wire and use to verify leaf-script
// signatures.
func (a *Actor) PublicKey() *btcec.PublicKey {
	return a.pub
}

// Address returns the actor's key-path-only funding address.
func (a *Actor) Address() *btcutil.AddressTaproot {
	return a.address
}

// SignLeaf signs sighash with the actor's untweaked key, the signature a
// script-path spend through any of this actor's leaves needs.
func (a *Actor) SignLeaf(sighash []byte) (*schnorr.Signature, error) {
	return schnorr.Sign(a.priv, sighash)
}

// SignKeyPath signs sighash with the actor's key tweaked for a
// script-root-less key-path spend, the signature the Prover's kickoff
// spend of its key-path-only funding output needs.
func (a *Actor) SignKeyPath(sighash []byte) (*schnorr.Signature, error) {
	tweaked := txscript.TweakTaprootPrivKey(*a.priv, nil)
	return schnorr.Sign(tweaked, sighash)
}
