package wire_test

import (
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"

	"github.com/bitvm-labs/bitvmd/wire"
)

func TestPreimageSoundness(t *testing.T) {
	w, err := wire.New(0)
	require.NoError(t, err)

	p0, ok := w.Preimage(false)
	require.True(t, ok)
	h0 := sha256.Sum256(p0[:])
	require.Equal(t, w.Hashes.Zero, h0)

	p1, ok := w.Preimage(true)
	require.True(t, ok)
	h1 := sha256.Sum256(p1[:])
	require.Equal(t, w.Hashes.One, h1)
}

func TestAddPreimageRejectsUnrelatedValue(t *testing.T) {
	w, err := wire.New(1)
	require.NoError(t, err)

	recipient := wire.NewWithHashes(1, w.Hashes)

	p0, _ := w.Preimage(false)
	require.NoError(t, recipient.AddPreimage(p0))

	var garbage wire.Hash
	_, _ = rand.Read(garbage[:])
	err = recipient.AddPreimage(garbage)
	require.ErrorIs(t, err, wire.ErrPreimageMismatch)
}

func TestAddPreimageRejectsDuplicate(t *testing.T) {
	w, err := wire.New(2)
	require.NoError(t, err)
	recipient := wire.NewWithHashes(2, w.Hashes)

	p0, _ := w.Preimage(false)
	require.NoError(t, recipient.AddPreimage(p0))
	require.ErrorIs(t, recipient.AddPreimage(p0), wire.ErrAlreadyCommitted)
}

func TestEquivocationDetection(t *testing.T) {
	w, err := wire.New(3)
	require.NoError(t, err)
	observer := wire.NewWithHashes(3, w.Hashes)

	p0, _ := w.Preimage(false)
	p1, _ := w.Preimage(true)

	require.NoError(t, observer.AddPreimage(p0))

	err = observer.AddPreimage(p1)
	require.Error(t, err)

	var equivErr *wire.EquivocationError
	require.ErrorAs(t, err, &equivErr)
	require.Equal(t, uint32(3), equivErr.Index)
	require.Equal(t, p0, equivErr.Preimages[0])
	require.Equal(t, p1, equivErr.Preimages[1])
}

func TestAntiContradictionScriptHasHashAndSigChecks(t *testing.T) {
	w, err := wire.New(4)
	require.NoError(t, err)

	_, verifierPK := generateKeyPair(t)

	script, err := w.AntiContradictionScript(verifierPK)
	require.NoError(t, err)
	require.NotEmpty(t, script)

	disasm, err := txscript.DisasmString(script)
	require.NoError(t, err)
	require.Contains(t, disasm, "OP_SHA256")
	require.Contains(t, disasm, "OP_CHECKSIG")
}

func TestBitCommitmentSnippetScript(t *testing.T) {
	w, err := wire.New(5)
	require.NoError(t, err)

	builder := txscript.NewScriptBuilder()
	w.AddBitCommitmentSnippet(builder)
	script, err := builder.Script()
	require.NoError(t, err)
	require.NotEmpty(t, script)
}

func generateKeyPair(t *testing.T) (*btcec.PrivateKey, *btcec.PublicKey) {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv, priv.PubKey()
}
