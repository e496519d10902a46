package session_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/bitvm-labs/bitvmd/actor"
	"github.com/bitvm-labs/bitvmd/session"
	"github.com/bitvm-labs/bitvmd/txgraph"
	"github.com/bitvm-labs/bitvmd/watcher"
)

// andThenNotBristol wires two input bits through an AND gate and then a
// NOT gate, so a two-rung bisection touches one gate per rung.
const andThenNotBristol = "2 4\n1 2\n1 1\n2 1 0 1 2 AND\n1 1 2 3 NOT\n"

// memTransport is an in-process Transport backed by a pair of byte
// channels, JSON-encoding every message exactly as WSTransport does over
// a real websocket frame.
type memTransport struct {
	send chan []byte
	recv chan []byte
}

func newMemTransportPair() (*memTransport, *memTransport) {
	a := make(chan []byte, 1)
	b := make(chan []byte, 1)
	return &memTransport{send: a, recv: b}, &memTransport{send: b, recv: a}
}

func (t *memTransport) Send(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	t.send <- payload
	return nil
}

func (t *memTransport) Receive(v interface{}) error {
	payload := <-t.recv
	return json.Unmarshal(payload, v)
}

func (t *memTransport) Close() error { return nil }

// fakeChain is a shared in-memory ledger standing in for a bitcoind
// instance: FundAddress and Broadcast both simply record a transaction,
// and GetRawTransaction looks one up by txid, exactly the surface
// watcher.ChainBackend and session.ChainClient need.
type fakeChain struct {
	mu      sync.Mutex
	txs     map[chainhash.Hash]*btcwire.MsgTx
	counter uint32
}

func newFakeChain() *fakeChain {
	return &fakeChain{txs: make(map[chainhash.Hash]*btcwire.MsgTx)}
}

func (f *fakeChain) GetRawTransaction(txid *chainhash.Hash) (*btcwire.MsgTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[*txid]
	if !ok {
		return nil, watcher.ErrNotFound
	}
	return tx, nil
}

func (f *fakeChain) FundAddress(addr btcutil.Address, amount btcutil.Amount) (*chainhash.Hash, error) {
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.counter++
	seq := f.counter
	f.mu.Unlock()

	tx := btcwire.NewMsgTx(btcwire.TxVersion)
	coinbaseOutpoint := btcwire.OutPoint{Index: seq}
	tx.AddTxIn(btcwire.NewTxIn(&coinbaseOutpoint, nil, nil))
	tx.AddTxOut(btcwire.NewTxOut(int64(amount), pkScript))

	txid := tx.TxHash()
	f.mu.Lock()
	f.txs[txid] = tx
	f.mu.Unlock()
	return &txid, nil
}

func (f *fakeChain) Broadcast(tx *btcwire.MsgTx) (*chainhash.Hash, error) {
	txid := tx.TxHash()
	f.mu.Lock()
	f.txs[txid] = tx
	f.mu.Unlock()
	return &txid, nil
}

func TestSessionEndToEndHonestDispute(t *testing.T) {
	circuitPath := filepath.Join(t.TempDir(), "circuit.bristol")
	require.NoError(t, os.WriteFile(circuitPath, []byte(andThenNotBristol), 0o600))

	proverActor, err := actor.New(&chaincfg.RegressionNetParams)
	require.NoError(t, err)
	verifierActor, err := actor.New(&chaincfg.RegressionNetParams)
	require.NoError(t, err)

	proverTransport, verifierTransport := newMemTransportPair()
	chain := newFakeChain()

	cfg := session.Config{
		Net:             &chaincfg.RegressionNetParams,
		FundingAmount:   200_000,
		Params:          txgraph.DefaultParams,
		BisectionLength: 2,
		TimelockBlocks:  10,
		WatchInterval:   2 * time.Millisecond,
	}

	prover := session.New(session.RoleProver, proverActor, proverTransport, chain, circuitPath, cfg)
	prover.Inputs = [][]bool{{true, false}}
	verifier := session.New(session.RoleVerifier, verifierActor, verifierTransport, chain, circuitPath, cfg)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); errs <- prover.Run() }()
	go func() { defer wg.Done(); errs <- verifier.Run() }()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(20 * time.Second):
		t.Fatal("session run did not complete in time")
	}
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, session.StateResolved, prover.State())
	require.Equal(t, session.StateResolved, verifier.State())
}
