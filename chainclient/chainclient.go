// Package chainclient talks to a bitcoind instance over RPC: it funds the
// session's addresses, broadcasts pre-signed ladder transactions, and
// answers the watcher's "has this txid landed yet" queries.
package chainclient

import (
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"

	"github.com/bitvm-labs/bitvmd/watcher"
)

// Config carries the bitcoind RPC endpoint and credentials.
type Config struct {
	Host         string
	User         string
	Pass         string
	DisableTLS   bool
	HTTPPostMode bool
}

// Client wraps an rpcclient.Client and exposes the narrow surface the
// rest of the module needs: funding, broadcasting, and looking up
// transactions by txid.
type Client struct {
	rpc *rpcclient.Client
}

// New dials the configured bitcoind RPC endpoint.
func New(cfg Config) (*Client, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		DisableTLS:   cfg.DisableTLS,
		HTTPPostMode: cfg.HTTPPostMode,
	}
	rpc, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("chainclient: connecting: %w", err)
	}
	return &Client{rpc: rpc}, nil
}

// Shutdown closes the RPC connection.
func (c *Client) Shutdown() {
	c.rpc.Shutdown()
}

// FundAddress sends amount to addr, the step that seeds a session's
// funding outpoint from the node's wallet.
func (c *Client) FundAddress(addr btcutil.Address, amount btcutil.Amount) (*chainhash.Hash, error) {
	txid, err := c.rpc.SendToAddress(addr, amount)
	if err != nil {
		return nil, fmt.Errorf("chainclient: funding %s: %w", addr, err)
	}
	log.Infof("funded %s with %s, txid %s", addr, amount, txid)
	return txid, nil
}

// Broadcast submits a fully-signed transaction to the network.
func (c *Client) Broadcast(tx *wire.MsgTx) (*chainhash.Hash, error) {
	txid, err := c.rpc.SendRawTransaction(tx, false)
	if err != nil {
		return nil, fmt.Errorf("chainclient: broadcasting %s: %w", tx.TxHash(), err)
	}
	log.Debugf("broadcast tx %s", txid)
	return txid, nil
}

// GetRawTransaction satisfies watcher.ChainBackend: it returns the
// transaction for txid, or watcher.ErrNotFound if the node has not seen
// it (in the mempool or a block) yet.
func (c *Client) GetRawTransaction(txid *chainhash.Hash) (*wire.MsgTx, error) {
	tx, err := c.rpc.GetRawTransaction(txid)
	if err != nil {
		if rpcErr, ok := err.(*btcjson.RPCError); ok && rpcErr.Code == btcjson.ErrRPCNoTxInfo {
			return nil, watcher.ErrNotFound
		}
		return nil, fmt.Errorf("chainclient: fetching %s: %w", txid, err)
	}
	return tx.MsgTx(), nil
}

// GetTxConfirmations returns the number of confirmations txid has, or 0
// if it is unconfirmed.
func (c *Client) GetTxConfirmations(txid *chainhash.Hash) (int64, error) {
	result, err := c.rpc.GetTransaction(txid)
	if err != nil {
		return 0, fmt.Errorf("chainclient: fetching confirmations for %s: %w", txid, err)
	}
	return result.Confirmations, nil
}

var _ watcher.ChainBackend = (*Client)(nil)
