// Package transport carries the session handshake, wire-hash commitment,
// per-rung challenge hashes and pre-signatures between a Prover and a
// Verifier as JSON text frames over a websocket.
package transport

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
)

// Transport is a bidirectional channel of typed messages. Send and
// Receive are not safe to call concurrently from multiple goroutines on
// the same Transport for the same direction; a session drives each
// direction from a single goroutine.
type Transport interface {
	Send(v interface{}) error
	Receive(v interface{}) error
	Close() error
}

// WSTransport is a Transport backed by a gorilla/websocket connection,
// framing every message as a single JSON text frame, mirroring the
// original send_message/receive_message pairing of one serialized value
// per websocket frame.
type WSTransport struct {
	conn *websocket.Conn
}

// NewWSTransport wraps an already-established websocket connection.
func NewWSTransport(conn *websocket.Conn) *WSTransport {
	return &WSTransport{conn: conn}
}

// Dial connects to a peer's websocket listener at url.
func Dial(url string) (*WSTransport, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dialing %s: %w", url, err)
	}
	return NewWSTransport(conn), nil
}

// Send serializes v as JSON and writes it as a single text frame.
func (t *WSTransport) Send(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("transport: marshaling message: %w", err)
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("transport: writing frame: %w", err)
	}
	return nil
}

// Receive blocks for the next text frame and unmarshals it into v.
func (t *WSTransport) Receive(v interface{}) error {
	msgType, payload, err := t.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("transport: reading frame: %w", err)
	}
	if msgType != websocket.TextMessage {
		return fmt.Errorf("transport: expected text frame, got type %d", msgType)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("transport: unmarshaling message: %w", err)
	}
	return nil
}

// Close terminates the underlying connection.
func (t *WSTransport) Close() error {
	return t.conn.Close()
}
