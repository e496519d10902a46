package transport_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/bitvm-labs/bitvmd/transport"
)

type envelope struct {
	Kind string `json:"kind"`
	Data string `json:"data"`
}

func TestSendReceiveRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	accepted := make(chan *transport.WSTransport, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		accepted <- transport.NewWSTransport(conn)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	clientTransport, err := transport.Dial(wsURL)
	require.NoError(t, err)
	defer clientTransport.Close()

	serverTransport := <-accepted
	defer serverTransport.Close()

	require.NoError(t, clientTransport.Send(envelope{Kind: "hello", Data: "wire-hashes"}))

	var got envelope
	require.NoError(t, serverTransport.Receive(&got))
	require.Equal(t, envelope{Kind: "hello", Data: "wire-hashes"}, got)

	require.NoError(t, serverTransport.Send(envelope{Kind: "ack", Data: "ok"}))
	var ack envelope
	require.NoError(t, clientTransport.Receive(&ack))
	require.Equal(t, envelope{Kind: "ack", Data: "ok"}, ack)
}
