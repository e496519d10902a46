package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ErrListenerClosed is returned by Accept once Close has been called and
// no more connections will be accepted.
var ErrListenerClosed = fmt.Errorf("transport: listener closed")

// Listener accepts incoming websocket connections on a single HTTP
// handler and hands each one to Accept as a Transport. It is the
// Verifier side's counterpart to Dial: verifierd opens one Listener and
// runs one Session per accepted connection.
type Listener struct {
	server   *http.Server
	listener net.Listener
	accepted chan *WSTransport
	errs     chan error
	closed   chan struct{}
}

// Listen starts an HTTP server on addr, upgrading every request to a
// websocket connection. Call Accept in a loop to receive one Transport
// per inbound counterparty, and Close to stop accepting new ones.
func Listen(addr string) (*Listener, error) {
	netListener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listening on %s: %w", addr, err)
	}

	l := &Listener{
		listener: netListener,
		accepted: make(chan *WSTransport),
		errs:     make(chan error, 1),
		closed:   make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", l.handle)
	l.server = &http.Server{Handler: mux}

	go func() {
		if err := l.server.Serve(netListener); err != nil && err != http.ErrServerClosed {
			l.errs <- fmt.Errorf("transport: listener on %s stopped: %w", addr, err)
		}
	}()

	log.Infof("transport: listening for peers on %s", addr)
	return l, nil
}

func (l *Listener) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("transport: upgrade failed: %v", err)
		return
	}
	l.accepted <- NewWSTransport(conn)
}

// Accept blocks until a peer connects, or the listener is closed or hits
// a fatal error.
func (l *Listener) Accept() (*WSTransport, error) {
	select {
	case t := <-l.accepted:
		return t, nil
	case err := <-l.errs:
		return nil, err
	case <-l.closed:
		return nil, ErrListenerClosed
	}
}

// Close stops accepting new connections; in-flight sessions on already
// accepted Transports are unaffected.
func (l *Listener) Close() error {
	close(l.closed)
	return l.server.Shutdown(context.Background())
}
