package storage

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	jsoniter "github.com/json-iterator/go"
	"github.com/milkywaybrain/exchangeloader/internal/config"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// WebSocket broadcasts snapshots to connected websocket clients.
type WebSocket struct {
	mu           sync.Mutex
	clients      map[net.Conn]*sync.Mutex // guards writes per connection
	writeTimeout time.Duration
}

var _websocket *WebSocket

// NewWebSocket creates a websocket broadcaster with configured values.
func NewWebSocket(cfg *config.WS) *WebSocket {
	return &WebSocket{
		clients:      make(map[net.Conn]*sync.Mutex),
		writeTimeout: time.Duration(cfg.WriteTimeoutSec) * time.Second,
	}
}

// InitWebSocket initializes the shared websocket broadcaster.
func InitWebSocket(cfg *config.WS) *WebSocket {
	if _websocket == nil {
		_websocket = NewWebSocket(cfg)
		register(config.WEBSOCKET, _websocket)
	}
	return _websocket
}

// ServeHTTP upgrades the request and keeps the connection as a subscriber
// until the client goes away.
func (w *WebSocket) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, rw)
	if err != nil {
		log.Error().Stack().Err(errors.WithStack(err)).Str("func", "websocket upgrade").Msg("")
		return
	}

	w.mu.Lock()
	w.clients[conn] = &sync.Mutex{}
	w.mu.Unlock()
	log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("websocket client connected")

	go w.read(conn)
}

// read consumes client frames, answering control frames, till the connection closes.
func (w *WebSocket) read(conn net.Conn) {
	defer w.drop(conn)
	for {
		_, op, err := wsutil.ReadClientData(conn)
		if err != nil || op == ws.OpClose {
			return
		}
	}
}

func (w *WebSocket) drop(conn net.Conn) {
	w.mu.Lock()
	_, ok := w.clients[conn]
	delete(w.clients, conn)
	w.mu.Unlock()
	if ok {
		conn.Close()
		log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("websocket client disconnected")
	}
}

// Clients returns the number of connected clients.
func (w *WebSocket) Clients() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.clients)
}

// CommitSnapshot sends the rebuilt option list to every connected client.
// Clients failing the write are dropped, it never fails the commit.
func (w *WebSocket) CommitSnapshot(_ context.Context, s Snapshot) error {
	frame, err := jsoniter.Marshal(s)
	if err != nil {
		return err
	}

	w.mu.Lock()
	conns := make(map[net.Conn]*sync.Mutex, len(w.clients))
	for conn, connMu := range w.clients {
		conns[conn] = connMu
	}
	w.mu.Unlock()

	for conn, connMu := range conns {
		if err := w.write(conn, connMu, frame); err != nil {
			w.drop(conn)
		}
	}
	return nil
}

// write sends one text frame. Concurrent commits never interleave frames
// on the same connection.
func (w *WebSocket) write(conn net.Conn, connMu *sync.Mutex, frame []byte) error {
	connMu.Lock()
	defer connMu.Unlock()
	if w.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	}
	return wsutil.WriteServerText(conn, frame)
}

// Close disconnects all clients.
func (w *WebSocket) Close() {
	w.mu.Lock()
	conns := make([]net.Conn, 0, len(w.clients))
	for conn := range w.clients {
		conns = append(conns, conn)
	}
	w.mu.Unlock()
	for _, conn := range conns {
		w.drop(conn)
	}
}
