package http

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var errSocketClosed = errors.New("socket closed")

type pingFrame struct {
	Type string `json:"type"` // "ping"
}

// wsSocket adapts a gorilla connection to registry.Socket. Gorilla allows
// one concurrent writer, so every send goes through mu; a failed write
// flips the socket dead and the registry's lazy checks pick that up.
type wsSocket struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed atomic.Bool
}

func newSocket(conn *websocket.Conn) *wsSocket {
	return &wsSocket{conn: conn}
}

func (s *wsSocket) Send(v any) error {
	if s.closed.Load() {
		return errSocketClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteJSON(v); err != nil {
		s.closed.Store(true)
		return err
	}
	return nil
}

func (s *wsSocket) Ping() error {
	return s.Send(pingFrame{Type: "ping"})
}

func (s *wsSocket) Alive() bool {
	return !s.closed.Load()
}

func (s *wsSocket) Close() error {
	s.closed.Store(true)
	return s.conn.Close()
}

// closePolicy sends a 1008 close frame before the connection is torn down.
func closePolicy(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
