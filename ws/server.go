// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// sendQueueSize bounds a connection's outbound queue. Notify drops
	// frames for a connection that falls this far behind.
	sendQueueSize = 256

	welcomeText      = "Connected to Solana scanner WebSocket"
	invalidFrameText = "Invalid message format"

	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
)

// serverMessage is the JSON shape of control frames the server emits;
// transaction notifications are serialized types.Transaction values.
type serverMessage struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connection_id,omitempty"`
	Message      string `json:"message"`
}

// clientMessage is a subscribe or unsubscribe request.
type clientMessage struct {
	Action  string `json:"action"`
	Address string `json:"address"`
}

// Server upgrades HTTP requests on /ws and bridges each socket to the
// registry: a read loop applies subscribe/unsubscribe frames and a
// write goroutine drains the connection's send queue.
type Server struct {
	registry *Registry
	upgrader websocket.Upgrader
	log      *zap.Logger
	httpSrv  *http.Server

	mu    sync.Mutex
	socks map[*websocket.Conn]struct{}
}

func NewServer(registry *Registry, port int, logger *zap.Logger) *Server {
	s := &Server{
		registry: registry,
		upgrader: websocket.Upgrader{
			// Origin policy is enforced by whatever fronts the
			// deployment.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:   logger,
		socks: make(map[*websocket.Conn]struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%d", port),
		Handler: mux,
	}
	return s
}

// Handler exposes the route table so tests can serve it without
// binding the configured port.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) ListenAndServe() error {
	s.log.Info("websocket server listening", zap.String("addr", s.httpSrv.Addr))
	return s.httpSrv.ListenAndServe()
}

// Shutdown stops the listener and force-closes live sockets; each
// socket's read loop then cleans its registry state on the way out.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpSrv.Shutdown(ctx)
	s.mu.Lock()
	for conn := range s.socks {
		_ = conn.Close()
	}
	s.mu.Unlock()
	return err
}

func (s *Server) track(conn *websocket.Conn) {
	s.mu.Lock()
	s.socks[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.socks, conn)
	s.mu.Unlock()
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s.track(conn)

	id := uuid.NewString()
	send := make(chan []byte, sendQueueSize)
	done := make(chan struct{})

	s.registry.AddConnection(id, send)

	// Queued before the writer starts, so it is always the first
	// frame the client reads.
	s.enqueue(send, serverMessage{
		Type:         "welcome",
		ConnectionID: id,
		Message:      welcomeText,
	})

	go s.writeLoop(conn, send, done)
	s.readLoop(conn, id, send)

	s.registry.RemoveConnection(id)
	close(done)
	_ = conn.Close()
	s.untrack(conn)
	s.log.Debug("session ended", zap.String("conn_id", id))
}

// enqueue marshals and queues a control frame, dropping it when the
// connection's queue is full.
func (s *Server) enqueue(send chan<- []byte, msg serverMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("marshal control frame", zap.Error(err))
		return
	}
	select {
	case send <- payload:
	default:
	}
}

func (s *Server) writeLoop(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	for {
		select {
		case payload := <-send:
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Server) readLoop(conn *websocket.Conn, id string, send chan<- []byte) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("websocket read failed",
					zap.String("conn_id", id), zap.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.enqueue(send, serverMessage{Type: "error", Message: invalidFrameText})
			continue
		}
		s.apply(id, send, msg)
	}
}

func (s *Server) apply(id string, send chan<- []byte, msg clientMessage) {
	switch msg.Action {
	case actionSubscribe:
		if msg.Address == "" {
			s.enqueue(send, serverMessage{Type: "error", Message: invalidFrameText})
			return
		}
		if err := s.registry.Subscribe(id, msg.Address); err != nil {
			s.log.Warn("subscribe failed",
				zap.String("conn_id", id), zap.Error(err))
		}
	case actionUnsubscribe:
		if msg.Address == "" {
			s.enqueue(send, serverMessage{Type: "error", Message: invalidFrameText})
			return
		}
		if err := s.registry.Unsubscribe(id, msg.Address); err != nil {
			s.log.Warn("unsubscribe failed",
				zap.String("conn_id", id), zap.Error(err))
		}
	default:
		s.enqueue(send, serverMessage{Type: "error", Message: invalidFrameText})
	}
}
