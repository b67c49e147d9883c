package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"meshcall/internal/core/domain"
	"meshcall/internal/core/services"
	"meshcall/internal/infrastructure/monitoring"
	"meshcall/pkg/tracing"
	"meshcall/pkg/utils"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Join links open from arbitrary origins.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebSocketServer is the rendezvous service: it assigns a unique peer id
// per register and relays connection setup between two ids. It never
// sees media content.
type WebSocketServer struct {
	auth    *services.AuthService
	metrics *monitoring.Collector

	connections map[domain.PeerID]*websocket.Conn
	mu          sync.RWMutex

	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration

	logger *zap.SugaredLogger
}

func NewWebSocketServer(auth *services.AuthService, metrics *monitoring.Collector, logger *zap.SugaredLogger) *WebSocketServer {
	return &WebSocketServer{
		auth:         auth,
		metrics:      metrics,
		connections:  make(map[domain.PeerID]*websocket.Conn),
		pingInterval: 30 * time.Second,
		pongTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		logger:       logger,
	}
}

// SetPingInterval sets ping interval for WebSocket connections
func (s *WebSocketServer) SetPingInterval(interval time.Duration) {
	s.pingInterval = interval
}

// SetPongTimeout sets pong timeout for WebSocket connections
func (s *WebSocketServer) SetPongTimeout(timeout time.Duration) {
	s.pongTimeout = timeout
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// The first message must register the identity.
	conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != TypeRegister {
		s.logger.Warnw("connection without register", "error", err)
		return
	}
	var reg RegisterPayload
	if err := json.Unmarshal(msg.Payload, &reg); err != nil {
		s.logger.Warnw("bad register payload", "error", err)
		return
	}

	peerID := s.assignPeerID(reg)

	s.mu.Lock()
	existingConn, isReconnect := s.connections[peerID]
	if isReconnect && existingConn != nil {
		existingConn.Close()
		s.logger.Infow("replacing connection for resumed peer", "peer_id", peerID)
	}
	s.connections[peerID] = conn
	s.mu.Unlock()
	s.metrics.PeerRegistered()

	token, err := s.auth.IssueResumeToken(peerID)
	if err != nil {
		s.logger.Errorw("resume token issue failed", "peer_id", peerID, "error", err)
	}
	reply, _ := NewMessage(TypeRegistered, "", RegisteredPayload{PeerID: peerID, ResumeToken: token})
	if err := conn.WriteJSON(reply); err != nil {
		s.logger.Warnw("registered reply failed", "peer_id", peerID, "error", err)
		s.dropPeer(peerID, conn)
		return
	}

	s.logger.Infow("peer registered", "peer_id", peerID, "display_name", reg.DisplayName, "reconnect", isReconnect)

	conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan Message, 10)
	errorChan := make(chan error, 1)

	go func() {
		for {
			var m Message
			if err := conn.ReadJSON(&m); err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
			messageChan <- m
		}
	}()

	for {
		select {
		case m := <-messageChan:
			if err := s.handleMessage(peerID, m); err != nil {
				s.logger.Infow("signal message rejected", "peer_id", peerID, "error", err)
				s.sendError(conn, err.Error(), m.TargetPeer)
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Infow("ping write failed", "peer_id", peerID, "error", err)
				s.dropPeer(peerID, conn)
				return
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Infow("peer read loop ended", "peer_id", peerID, "error", err)
			}
			s.dropPeer(peerID, conn)
			return
		}
	}
}

// assignPeerID mints a short rendezvous id, or restores the previous one
// when the register carries a valid resume token.
func (s *WebSocketServer) assignPeerID(reg RegisterPayload) domain.PeerID {
	if reg.ResumeToken != "" {
		if id, err := s.auth.ValidateResumeToken(reg.ResumeToken); err == nil {
			return id
		}
		s.logger.Debugw("resume token rejected, assigning fresh id")
	}
	return domain.PeerID(utils.GenerateMeetingCode())
}

func (s *WebSocketServer) dropPeer(peerID domain.PeerID, conn *websocket.Conn) {
	s.mu.Lock()
	if current, ok := s.connections[peerID]; ok && current == conn {
		delete(s.connections, peerID)
		s.metrics.PeerDropped()
	}
	s.mu.Unlock()
	s.logger.Infow("peer disconnected", "peer_id", peerID)
}

// handleMessage relays connection setup between two ids; that is the
// whole rendezvous contract.
func (s *WebSocketServer) handleMessage(peerID domain.PeerID, msg Message) error {
	switch msg.Type {
	case TypeOffer, TypeAnswer, TypeICECandidate:
		return s.relay(peerID, msg)
	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

func (s *WebSocketServer) relay(from domain.PeerID, msg Message) error {
	ctx, span := tracing.TraceSignalMessage(context.Background(), msg.Type, string(from))
	defer span.End()

	if msg.TargetPeer == "" {
		err := fmt.Errorf("target_peer is required for %s", msg.Type)
		tracing.RecordError(ctx, err)
		return err
	}
	if msg.TargetPeer == from {
		err := fmt.Errorf("cannot relay %s to self", msg.Type)
		tracing.RecordError(ctx, err)
		return err
	}

	forwarded := Message{
		Type:     msg.Type,
		FromPeer: from,
		Payload:  msg.Payload,
	}

	if err := s.sendToPeer(msg.TargetPeer, forwarded); err != nil {
		err = fmt.Errorf("peer %s is not connected", msg.TargetPeer)
		tracing.RecordError(ctx, err)
		return err
	}

	s.metrics.MessageRelayed(msg.Type)
	s.logger.Debugw("relayed signal message", "type", msg.Type, "from", from, "to", msg.TargetPeer)
	return nil
}

func (s *WebSocketServer) sendToPeer(peerID domain.PeerID, msg Message) error {
	s.mu.RLock()
	conn, exists := s.connections[peerID]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("peer %s not connected", peerID)
	}
	return conn.WriteJSON(msg)
}

func (s *WebSocketServer) sendError(conn *websocket.Conn, message string, target domain.PeerID) {
	msg, err := NewMessage(TypeError, "", ErrorPayload{Message: message, TargetPeer: target})
	if err != nil {
		return
	}
	conn.WriteJSON(msg)
}

func (s *WebSocketServer) IsPeerConnected(peerID domain.PeerID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.connections[peerID]
	return exists
}

func (s *WebSocketServer) ConnectedPeers() []domain.PeerID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	peers := make([]domain.PeerID, 0, len(s.connections))
	for peerID := range s.connections {
		peers = append(peers, peerID)
	}
	return peers
}

func (s *WebSocketServer) HealthCheck(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	connectionCount := len(s.connections)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"peers":  connectionCount,
	})
}
