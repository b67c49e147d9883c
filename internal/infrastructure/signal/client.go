package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"meshcall/internal/core/domain"
	"meshcall/internal/core/ports"
	"meshcall/pkg/retry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const registerTimeout = 10 * time.Second

// Client holds one identity on the rendezvous service over a websocket.
// An unexpected disconnect flips the status to Disconnected and starts
// backoff reconnects; a resume token keeps the assigned peer id stable
// across them.
type Client struct {
	url    string
	logger *zap.SugaredLogger

	mu          sync.Mutex
	conn        *websocket.Conn
	writeMu     sync.Mutex
	handler     func(Message)
	statusFn    func(ports.TransportStatus)
	status      ports.TransportStatus
	peerID      domain.PeerID
	resumeToken string
	identity    domain.Identity
	closed      bool
}

func NewClient(url string, logger *zap.SugaredLogger) *Client {
	return &Client{
		url:    url,
		logger: logger,
		status: ports.TransportDisconnected,
	}
}

// SetHandler registers the sink for relayed messages. Must run before Open.
func (c *Client) SetHandler(fn func(Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = fn
}

// OnStatus registers the status-change callback.
func (c *Client) OnStatus(fn func(ports.TransportStatus)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusFn = fn
}

func (c *Client) Status() ports.TransportStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Client) setStatus(status ports.TransportStatus) {
	c.mu.Lock()
	changed := c.status != status
	c.status = status
	fn := c.statusFn
	c.mu.Unlock()

	if changed && fn != nil {
		fn(status)
	}
}

// Open dials the rendezvous service and registers the identity. Fails
// with domain.ErrSignalingUnavailable when the service is unreachable.
func (c *Client) Open(ctx context.Context, identity domain.Identity) (domain.PeerID, error) {
	c.mu.Lock()
	c.identity = identity
	c.mu.Unlock()

	if err := c.dialAndRegister(ctx); err != nil {
		return "", err
	}

	c.mu.Lock()
	id := c.peerID
	c.mu.Unlock()
	return id, nil
}

func (c *Client) dialAndRegister(ctx context.Context) error {
	c.mu.Lock()
	identity := c.identity
	token := c.resumeToken
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSignalingUnavailable, err)
	}

	msg, err := NewMessage(TypeRegister, "", RegisterPayload{
		DisplayName: identity.DisplayName,
		ResumeToken: token,
	})
	if err != nil {
		conn.Close()
		return err
	}
	if err := conn.WriteJSON(msg); err != nil {
		conn.Close()
		return fmt.Errorf("%w: %v", domain.ErrSignalingUnavailable, err)
	}

	conn.SetReadDeadline(time.Now().Add(registerTimeout))
	var reply Message
	if err := conn.ReadJSON(&reply); err != nil {
		conn.Close()
		return fmt.Errorf("%w: %v", domain.ErrSignalingUnavailable, err)
	}
	if reply.Type != TypeRegistered {
		conn.Close()
		return fmt.Errorf("%w: unexpected reply %s", domain.ErrSignalingUnavailable, reply.Type)
	}
	var payload RegisteredPayload
	if err := json.Unmarshal(reply.Payload, &payload); err != nil {
		conn.Close()
		return fmt.Errorf("%w: %v", domain.ErrSignalingUnavailable, err)
	}

	conn.SetReadDeadline(time.Time{})
	c.mu.Lock()
	c.conn = conn
	c.peerID = payload.PeerID
	c.resumeToken = payload.ResumeToken
	c.mu.Unlock()

	c.setStatus(ports.TransportConnected)
	go c.readLoop(conn)

	c.logger.Infow("registered with rendezvous", "peer_id", payload.PeerID)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			c.mu.Lock()
			closed := c.closed
			current := c.conn
			c.mu.Unlock()

			if closed || current != conn {
				return
			}
			c.logger.Warnw("signaling connection lost", "error", err)
			c.setStatus(ports.TransportDisconnected)
			go c.reconnectLoop()
			return
		}

		c.mu.Lock()
		handler := c.handler
		c.mu.Unlock()
		if handler != nil {
			handler(msg)
		}
	}
}

// reconnectLoop retries registration with exponential backoff until the
// client is closed or the service answers.
func (c *Client) reconnectLoop() {
	cfg := retry.Config{
		Enabled:      true,
		MaxAttempts:  8,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}

	err := retry.Retry(context.Background(), cfg, func() error {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), registerTimeout)
		defer cancel()
		return c.dialAndRegister(ctx)
	})
	if err != nil {
		c.logger.Errorw("signaling reconnect exhausted", "error", err)
	}
}

// Retry forces one reconnect attempt right now, outside the backoff
// schedule.
func (c *Client) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrSignalingUnavailable
	}
	if c.status == ports.TransportConnected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.dialAndRegister(ctx)
}

// Send relays one message through the rendezvous service.
func (c *Client) Send(msg Message) error {
	c.mu.Lock()
	conn := c.conn
	status := c.status
	c.mu.Unlock()

	if conn == nil || status != ports.TransportConnected {
		return domain.ErrSignalingUnavailable
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSignalingUnavailable, err)
	}
	return nil
}

// Close releases the identity. No reconnects follow.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.setStatus(ports.TransportClosed)
	if conn != nil {
		return conn.Close()
	}
	return nil
}
