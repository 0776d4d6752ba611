package ws

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"github.com/lucasgreene/chatrelay/internal/metrics"
)

const (
	// sendBufferSize is the number of outbound messages queued per client.
	sendBufferSize = 16

	// writeTimeout is the max time to wait for a single write to complete.
	writeTimeout = 5 * time.Second
)

// Client is one connected WebSocket peer. The id is the connection
// identity handed to the presence registry; room is set once the session
// subscribes to a room and never changes afterwards.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	id   string
	room string
}

// ConnStats holds point-in-time connection statistics.
type ConnStats struct {
	Active          int
	MaxConns        int
	Rejected        int64
	DroppedMessages int64
}

// ConnManager tracks active connections, runs one write pump per client,
// and provides graceful shutdown and an optional connection cap.
type ConnManager struct {
	mu       sync.Mutex
	clients  map[*Client]context.CancelFunc
	closed   bool
	maxConns int
	metrics  *metrics.Collector

	rejected        atomic.Int64
	droppedMessages atomic.Int64
}

// ConnManagerOption configures a ConnManager.
type ConnManagerOption func(*ConnManager)

// WithMaxConns caps concurrent connections; new connections beyond the cap
// are rejected. Zero means unlimited (default).
func WithMaxConns(n int) ConnManagerOption {
	return func(cm *ConnManager) { cm.maxConns = n }
}

// WithConnMetrics attaches a metrics collector for drop counting.
func WithConnMetrics(c *metrics.Collector) ConnManagerOption {
	return func(cm *ConnManager) { cm.metrics = c }
}

// NewConnManager creates a connection manager.
func NewConnManager(opts ...ConnManagerOption) *ConnManager {
	cm := &ConnManager{
		clients: make(map[*Client]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(cm)
	}
	return cm
}

// Add registers a client and starts its write pump. The returned context
// is cancelled when the client is removed or the manager shuts down; it is
// returned already cancelled if the manager is closed or at capacity.
func (cm *ConnManager) Add(c *Client) context.Context {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
		return cancelledContext()
	}
	if cm.maxConns > 0 && len(cm.clients) >= cm.maxConns {
		cm.rejected.Add(1)
		c.conn.Close(websocket.StatusTryAgainLater, "server at capacity")
		return cancelledContext()
	}

	c.send = make(chan []byte, sendBufferSize)
	ctx, cancel := context.WithCancel(context.Background())
	cm.clients[c] = cancel

	go cm.writePump(ctx, c)
	return ctx
}

// Remove stops a client's write pump and cleans it up. Removing an unknown
// client is a no-op. The send channel is never closed: a broadcast that
// raced the removal may still be holding it, so the cancelled context ends
// the pump and the channel is reclaimed with the client.
func (cm *ConnManager) Remove(c *Client) {
	cm.mu.Lock()
	cancel, ok := cm.clients[c]
	if ok {
		delete(cm.clients, c)
	}
	cm.mu.Unlock()

	if ok {
		cancel()
	}
}

// Send queues a message for delivery to the client. Returns false if the
// client's buffer is full (slow consumer) or the client has been removed.
func (cm *ConnManager) Send(c *Client, data []byte) bool {
	cm.mu.Lock()
	_, active := cm.clients[c]
	cm.mu.Unlock()
	if !active {
		return false
	}

	select {
	case c.send <- data:
		return true
	default:
		cm.droppedMessages.Add(1)
		cm.metrics.RecordDrop()
		log.Printf("ws: send buffer full for connection %s, dropping message", c.id)
		return false
	}
}

// Count returns the number of active connections.
func (cm *ConnManager) Count() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.clients)
}

// Stats returns point-in-time connection statistics.
func (cm *ConnManager) Stats() ConnStats {
	cm.mu.Lock()
	active := len(cm.clients)
	maxConns := cm.maxConns
	cm.mu.Unlock()
	return ConnStats{
		Active:          active,
		MaxConns:        maxConns,
		Rejected:        cm.rejected.Load(),
		DroppedMessages: cm.droppedMessages.Load(),
	}
}

// Shutdown gracefully closes all connections: every write pump is cancelled
// and each WebSocket closed with StatusGoingAway. Further Adds are refused.
func (cm *ConnManager) Shutdown() {
	cm.mu.Lock()
	cm.closed = true
	clients := cm.clients
	cm.clients = make(map[*Client]context.CancelFunc)
	cm.mu.Unlock()

	for c, cancel := range clients {
		cancel()
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// writePump drains the client's send channel, writing each message to the
// WebSocket. It exits when ctx is cancelled.
func (cm *ConnManager) writePump(ctx context.Context, c *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				log.Printf("ws: write to connection %s failed: %v", c.id, err)
				return
			}
		}
	}
}

func cancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}
