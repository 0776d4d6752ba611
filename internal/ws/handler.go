package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"unicode/utf8"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/lucasgreene/chatrelay/internal/chat"
	"github.com/lucasgreene/chatrelay/internal/metrics"
	"github.com/lucasgreene/chatrelay/internal/moderation"
	"github.com/lucasgreene/chatrelay/internal/presence"
	"github.com/lucasgreene/chatrelay/internal/ratelimit"
)

// Envelope is the JSON structure exchanged over the WebSocket. Inbound
// envelopes may carry an id, which the matching ack echoes back.
type Envelope struct {
	Type    string          `json:"type"`
	ID      int64           `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinPayload is sent by the client to join a room.
type JoinPayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// MessagePayload is sent by the client to post a chat message.
type MessagePayload struct {
	Text string `json:"text"`
}

// LocationPayload is sent by the client to share coordinates.
type LocationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// AckPayload acknowledges one inbound event. Error is empty on success.
type AckPayload struct {
	ID    int64  `json:"id"`
	Error string `json:"error,omitempty"`
}

// errInvalidPayload acks an envelope whose payload does not decode.
var errInvalidPayload = errors.New("invalid event payload")

// Handler upgrades HTTP requests to WebSockets and runs the protocol read
// loop, mapping each inbound event to a session call and exactly one ack.
type Handler struct {
	hub           *Hub
	registry      presence.Registry
	filter        moderation.Filter
	limiter       *ratelimit.Limiter
	metrics       *metrics.Collector
	maxMessageLen int
}

// NewHandler creates a WebSocket Handler. limiter and collector may be nil.
func NewHandler(hub *Hub, registry presence.Registry, filter moderation.Filter, limiter *ratelimit.Limiter, collector *metrics.Collector, maxMessageLen int) *Handler {
	return &Handler{
		hub:           hub,
		registry:      registry,
		filter:        filter,
		limiter:       limiter,
		metrics:       collector,
		maxMessageLen: maxMessageLen,
	}
}

// ServeHTTP upgrades the connection, assigns it a fresh connection
// identity, and runs the read loop until the peer goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow all origins in dev; tighten in production.
	})
	if err != nil {
		log.Printf("ws: accept error: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	client := &Client{
		conn: conn,
		id:   uuid.NewString(),
	}

	connCtx := h.hub.Register(client)
	h.metrics.ConnOpened()

	sess := chat.NewSession(client.id, h.registry, h.filter, &outbox{hub: h.hub, client: client},
		chat.WithRateLimiter(h.limiter),
		chat.WithMetrics(h.metrics),
	)

	defer func() {
		// Unregister first so the leave broadcast only reaches the
		// remaining members of the room.
		h.hub.Unregister(client)
		sess.Disconnect()
		h.metrics.ConnClosed()
	}()

	h.readLoop(r.Context(), connCtx, client, sess)
}

// readLoop reads envelopes until the connection closes or the connection
// manager cancels connCtx.
func (h *Handler) readLoop(ctx, connCtx context.Context, client *Client, sess *chat.Session) {
	for {
		select {
		case <-connCtx.Done():
			return
		default:
		}

		_, data, err := client.conn.Read(ctx)
		if err != nil {
			// Normal close or context cancelled.
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		h.dispatch(ctx, client, sess, &env)
	}
}

// dispatch maps one inbound envelope to a session call and sends its ack.
func (h *Handler) dispatch(ctx context.Context, client *Client, sess *chat.Session, env *Envelope) {
	var err error
	switch env.Type {
	case "join":
		var p JoinPayload
		if jerr := json.Unmarshal(env.Payload, &p); jerr != nil {
			err = errInvalidPayload
		} else {
			err = sess.Join(p.Username, p.Room)
		}
	case "sendMessage":
		var p MessagePayload
		if jerr := json.Unmarshal(env.Payload, &p); jerr != nil {
			err = errInvalidPayload
		} else if h.maxMessageLen > 0 && utf8.RuneCountInString(p.Text) > h.maxMessageLen {
			err = fmt.Errorf("message exceeds maximum length of %d characters", h.maxMessageLen)
		} else {
			err = sess.SendMessage(p.Text)
		}
	case "sendLocation":
		var p LocationPayload
		if jerr := json.Unmarshal(env.Payload, &p); jerr != nil {
			err = errInvalidPayload
		} else {
			err = sess.SendLocation(p.Latitude, p.Longitude)
		}
	default:
		err = fmt.Errorf("unknown event type %q", env.Type)
	}

	h.sendAck(ctx, client, env.ID, err)
}

// sendAck writes the single acknowledgment for an inbound event directly
// to the connection. nhooyr's Conn serializes concurrent writers, so this
// is safe alongside the write pump.
func (h *Handler) sendAck(ctx context.Context, client *Client, id int64, ackErr error) {
	ack := AckPayload{ID: id}
	if ackErr != nil {
		ack.Error = ackErr.Error()
	}
	data, err := json.Marshal(ack)
	if err != nil {
		return
	}
	env, err := json.Marshal(Envelope{Type: "ack", ID: id, Payload: data})
	if err != nil {
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := client.conn.Write(writeCtx, websocket.MessageText, env); err != nil {
		log.Printf("ws: failed to write ack to connection %s: %v", client.id, err)
	}
}
