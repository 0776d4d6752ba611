// Package ws is the WebSocket transport: it upgrades connections, tracks
// them per room, and exposes the unicast and multicast primitives the
// session protocol broadcasts through.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
)

// Hub groups clients by room and implements the three broadcast scopes:
// unicast to one connection, room minus one connection, and whole room.
// Room keys are lowercased so membership matches the presence registry's
// case-insensitive rooms.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	conns *ConnManager
}

// NewHub creates a Hub with its own connection manager.
func NewHub(opts ...ConnManagerOption) *Hub {
	return &Hub{
		rooms: make(map[string]map[*Client]struct{}),
		conns: NewConnManager(opts...),
	}
}

// ConnMgr returns the connection manager for this hub.
func (h *Hub) ConnMgr() *ConnManager {
	return h.conns
}

// Register starts tracking a connection that has not joined a room yet.
// The returned context is cancelled when the connection is unregistered or
// the hub shuts down.
func (h *Hub) Register(c *Client) context.Context {
	return h.conns.Add(c)
}

// Unregister removes a connection from its room (if any) and stops its
// write pump. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.conns.Remove(c)

	h.mu.Lock()
	key := roomKey(c.room)
	if clients, ok := h.rooms[key]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.rooms, key)
		}
	}
	h.mu.Unlock()
}

// Subscribe adds a connection to a room's broadcast scope.
func (h *Hub) Subscribe(c *Client, room string) {
	h.mu.Lock()
	c.room = room
	key := roomKey(room)
	if h.rooms[key] == nil {
		h.rooms[key] = make(map[*Client]struct{})
	}
	h.rooms[key][c] = struct{}{}
	h.mu.Unlock()
}

// SendTo delivers an event to a single connection.
func (h *Hub) SendTo(c *Client, event string, payload any) {
	data, ok := marshalEvent(event, payload)
	if !ok {
		return
	}
	h.conns.Send(c, data)
}

// Broadcast delivers an event to every connection in a room.
func (h *Hub) Broadcast(room, event string, payload any) {
	h.broadcast(room, nil, event, payload)
}

// BroadcastExcept delivers an event to every connection in a room except one.
func (h *Hub) BroadcastExcept(room string, except *Client, event string, payload any) {
	h.broadcast(room, except, event, payload)
}

func (h *Hub) broadcast(room string, except *Client, event string, payload any) {
	data, ok := marshalEvent(event, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	clients := h.rooms[roomKey(room)]
	// Copy the set so the lock is released before sending.
	targets := make([]*Client, 0, len(clients))
	for c := range clients {
		if c != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.conns.Send(c, data)
	}
}

// RoomCount returns the number of connections subscribed to a room.
func (h *Hub) RoomCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomKey(room)])
}

// Shutdown closes every connection and refuses new ones.
func (h *Hub) Shutdown() {
	h.conns.Shutdown()

	h.mu.Lock()
	h.rooms = make(map[string]map[*Client]struct{})
	h.mu.Unlock()
}

func roomKey(room string) string {
	return strings.ToLower(strings.TrimSpace(room))
}

// marshalEvent wraps a payload in the wire envelope.
func marshalEvent(event string, payload any) ([]byte, bool) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ws: failed to marshal %s payload: %v", event, err)
		return nil, false
	}
	env, err := json.Marshal(Envelope{Type: event, Payload: data})
	if err != nil {
		log.Printf("ws: failed to marshal %s envelope: %v", event, err)
		return nil, false
	}
	return env, true
}

// outbox binds the hub's broadcast scopes to a single connection. It is
// what the session layer sees as its Outbox.
type outbox struct {
	hub    *Hub
	client *Client
}

func (o *outbox) Subscribe(room string) {
	o.hub.Subscribe(o.client, room)
}

func (o *outbox) Send(event string, payload any) {
	o.hub.SendTo(o.client, event, payload)
}

func (o *outbox) BroadcastOthers(room, event string, payload any) {
	o.hub.BroadcastExcept(room, o.client, event, payload)
}

func (o *outbox) Broadcast(room, event string, payload any) {
	o.hub.Broadcast(room, event, payload)
}
