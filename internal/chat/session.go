// Package chat implements the per-connection session protocol: the state
// machine that turns inbound client events into registry updates and
// broadcasts.
package chat

import (
	"errors"
	"fmt"

	"github.com/lucasgreene/chatrelay/internal/message"
	"github.com/lucasgreene/chatrelay/internal/metrics"
	"github.com/lucasgreene/chatrelay/internal/moderation"
	"github.com/lucasgreene/chatrelay/internal/presence"
	"github.com/lucasgreene/chatrelay/internal/ratelimit"
)

// Outbound event names.
const (
	EventMessage  = "message"
	EventLocation = "locationMessage"
	EventRoomData = "roomData"
)

// systemUsername is the sender of server-generated envelopes.
const systemUsername = "System"

var (
	// ErrUnknownUser is returned for chat events from a connection that has
	// not joined a room.
	ErrUnknownUser = errors.New("unknown user: join a room first")

	// ErrProfanity is returned when the moderation predicate flags a message.
	ErrProfanity = errors.New("profanity is not allowed")

	// ErrTooManyMessages is returned when the connection exceeds its send rate.
	ErrTooManyMessages = errors.New("too many messages, slow down")

	// ErrAlreadyJoined is returned for a join event on a session that is
	// already in a room.
	ErrAlreadyJoined = errors.New("already joined a room")
)

// State is the lifecycle of a session.
type State int

const (
	// StateConnected is the initial state: connected but not in a room.
	StateConnected State = iota
	// StateJoined means the session is associated with a room and username.
	StateJoined
	// StateDisconnected is terminal.
	StateDisconnected
)

// Outbox delivers outbound events on behalf of one connection. The three
// send methods are the three broadcast scopes the protocol uses; join's
// welcome and a chat broadcast deliberately take different ones.
type Outbox interface {
	// Subscribe adds this connection to the room's broadcast scope.
	Subscribe(room string)

	// Send delivers an event to this connection only.
	Send(event string, payload any)

	// BroadcastOthers delivers to every connection in the room except this one.
	BroadcastOthers(room, event string, payload any)

	// Broadcast delivers to every connection in the room, this one included.
	Broadcast(room, event string, payload any)
}

// Session drives the protocol for a single connection. Events for one
// connection arrive from a single goroutine (the transport read loop), so
// the session itself needs no locking; the registry serializes access
// across connections.
type Session struct {
	id       string
	registry presence.Registry
	filter   moderation.Filter
	out      Outbox
	limiter  *ratelimit.Limiter
	metrics  *metrics.Collector
	state    State
}

// Option configures a Session.
type Option func(*Session)

// WithRateLimiter enables per-connection send rate limiting.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(s *Session) { s.limiter = l }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Session) { s.metrics = c }
}

// NewSession creates a session for the connection with the given identity.
func NewSession(id string, registry presence.Registry, filter moderation.Filter, out Outbox, opts ...Option) *Session {
	s := &Session{
		id:       id,
		registry: registry,
		filter:   filter,
		out:      out,
		state:    StateConnected,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the connection identity the session is bound to.
func (s *Session) ID() string {
	return s.id
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Join registers the user and announces them to the room. On failure the
// session stays in StateConnected, so join is retryable. On success the
// joiner gets a private welcome, the rest of the room a join notice, and
// everyone (joiner included) a fresh roster, observed in that order.
func (s *Session) Join(username, room string) error {
	if s.state != StateConnected {
		return ErrAlreadyJoined
	}

	user, err := s.registry.Add(s.id, username, room)
	if err != nil {
		s.metrics.RecordJoinFailure(joinFailureReason(err))
		return err
	}

	s.state = StateJoined
	s.out.Subscribe(user.Room)

	s.out.Send(EventMessage, message.New(systemUsername, "Welcome!"))
	s.out.BroadcastOthers(user.Room, EventMessage,
		message.New(systemUsername, user.Username+" has joined"))
	s.out.Broadcast(user.Room, EventRoomData, s.roomData(user.Room))

	s.metrics.RecordJoin()
	return nil
}

// SendMessage moderates and broadcasts a chat message to the whole room,
// sender included. A flagged or rate-limited message produces no broadcast
// at all.
func (s *Session) SendMessage(text string) error {
	user := s.registry.Get(s.id)
	if user == nil {
		return ErrUnknownUser
	}
	if s.limiter != nil && !s.limiter.Allow(s.id) {
		return ErrTooManyMessages
	}
	if s.filter != nil && s.filter(text) {
		return ErrProfanity
	}

	s.out.Broadcast(user.Room, EventMessage, message.New(user.Username, text))
	s.metrics.RecordMessage()
	return nil
}

// SendLocation broadcasts a maps link for the given coordinates to the
// whole room, sender included. Coordinates are passed through unvalidated.
func (s *Session) SendLocation(latitude, longitude float64) error {
	user := s.registry.Get(s.id)
	if user == nil {
		return ErrUnknownUser
	}
	if s.limiter != nil && !s.limiter.Allow(s.id) {
		return ErrTooManyMessages
	}

	location := fmt.Sprintf("https://google.com/maps?q=%v,%v", latitude, longitude)
	s.out.Broadcast(user.Room, EventLocation, message.NewLocation(user.Username, location))
	s.metrics.RecordLocation()
	return nil
}

// Disconnect ends the session. It is idempotent and never fails. The user
// is looked up by this session's own connection identity; if one was
// registered, the remaining room members get a leave notice and an updated
// roster.
func (s *Session) Disconnect() {
	if s.state == StateDisconnected {
		return
	}
	s.state = StateDisconnected

	if s.limiter != nil {
		s.limiter.Forget(s.id)
	}

	user := s.registry.Remove(s.id)
	if user == nil {
		return
	}

	s.out.Broadcast(user.Room, EventMessage,
		message.New(systemUsername, user.Username+" has left"))
	s.out.Broadcast(user.Room, EventRoomData, s.roomData(user.Room))
}

// roomData builds the current roster payload for a room.
func (s *Session) roomData(room string) message.RoomData {
	users := s.registry.InRoom(room)
	entries := make([]message.RosterEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, message.RosterEntry{Username: u.Username})
	}
	return message.RoomData{Room: room, Users: entries}
}

func joinFailureReason(err error) string {
	switch {
	case errors.Is(err, presence.ErrUsernameTaken):
		return "username_taken"
	case errors.Is(err, presence.ErrUsernameRequired), errors.Is(err, presence.ErrRoomRequired):
		return "validation"
	default:
		return "other"
	}
}
