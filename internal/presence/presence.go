// Package presence tracks which connection is present in which room.
//
// A user exists from a successful Add until Remove; there is no partial or
// mutable state in between. Rooms are not stored anywhere: a room exists
// exactly while at least one user names it, which keeps membership the
// single source of truth.
package presence

import (
	"errors"
	"strings"
)

// User is one connection's presence in a room. ID is the transport-assigned
// connection identity, unique per live connection. Username and Room keep
// their display form; comparisons use the trimmed, lowercased form.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Room     string `json:"room"`
}

var (
	// ErrUsernameRequired is returned when the username is empty after trimming.
	ErrUsernameRequired = errors.New("username is required")

	// ErrRoomRequired is returned when the room name is empty after trimming.
	ErrRoomRequired = errors.New("room is required")

	// ErrUsernameTaken is returned when another user in the same room already
	// holds the username, compared case-insensitively.
	ErrUsernameTaken = errors.New("username is already in use")
)

// Registry stores the users currently present, keyed by connection identity.
// Implementations must serialize Add calls so that per-room username
// uniqueness holds under concurrent joins.
type Registry interface {
	// Add registers a user. It fails with ErrUsernameRequired or
	// ErrRoomRequired on empty input and ErrUsernameTaken on a room-scoped
	// collision.
	Add(id, username, room string) (*User, error)

	// Remove deletes and returns the user with the given connection
	// identity, or nil if none exists. Removing an unknown identity is a
	// valid silent path, not an error.
	Remove(id string) *User

	// Get returns the user with the given connection identity, or nil.
	Get(id string) *User

	// InRoom returns the users whose room matches case-insensitively.
	InRoom(room string) []*User

	// Rooms returns the display names of currently non-empty rooms.
	Rooms() []string
}

// normalize returns the trimmed display form and the lowercased key form.
func normalize(s string) (display, key string) {
	display = strings.TrimSpace(s)
	return display, strings.ToLower(display)
}

// validate normalizes both fields and rejects empty input.
func validate(username, room string) (userDisplay, userKey, roomDisplay, roomKey string, err error) {
	userDisplay, userKey = normalize(username)
	roomDisplay, roomKey = normalize(room)
	if userDisplay == "" {
		return "", "", "", "", ErrUsernameRequired
	}
	if roomDisplay == "" {
		return "", "", "", "", ErrRoomRequired
	}
	return userDisplay, userKey, roomDisplay, roomKey, nil
}
