// Package message builds the immutable envelopes the relay sends to clients.
package message

import "time"

// Envelope is a timestamped chat message ready for transmission.
// CreatedAt is milliseconds since the Unix epoch.
type Envelope struct {
	Username  string `json:"username"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"`
}

// LocationEnvelope carries a shared location link instead of text.
type LocationEnvelope struct {
	Username  string `json:"username"`
	Location  string `json:"location"`
	CreatedAt int64  `json:"createdAt"`
}

// RosterEntry is one user in a roomData roster.
type RosterEntry struct {
	Username string `json:"username"`
}

// RoomData is the roster payload broadcast whenever room membership changes.
type RoomData struct {
	Room  string        `json:"room"`
	Users []RosterEntry `json:"users"`
}

// New returns a text envelope stamped with the current wall clock.
// The text is not validated here; moderation happens before formatting.
func New(username, text string) Envelope {
	return Envelope{
		Username:  username,
		Text:      text,
		CreatedAt: time.Now().UnixMilli(),
	}
}

// NewLocation returns a location envelope stamped with the current wall
// clock. The location string is taken as-is; callers build it from raw
// coordinates.
func NewLocation(username, location string) LocationEnvelope {
	return LocationEnvelope{
		Username:  username,
		Location:  location,
		CreatedAt: time.Now().UnixMilli(),
	}
}
