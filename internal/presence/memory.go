package presence

import (
	"strings"
	"sync"
)

// Memory is the in-process Registry. A single mutex serializes all access,
// and an ordered slice preserves insertion order for rosters.
type Memory struct {
	mu    sync.Mutex
	byID  map[string]*User
	order []*User
}

// NewMemory creates an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{
		byID: make(map[string]*User),
	}
}

// Add registers a user, enforcing case-insensitive username uniqueness
// within the room.
func (m *Memory) Add(id, username, room string) (*User, error) {
	userDisplay, userKey, roomDisplay, roomKey, err := validate(username, room)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.order {
		if strings.ToLower(u.Room) == roomKey && strings.ToLower(u.Username) == userKey {
			return nil, ErrUsernameTaken
		}
	}

	u := &User{ID: id, Username: userDisplay, Room: roomDisplay}
	m.byID[id] = u
	m.order = append(m.order, u)
	return u, nil
}

// Remove deletes and returns the user with the given connection identity.
func (m *Memory) Remove(id string) *User {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return nil
	}
	delete(m.byID, id)
	for i, other := range m.order {
		if other.ID == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return u
}

// Get returns the user with the given connection identity, or nil.
func (m *Memory) Get(id string) *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

// InRoom returns the room's users in insertion order.
func (m *Memory) InRoom(room string) []*User {
	_, roomKey := normalize(room)

	m.mu.Lock()
	defer m.mu.Unlock()

	var users []*User
	for _, u := range m.order {
		if strings.ToLower(u.Room) == roomKey {
			users = append(users, u)
		}
	}
	return users
}

// Rooms returns the display names of non-empty rooms in first-join order.
func (m *Memory) Rooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{})
	var rooms []string
	for _, u := range m.order {
		key := strings.ToLower(u.Room)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		rooms = append(rooms, u.Room)
	}
	return rooms
}
