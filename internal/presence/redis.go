package presence

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// opTimeout bounds every Redis round trip.
const opTimeout = 2 * time.Second

// roomsKey is a hash of lowercased room name -> display name, maintained so
// Rooms does not need to scan the keyspace.
const roomsKey = "presence:rooms"

func roomKey(key string) string {
	return "presence:room:" + key
}

func connKey(id string) string {
	return "presence:conn:" + id
}

// RedisRegistry keeps presence in Redis: one hash per room mapping the
// lowercased username to the user record, plus one key per connection for
// identity lookup. The username claim uses HSETNX, so uniqueness holds
// without client-side locking.
type RedisRegistry struct {
	client redis.Cmdable
}

// NewRedis creates a Registry backed by the given Redis client.
func NewRedis(client redis.Cmdable) *RedisRegistry {
	return &RedisRegistry{client: client}
}

// Add registers a user, claiming the room-scoped username atomically.
func (r *RedisRegistry) Add(id, username, room string) (*User, error) {
	userDisplay, userKey, roomDisplay, rKey, err := validate(username, room)
	if err != nil {
		return nil, err
	}

	u := &User{ID: id, Username: userDisplay, Room: roomDisplay}
	data, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	claimed, err := r.client.HSetNX(ctx, roomKey(rKey), userKey, data).Result()
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrUsernameTaken
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, connKey(id), data, 0)
	pipe.HSetNX(ctx, roomsKey, rKey, roomDisplay)
	if _, err := pipe.Exec(ctx); err != nil {
		// Release the claim so a retry is not blocked by a ghost entry.
		r.client.HDel(ctx, roomKey(rKey), userKey)
		return nil, err
	}
	return u, nil
}

// Remove deletes and returns the user with the given connection identity.
func (r *RedisRegistry) Remove(id string) *User {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	u := r.lookup(ctx, id)
	if u == nil {
		return nil
	}

	_, userKey := normalize(u.Username)
	_, rKey := normalize(u.Room)

	pipe := r.client.Pipeline()
	pipe.Del(ctx, connKey(id))
	pipe.HDel(ctx, roomKey(rKey), userKey)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("redis: failed to remove user %s: %v", id, err)
		return nil
	}

	// Drop the room from the listing once its hash is gone.
	n, err := r.client.HLen(ctx, roomKey(rKey)).Result()
	if err == nil && n == 0 {
		r.client.HDel(ctx, roomsKey, rKey)
	}
	return u
}

// Get returns the user with the given connection identity, or nil.
func (r *RedisRegistry) Get(id string) *User {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return r.lookup(ctx, id)
}

func (r *RedisRegistry) lookup(ctx context.Context, id string) *User {
	data, err := r.client.Get(ctx, connKey(id)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		log.Printf("redis: failed to read user %s: %v", id, err)
		return nil
	}
	var u User
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		log.Printf("redis: failed to decode user %s: %v", id, err)
		return nil
	}
	return &u
}

// InRoom returns the room's users. Hash iteration order is unspecified, so
// unlike the in-memory registry no insertion order is promised.
func (r *RedisRegistry) InRoom(room string) []*User {
	_, rKey := normalize(room)

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	vals, err := r.client.HVals(ctx, roomKey(rKey)).Result()
	if err != nil {
		log.Printf("redis: failed to read room %q: %v", room, err)
		return nil
	}

	users := make([]*User, 0, len(vals))
	for _, v := range vals {
		var u User
		if err := json.Unmarshal([]byte(v), &u); err != nil {
			continue
		}
		users = append(users, &u)
	}
	return users
}

// Rooms returns the display names of non-empty rooms.
func (r *RedisRegistry) Rooms() []string {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	names, err := r.client.HVals(ctx, roomsKey).Result()
	if err != nil {
		log.Printf("redis: failed to list rooms: %v", err)
		return nil
	}
	return names
}
