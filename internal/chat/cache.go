package chat

import (
	"sync"

	"greensitter/internal/models"
)

// MessageCache maps chat room ids to their messages in arrival order
type MessageCache struct {
	mu    sync.RWMutex
	rooms map[string][]models.Message
}

func NewMessageCache() *MessageCache {
	return &MessageCache{rooms: make(map[string][]models.Message)}
}

// ReplaceAll drops every cached room and stores rooms instead
func (c *MessageCache) ReplaceAll(rooms map[string][]models.Message) {
	fresh := make(map[string][]models.Message, len(rooms))
	for id, msgs := range rooms {
		fresh[id] = append([]models.Message(nil), msgs...)
	}

	c.mu.Lock()
	c.rooms = fresh
	c.mu.Unlock()
}

// Set replaces messages of a single room
func (c *MessageCache) Set(roomID string, msgs []models.Message) {
	c.mu.Lock()
	c.rooms[roomID] = append([]models.Message(nil), msgs...)
	c.mu.Unlock()
}

// Messages returns a copy of the room's messages, nil for unknown rooms
func (c *MessageCache) Messages(roomID string) []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	msgs, ok := c.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out
}

// Len returns the number of cached messages of a room
func (c *MessageCache) Len(roomID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rooms[roomID])
}

// Rooms returns the number of cached rooms
func (c *MessageCache) Rooms() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rooms)
}

// MissingImages returns the paths that no cached image message references
func (c *MessageCache) MissingImages(paths []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	known := make(map[string]struct{})
	for _, msgs := range c.rooms {
		for _, m := range msgs {
			for _, path := range m.Image {
				known[path] = struct{}{}
			}
		}
	}

	var missing []string
	for _, path := range paths {
		if _, ok := known[path]; !ok {
			missing = append(missing, path)
		}
	}
	return missing
}

// Drop forgets a room
func (c *MessageCache) Drop(roomID string) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}

// Append adds a confirmed message to the end of a room
func (c *MessageCache) Append(roomID string, m models.Message) {
	c.mu.Lock()
	c.rooms[roomID] = append(c.rooms[roomID], m)
	c.mu.Unlock()
}

// Apply appends m tentatively. The returned Tentative decides its fate by message id,
// so other appends and removals may happen in between.
func (c *MessageCache) Apply(roomID string, m models.Message) *Tentative {
	c.Append(roomID, m)
	return &Tentative{cache: c, roomID: roomID, messageID: m.ID}
}

// remove deletes every message of the room with the given id
func (c *MessageCache) remove(roomID, messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs, ok := c.rooms[roomID]
	if !ok {
		return false
	}

	kept := msgs[:0:0]
	for _, m := range msgs {
		if m.ID != messageID {
			kept = append(kept, m)
		}
	}
	if len(kept) == len(msgs) {
		return false
	}

	c.rooms[roomID] = kept
	return true
}

// Tentative is a message applied to the cache before the remote save was confirmed
type Tentative struct {
	cache     *MessageCache
	roomID    string
	messageID string

	once sync.Once
}

// MessageID returns the id the tentative message was applied with
func (t *Tentative) MessageID() string {
	return t.messageID
}

// Commit keeps the message. Commit and Revert take effect at most once in total.
func (t *Tentative) Commit() {
	t.once.Do(func() {})
}

// Revert removes the message and reports whether it was still cached
func (t *Tentative) Revert() bool {
	var removed bool
	t.once.Do(func() {
		removed = t.cache.remove(t.roomID, t.messageID)
	})
	return removed
}
