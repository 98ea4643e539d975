package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"dispatch/internal/domain"
)

// Hub is the room registry of the sockets connected to this instance.
// A connection belongs to any number of rooms; events addressed to a room
// are queued on every member without blocking the publisher.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Conn]struct{}
	conns map[*Conn]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[*Conn]struct{}),
		conns: make(map[*Conn]struct{}),
	}
}

// Publish delivers the event to local members. It lets the Hub serve as
// the event publisher when no cross-instance bus is configured.
func (h *Hub) Publish(_ context.Context, evt domain.Event) {
	h.Deliver(evt)
}

// Deliver queues the event on every connection in its room. Room eviction
// control events change membership instead.
func (h *Hub) Deliver(evt domain.Event) {
	if evt.Type == domain.EventRoomEvict {
		h.Evict(evt.Room, evt.EvictedUser())
		return
	}

	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("[REALTIME] Failed to encode %s event: %v", evt.Type, err)
		return
	}

	h.mu.RLock()
	members := h.rooms[evt.Room.Key()]
	targets := make([]*Conn, 0, len(members))
	for c := range members {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(data) {
			log.Printf("[REALTIME] Send buffer full for %s, dropped %s", c.principal.UserID, evt.Type)
		}
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes the connection from the hub and all its rooms.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; !ok {
		return
	}
	delete(h.conns, c)
	for key := range c.rooms {
		h.removeLocked(c, key)
	}
}

// Join adds the connection to a room.
func (h *Hub) Join(c *Conn, room domain.Room) {
	key := room.Key()

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; !ok {
		return
	}
	members, ok := h.rooms[key]
	if !ok {
		members = make(map[*Conn]struct{})
		h.rooms[key] = members
	}
	members[c] = struct{}{}
	c.rooms[key] = struct{}{}
}

// Leave removes the connection from a room.
func (h *Hub) Leave(c *Conn, room domain.Room) {
	h.mu.Lock()
	h.removeLocked(c, room.Key())
	h.mu.Unlock()
}

// Evict removes userID's connections from room, or all members when userID
// is empty. Returns the number of connections removed.
func (h *Hub) Evict(room domain.Room, userID string) int {
	key := room.Key()

	h.mu.Lock()
	defer h.mu.Unlock()

	var removed []*Conn
	for c := range h.rooms[key] {
		if userID == "" || c.principal.UserID == userID {
			removed = append(removed, c)
		}
	}
	for _, c := range removed {
		h.removeLocked(c, key)
	}
	if len(removed) > 0 {
		log.Printf("[REALTIME] Evicted %d connection(s) from %s", len(removed), key)
	}
	return len(removed)
}

func (h *Hub) removeLocked(c *Conn, key string) {
	delete(c.rooms, key)
	members, ok := h.rooms[key]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, key)
	}
}

// RoomSize returns the number of local members of a room.
func (h *Hub) RoomSize(room domain.Room) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room.Key()])
}

// ConnCount returns the number of registered connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
