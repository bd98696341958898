// Package realtime owns the live connection registry: which connections are
// in which room, which email each connection answers for, and the fan-out
// paths over both indexes. The registry is the single source of truth for
// presence; nothing else holds membership state.
package realtime

import (
	"sync"
	"time"

	"codecollab/api/internal/collab"
)

// Client is a registered connection as the registry sees it. Send must be
// non-blocking; delivery is at-most-once with no retry.
type Client interface {
	ID() string
	Send(payload []byte) error
}

// UserSummary identifies the user behind a joined connection.
type UserSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type memberEntry struct {
	client    Client
	partition *roomPartition
	user      UserSummary
	joinedAt  time.Time
}

// roomPartition serializes all membership mutations and broadcasts for one
// room. Rooms are independent; nothing ever holds two partition locks.
type roomPartition struct {
	name string

	mu      sync.Mutex
	closed  bool
	members map[string]*memberEntry
}

// Registry tracks room membership and email identification for live
// connections. Operations for a single connection (Join, Leave, Identify,
// Disconnect) are driven by that connection's event loop and are not
// invoked concurrently with each other; operations for different
// connections interleave freely.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]*roomPartition
	members map[string]*memberEntry
	emails  map[string]map[string]Client
	emailOf map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:   make(map[string]*roomPartition),
		members: make(map[string]*memberEntry),
		emails:  make(map[string]map[string]Client),
		emailOf: make(map[string]string),
	}
}

// Join admits a connection to a room, replacing any prior membership, and
// broadcasts the new presence count to the room. The count returned
// includes the joining connection. The membership insert and the presence
// broadcast happen under the room's lock, so no other connection can
// observe an intermediate state.
func (r *Registry) Join(client Client, room string, user UserSummary) int {
	r.Leave(client.ID())

	entry := &memberEntry{client: client, user: user, joinedAt: time.Now()}
	count := r.admit(room, client.ID(), entry)

	r.mu.Lock()
	r.members[client.ID()] = entry
	r.mu.Unlock()
	return count
}

// admit inserts the entry and broadcasts presence under the partition lock.
func (r *Registry) admit(room, connID string, entry *memberEntry) int {
	p := r.lockPartition(room)
	defer p.mu.Unlock()

	entry.partition = p
	p.members[connID] = entry
	count := len(p.members)
	frame := Encode(EventUsersUpdate, PresencePayload{Room: room, Count: count})
	for _, member := range p.members {
		_ = member.client.Send(frame)
	}
	return count
}

// Leave removes a connection's membership and broadcasts the reduced
// presence count. Safe to call for connections that never joined or
// already left.
func (r *Registry) Leave(connID string) {
	r.mu.Lock()
	entry := r.members[connID]
	delete(r.members, connID)
	r.mu.Unlock()
	if entry == nil {
		return
	}

	p := entry.partition
	if r.evict(p, connID) {
		r.mu.Lock()
		if r.rooms[p.name] == p {
			delete(r.rooms, p.name)
		}
		r.mu.Unlock()
	}
}

// evict removes the member and broadcasts the reduced count under the
// partition lock. Reports whether the partition emptied and was closed.
func (r *Registry) evict(p *roomPartition, connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.members, connID)
	count := len(p.members)
	if count == 0 {
		p.closed = true
		return true
	}
	frame := Encode(EventUsersUpdate, PresencePayload{Room: p.name, Count: count})
	for _, member := range p.members {
		_ = member.client.Send(frame)
	}
	return false
}

// Disconnect runs the full cleanup for a dropped connection: membership,
// presence and email identification. Idempotent, and performed
// synchronously with the disconnect event.
func (r *Registry) Disconnect(connID string) {
	r.Leave(connID)

	r.mu.Lock()
	if email, ok := r.emailOf[connID]; ok {
		delete(r.emailOf, connID)
		if set := r.emails[email]; set != nil {
			delete(set, connID)
			if len(set) == 0 {
				delete(r.emails, email)
			}
		}
	}
	r.mu.Unlock()
}

// Identify associates a connection with an email for invite notification.
// Re-identifying with a new email moves the association; identifying twice
// with the same email is a no-op. Many connections may share one email.
func (r *Registry) Identify(client Client, email string) {
	email = collab.NormalizeEmail(email)
	if email == "" {
		return
	}
	connID := client.ID()

	r.mu.Lock()
	if prev, ok := r.emailOf[connID]; ok && prev != email {
		if set := r.emails[prev]; set != nil {
			delete(set, connID)
			if len(set) == 0 {
				delete(r.emails, prev)
			}
		}
	}
	set := r.emails[email]
	if set == nil {
		set = make(map[string]Client)
		r.emails[email] = set
	}
	set[connID] = client
	r.emailOf[connID] = email
	r.mu.Unlock()
}

// BroadcastToRoom delivers a frame to every connection currently in the
// room. Fire-and-forget: connections that join afterwards see nothing, and
// failed sends are not retried. Returns the number of deliveries attempted
// successfully.
func (r *Registry) BroadcastToRoom(room string, payload []byte) int {
	if payload == nil {
		return 0
	}
	r.mu.RLock()
	p := r.rooms[room]
	r.mu.RUnlock()
	if p == nil {
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	delivered := 0
	for _, member := range p.members {
		if member.client.Send(payload) == nil {
			delivered++
		}
	}
	return delivered
}

// NotifyByEmail delivers a frame to every connection currently identified
// with the email, across all rooms. Silently a no-op when none match;
// nothing is queued for offline users.
func (r *Registry) NotifyByEmail(email string, payload []byte) int {
	if payload == nil {
		return 0
	}
	email = collab.NormalizeEmail(email)

	r.mu.RLock()
	clients := make([]Client, 0, len(r.emails[email]))
	for _, client := range r.emails[email] {
		clients = append(clients, client)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, client := range clients {
		if client.Send(payload) == nil {
			delivered++
		}
	}
	return delivered
}

// PresenceCount reports the number of connections currently in a room.
func (r *Registry) PresenceCount(room string) int {
	r.mu.RLock()
	p := r.rooms[room]
	r.mu.RUnlock()
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.members)
}

// lockPartition returns the partition for a room with its lock held,
// creating it when absent. A partition emptied by a concurrent Leave is
// marked closed and replaced on the next iteration.
func (r *Registry) lockPartition(room string) *roomPartition {
	for {
		r.mu.Lock()
		p := r.rooms[room]
		if p == nil {
			p = &roomPartition{name: room, members: make(map[string]*memberEntry)}
			r.rooms[room] = p
		}
		r.mu.Unlock()

		p.mu.Lock()
		if !p.closed {
			return p
		}
		p.mu.Unlock()
	}
}
