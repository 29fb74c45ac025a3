// Package world mirrors the server's roster and avatar table.
//
// The Store is mutated only by reconciliation of inbound messages and is not safe for
// concurrent use; the owning session applies messages and draws from the same goroutine.
package world

import (
	"sort"

	"github.com/irishsmurf/go-mmo-client/protocol"
)

// Store holds the players and avatar definitions known to this client.
type Store struct {
	players  map[string]protocol.Player
	avatars  map[string]protocol.Avatar
	localID  string
	sortedID []string // cached ascending ids, nil when stale
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		players: make(map[string]protocol.Player),
		avatars: make(map[string]protocol.Avatar),
	}
}

// Change describes what a reconciliation touched.
type Change struct {
	// Changed is false when the update left the store as it was.
	Changed bool
	// LocalAffected is true when the local player's entry was written or removed.
	LocalAffected bool
}

// ApplyJoin replaces the roster and avatar table with the server snapshot and records the
// local player id. The caller handles rejected joins; ApplyJoin assumes success.
func (s *Store) ApplyJoin(localID string, players map[string]protocol.Player, avatars map[string]protocol.Avatar) Change {
	s.players = make(map[string]protocol.Player, len(players))
	for id, p := range players {
		s.players[id] = p
	}
	s.avatars = make(map[string]protocol.Avatar, len(avatars))
	for name, a := range avatars {
		s.avatars[name] = a
	}
	s.localID = localID
	s.sortedID = nil
	return Change{Changed: true, LocalAffected: true}
}

// ApplyMoved merges a partial roster: ids in update overwrite their entry wholesale, all
// other entries are left untouched.
func (s *Store) ApplyMoved(update map[string]protocol.Player) Change {
	var c Change
	for id, p := range update {
		old, existed := s.players[id]
		if existed && old == p {
			continue
		}
		if !existed {
			s.sortedID = nil
		}
		s.players[id] = p
		c.Changed = true
		if id == s.localID && s.localID != "" {
			c.LocalAffected = true
		}
	}
	return c
}

// ApplyJoined inserts a player and, if its avatar name is not yet known, the avatar.
// Existing avatar definitions are never overwritten.
func (s *Store) ApplyJoined(p protocol.Player, avatar *protocol.Avatar) Change {
	if _, ok := s.players[p.ID]; !ok {
		s.sortedID = nil
	}
	s.players[p.ID] = p
	if avatar != nil {
		name := avatar.Name
		if name == "" {
			name = p.Avatar
		}
		if _, known := s.avatars[name]; !known && name != "" {
			s.avatars[name] = *avatar
		}
	}
	return Change{Changed: true, LocalAffected: p.ID == s.localID && s.localID != ""}
}

// ApplyLeft removes id from the roster. Unknown ids are a no-op.
func (s *Store) ApplyLeft(id string) Change {
	if _, ok := s.players[id]; !ok {
		return Change{}
	}
	delete(s.players, id)
	s.sortedID = nil
	return Change{Changed: true, LocalAffected: id == s.localID && s.localID != ""}
}

// LocalID returns the id assigned at join, or "" before the first accepted join.
func (s *Store) LocalID() string { return s.localID }

// Local returns the local player's entry.
func (s *Store) Local() (protocol.Player, bool) {
	if s.localID == "" {
		return protocol.Player{}, false
	}
	p, ok := s.players[s.localID]
	return p, ok
}

// Player looks up one roster entry.
func (s *Store) Player(id string) (protocol.Player, bool) {
	p, ok := s.players[id]
	return p, ok
}

// Avatar looks up an avatar definition by name.
func (s *Store) Avatar(name string) (protocol.Avatar, bool) {
	a, ok := s.avatars[name]
	return a, ok
}

// Count is the number of players in the roster.
func (s *Store) Count() int { return len(s.players) }

// AvatarCount is the number of known avatar definitions.
func (s *Store) AvatarCount() int { return len(s.avatars) }

// SortedIDs returns the roster ids in ascending order. This is the draw order.
// The returned slice is shared; callers must not modify it.
func (s *Store) SortedIDs() []string {
	if s.sortedID == nil {
		ids := make([]string, 0, len(s.players))
		for id := range s.players {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		s.sortedID = ids
	}
	return s.sortedID
}

// Each calls fn for every player in ascending id order.
func (s *Store) Each(fn func(p protocol.Player)) {
	for _, id := range s.SortedIDs() {
		fn(s.players[id])
	}
}

// Snapshot returns a copy of the roster, mainly for tests and tracing.
func (s *Store) Snapshot() map[string]protocol.Player {
	out := make(map[string]protocol.Player, len(s.players))
	for id, p := range s.players {
		out[id] = p
	}
	return out
}
