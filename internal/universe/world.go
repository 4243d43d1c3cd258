package universe

import (
	"sync"

	"github.com/ubermundo/server/internal/players"
)

// Metadata is the in-memory copy of a world's durable metadata. The
// NextObjectID field is server-side only and is merely a cached view; the
// database row is the source of truth for the counter.
type Metadata struct {
	ID             int32
	Name           string
	OwnerID        int32
	Visibility     uint8
	Version        int32
	UpdateInterval float32
	NextObjectID   int32
}

// World is one cached world: its metadata plus the live roster of players
// currently inside it. Worlds are cached for the process lifetime; there is
// no eviction.
type World struct {
	id int32

	// mu guards both the roster and the metadata copy. Roster membership
	// and the member's CurrentWorld field are only ever changed together
	// under this lock.
	mu     sync.Mutex
	md     Metadata
	roster map[int32]*players.Player
}

func newWorld(md Metadata) *World {
	return &World{
		id:     md.ID,
		md:     md,
		roster: make(map[int32]*players.Player),
	}
}

// ID returns the world's unique id. Immutable once assigned.
func (w *World) ID() int32 { return w.id }

// Metadata returns a copy of the world's metadata.
func (w *World) Metadata() Metadata {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.md
}

// Roster returns a point-in-time copy of the players in the world.
func (w *World) Roster() []*players.Player {
	w.mu.Lock()
	defer w.mu.Unlock()
	roster := make([]*players.Player, 0, len(w.roster))
	for _, p := range w.roster {
		roster = append(roster, p)
	}
	return roster
}

// RosterSize returns the number of players currently in the world.
func (w *World) RosterSize() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.roster)
}

// Contains reports whether the player id is currently in the roster.
func (w *World) Contains(playerID int32) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.roster[playerID]
	return ok
}

// addPlayer and removePlayer are only reached through Universe methods that
// already hold the registry lock, which is what enforces the lock order
// (registry lock, then one roster lock, never two rosters at once).

func (w *World) addPlayer(p *players.Player) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p.SetCurrentWorld(w.id)
	w.roster[p.ID()] = p
}

func (w *World) removePlayer(p *players.Player) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.roster, p.ID())
	p.SetCurrentWorld(0)
}

func (w *World) setMetadata(md Metadata) {
	w.mu.Lock()
	defer w.mu.Unlock()
	// The cached counter only moves through object-id allocation.
	md.NextObjectID = w.md.NextObjectID
	md.ID = w.id
	w.md = md
}

func (w *World) setNextObjectID(next int32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.md.NextObjectID = next
}
