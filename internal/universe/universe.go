// Package universe is the process-wide cache of all world metadata and, per
// world, the roster of players currently inside it. Every mutation that
// touches both registry state and a roster takes the registry lock first;
// no operation ever holds two roster locks at once.
package universe

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/ubermundo/server/internal/core/data"
	"github.com/ubermundo/server/internal/players"
)

type Universe struct {
	log *logrus.Logger
	db  *gorm.DB

	mu     sync.Mutex
	worlds map[int32]*World
}

func New(db *gorm.DB, logger *logrus.Logger) *Universe {
	return &Universe{
		log:    logger,
		db:     db,
		worlds: make(map[int32]*World),
	}
}

// Load warms the cache with every world row. Called once at startup before
// the listener accepts connections.
func (u *Universe) Load() error {
	rows, err := data.AllWorlds(u.db)
	if err != nil {
		return fmt.Errorf("loading worlds: %w", err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	for _, row := range rows {
		w := newWorld(metadataFromRow(row))
		u.worlds[w.id] = w
	}
	u.log.Infof("loaded %d worlds", len(rows))
	return nil
}

// Get returns the cached world with the given id, if any.
func (u *Universe) Get(id int32) (*World, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	w, ok := u.worlds[id]
	return w, ok
}

// WorldCount returns the number of cached worlds.
func (u *Universe) WorldCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.worlds)
}

// Create persists a new world row to obtain its id, then caches it. Both
// happen under the registry lock so two concurrent creates can never race
// on the same id.
func (u *Universe) Create(ownerID int32, visibility uint8, name string, version int32, updateInterval float32) (*World, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	row := &data.World{
		OwnerID:        ownerID,
		Visibility:     visibility,
		Name:           name,
		Version:        version,
		UpdateInterval: updateInterval,
		NextObjectID:   1,
	}
	if err := data.CreateWorld(u.db, row); err != nil {
		return nil, fmt.Errorf("creating world: %w", err)
	}

	w := newWorld(metadataFromRow(*row))
	u.worlds[w.id] = w
	u.log.Infof("created world %d %q owned by player %d", w.id, name, ownerID)
	return w, nil
}

// UpsertMetadata applies a client-supplied metadata record: a zero id
// inserts a fresh row, otherwise the existing row and cached copy are
// overwritten. A nonzero id with no backing row is an error; nothing is
// cached for it. The object-id counter is untouched either way.
func (u *Universe) UpsertMetadata(md Metadata) (*World, error) {
	if md.ID == 0 {
		return u.Create(md.OwnerID, md.Visibility, md.Name, md.Version, md.UpdateInterval)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	row := &data.World{
		ID:             md.ID,
		OwnerID:        md.OwnerID,
		Visibility:     md.Visibility,
		Name:           md.Name,
		Version:        md.Version,
		UpdateInterval: md.UpdateInterval,
	}
	if err := data.UpdateWorld(u.db, row); err != nil {
		return nil, fmt.Errorf("updating world %d: %w", md.ID, err)
	}

	w, ok := u.worlds[md.ID]
	if !ok {
		w = newWorld(md)
		u.worlds[md.ID] = w
		return w, nil
	}
	w.setMetadata(md)
	return w, nil
}

// Transfer moves a player between two cached worlds. It fails closed: if
// either world is absent it returns false and changes nothing.
func (u *Universe) Transfer(p *players.Player, fromID, toID int32) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	src, okSrc := u.worlds[fromID]
	dst, okDst := u.worlds[toID]
	if !okSrc || !okDst {
		return false
	}

	src.removePlayer(p)
	dst.addPlayer(p)
	return true
}

// MovePlayer places a player in the world with id toID, leaving whichever
// world it currently occupies. If the destination is not cached the move
// fails and the player is left without a current world (its old roster, if
// cached, no longer lists it). Returns true only if the player entered the
// destination.
func (u *Universe) MovePlayer(p *players.Player, toID int32) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	if src, ok := u.worlds[p.CurrentWorld()]; ok {
		src.removePlayer(p)
	}

	dst, ok := u.worlds[toID]
	if !ok {
		return false
	}
	dst.addPlayer(p)
	return true
}

// RemovePlayerFromWorld takes the player out of the given world's roster
// and resets its current world. Used by player deactivation.
func (u *Universe) RemovePlayerFromWorld(p *players.Player, worldID int32) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if w, ok := u.worlds[worldID]; ok {
		w.removePlayer(p)
		return
	}
	// The roster is gone or never existed; still drop the back-reference.
	p.SetCurrentWorld(0)
}

// SnapshotAllMetadata returns a point-in-time copy of every cached world's
// metadata, ordered by world id.
func (u *Universe) SnapshotAllMetadata() []Metadata {
	u.mu.Lock()
	defer u.mu.Unlock()

	snapshot := make([]Metadata, 0, len(u.worlds))
	for _, w := range u.worlds {
		snapshot = append(snapshot, w.Metadata())
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })
	return snapshot
}

// NextObjectID advances the world's durable object-id counter and returns
// the new value. Ids are monotonic and never reused; on failure the error
// is surfaced rather than a sentinel value.
func (u *Universe) NextObjectID(w *World) (int32, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	next, err := data.IncrementAndFetchObjectID(u.db, w.id)
	if err != nil {
		return 0, err
	}
	w.setNextObjectID(next)
	return next, nil
}

func metadataFromRow(row data.World) Metadata {
	return Metadata{
		ID:             row.ID,
		Name:           row.Name,
		OwnerID:        row.OwnerID,
		Visibility:     row.Visibility,
		Version:        row.Version,
		UpdateInterval: row.UpdateInterval,
		NextObjectID:   row.NextObjectID,
	}
}
