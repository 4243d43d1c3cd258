// Package players tracks every identity the server has ever seen and the
// live connection state attached to it. Players are created on first
// contact (or loaded at startup) and never deleted, only deactivated.
package players

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/ubermundo/server/internal/core/data"
	"github.com/ubermundo/server/internal/packets"
)

// IdentitySize is the exact length of an external identity key, as the
// protocol defines it.
const IdentitySize = packets.IdentitySize

// Conn is the send side of a live client session. Broadcast paths only ever
// need to push frames and name the peer.
type Conn interface {
	Send(payload []byte) error
	IPAddr() string
}

// WorldEvictor removes a player from a world's roster, resetting the
// player's current world in the same critical section. The universe
// implements it; the indirection keeps this package free of a dependency
// cycle on the world registry.
type WorldEvictor interface {
	RemovePlayerFromWorld(p *Player, worldID int32)
}

// Player is the stable in-memory record for one external identity.
type Player struct {
	id       int32
	identity [IdentitySize]byte

	// 0 means no world. Written only while the owning roster's lock is
	// held; read freely.
	currentWorld atomic.Int32

	mu          sync.Mutex
	conn        Conn
	lastContact time.Time
	x, y, z     int16
}

func newPlayer(id int32, identity []byte) *Player {
	p := &Player{id: id}
	copy(p.identity[:], identity)
	return p
}

func (p *Player) ID() int32 { return p.id }

// Identity returns the 8-byte external identity key.
func (p *Player) Identity() []byte { return p.identity[:] }

// CurrentWorld returns the id of the world the player occupies, 0 for none.
func (p *Player) CurrentWorld() int32 { return p.currentWorld.Load() }

// SetCurrentWorld records the player's world. Callers must hold the lock of
// the roster being mutated so membership and this field move together.
func (p *Player) SetCurrentWorld(worldID int32) { p.currentWorld.Store(worldID) }

// Conn returns the live session send handle, or nil when disconnected.
func (p *Player) Conn() Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

// SetConn binds a live session to the player.
func (p *Player) SetConn(c Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn = c
}

// ClearConn detaches c from the player if it is still the bound session. A
// reconnect may already have replaced it, in which case this is a no-op.
func (p *Player) ClearConn(c Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == c {
		p.conn = nil
	}
}

// Touch refreshes the last-contact timestamp.
func (p *Player) Touch(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastContact = now
}

// LastContact returns the time of the most recent client contact.
func (p *Player) LastContact() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastContact
}

// SetPosition records the player's coarse position in decameters.
func (p *Player) SetPosition(x, y, z int16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.x, p.y, p.z = x, y, z
}

// Position returns the player's coarse position in decameters.
func (p *Player) Position() (x, y, z int16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.x, p.y, p.z
}

func (p *Player) String() string {
	return fmt.Sprintf("player %d (world %d)", p.id, p.CurrentWorld())
}

// Registry maps player ids to Players and external identities to player
// ids. Lock order across the core: Registry lock before the universe lock
// before any roster lock, never the reverse.
type Registry struct {
	log *logrus.Logger
	db  *gorm.DB
	clk clock.Clock

	// Bound once during wiring, before any traffic.
	worlds WorldEvictor

	mu         sync.Mutex
	byID       map[int32]*Player
	byIdentity map[uint64]int32

	// Reaper cursor state, see reaper.go.
	reapKeys  []int32
	reapIndex int
}

func NewRegistry(db *gorm.DB, logger *logrus.Logger, clk clock.Clock) *Registry {
	return &Registry{
		log:        logger,
		db:         db,
		clk:        clk,
		byID:       make(map[int32]*Player),
		byIdentity: make(map[uint64]int32),
	}
}

// BindWorlds attaches the world registry used to evict players from rosters
// on deactivation. Must be called before the registry serves traffic.
func (r *Registry) BindWorlds(w WorldEvictor) { r.worlds = w }

// Load warms the registry with every user row. Called once at startup
// before the listener accepts connections.
func (r *Registry) Load() error {
	users, err := data.AllUsers(r.db)
	if err != nil {
		return fmt.Errorf("loading users: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range users {
		p := newPlayer(u.ID, u.Identity)
		r.byID[p.id] = p
		r.byIdentity[identityKey(p.identity[:])] = p.id
	}
	r.log.Infof("loaded %d known players", len(users))
	return nil
}

// ResolveOrCreate returns the Player for an announced external identity,
// inserting a new user row on first contact. The identity must be exactly
// 8 bytes.
func (r *Registry) ResolveOrCreate(identity []byte) (*Player, error) {
	if len(identity) != IdentitySize {
		return nil, fmt.Errorf("identity must be %d bytes, got %d", IdentitySize, len(identity))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := identityKey(identity)
	if id, ok := r.byIdentity[key]; ok {
		if p, ok := r.byID[id]; ok {
			p.Touch(r.clk.Now())
			return p, nil
		}
	}

	user := &data.User{Identity: append([]byte(nil), identity...)}
	if err := data.CreateUser(r.db, user); err != nil {
		return nil, fmt.Errorf("creating user record: %w", err)
	}

	p := newPlayer(user.ID, identity)
	p.Touch(r.clk.Now())
	r.byID[p.id] = p
	r.byIdentity[key] = p.id

	r.log.Infof("created player %d for new identity", p.id)
	return p, nil
}

// Get returns the player with the given id, if known.
func (r *Registry) Get(id int32) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	return p, ok
}

// Count returns the number of known players, connected or not.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Deactivate removes the player from its current world and resets its
// world to none. Unknown or zero ids and already-inactive players are
// no-ops; the player record itself is never deleted.
func (r *Registry) Deactivate(id int32) {
	if id == 0 {
		return
	}
	r.mu.Lock()
	p, ok := r.byID[id]
	r.mu.Unlock()
	if !ok {
		return
	}
	r.deactivate(p)
}

func (r *Registry) deactivate(p *Player) {
	if worldID := p.CurrentWorld(); worldID != 0 {
		r.worlds.RemovePlayerFromWorld(p, worldID)
	}
}

func identityKey(identity []byte) uint64 {
	return binary.LittleEndian.Uint64(identity)
}
