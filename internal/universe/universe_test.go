package universe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/glebarez/sqlite"
	"github.com/go-test/deep"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/ubermundo/server/internal/core/data"
	"github.com/ubermundo/server/internal/players"
)

func setUpUniverse(t *testing.T) (*Universe, *players.Registry) {
	t.Helper()

	testDBFile := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("%s?_pragma=busy_timeout(5000)", testDBFile)))
	if err != nil {
		t.Fatalf("error initializing test database: %s", err)
	}
	if err = db.AutoMigrate(&data.User{}, &data.World{}); err != nil {
		t.Fatalf("error auto migrating db: %s", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	u := New(db, logger)
	registry := players.NewRegistry(db, logger, clock.New())
	registry.BindWorlds(u)
	return u, registry
}

func testPlayer(t *testing.T, registry *players.Registry, seed uint64) *players.Player {
	t.Helper()
	identity := make([]byte, players.IdentitySize)
	binary.LittleEndian.PutUint64(identity, seed)
	p, err := registry.ResolveOrCreate(identity)
	if err != nil {
		t.Fatalf("error creating test player: %s", err)
	}
	return p
}

func createWorld(t *testing.T, u *Universe, name string) *World {
	t.Helper()
	w, err := u.Create(1, 50, name, 1, 1)
	if err != nil {
		t.Fatalf("Create() error: %s", err)
	}
	return w
}

func TestCreateAssignsIDAndCaches(t *testing.T) {
	u, _ := setUpUniverse(t)

	w := createWorld(t, u, "first")
	if w.ID() == 0 {
		t.Error("expected a nonzero world id")
	}

	cached, ok := u.Get(w.ID())
	if !ok || cached != w {
		t.Errorf("Get(%d) = %v, %v; want the created world", w.ID(), cached, ok)
	}
	if got := u.WorldCount(); got != 1 {
		t.Errorf("WorldCount() = %d, want 1", got)
	}
}

func TestLoadWarmsCacheFromDatabase(t *testing.T) {
	u, _ := setUpUniverse(t)
	w := createWorld(t, u, "persisted")

	fresh := New(u.db, u.log)
	if err := fresh.Load(); err != nil {
		t.Fatalf("Load() error: %s", err)
	}

	loaded, ok := fresh.Get(w.ID())
	if !ok {
		t.Fatalf("Get(%d) after Load() found nothing", w.ID())
	}
	if diff := deep.Equal(w.Metadata(), loaded.Metadata()); diff != nil {
		t.Errorf("loaded metadata mismatch: %v", diff)
	}
}

func TestMovePlayerMaintainsRosterInvariant(t *testing.T) {
	u, registry := setUpUniverse(t)
	first := createWorld(t, u, "first")
	second := createWorld(t, u, "second")
	p := testPlayer(t, registry, 1)

	if !u.MovePlayer(p, first.ID()) {
		t.Fatal("MovePlayer() to a cached world failed")
	}
	if p.CurrentWorld() != first.ID() || !first.Contains(p.ID()) {
		t.Fatalf("player not placed: world=%d contains=%t", p.CurrentWorld(), first.Contains(p.ID()))
	}

	if !u.MovePlayer(p, second.ID()) {
		t.Fatal("MovePlayer() between cached worlds failed")
	}
	if first.Contains(p.ID()) {
		t.Error("player still in the old roster after moving")
	}
	if p.CurrentWorld() != second.ID() || !second.Contains(p.ID()) {
		t.Errorf("player not transferred: world=%d contains=%t", p.CurrentWorld(), second.Contains(p.ID()))
	}
}

func TestMovePlayerToUnknownWorld(t *testing.T) {
	u, registry := setUpUniverse(t)
	first := createWorld(t, u, "first")
	p := testPlayer(t, registry, 1)

	if !u.MovePlayer(p, first.ID()) {
		t.Fatal("MovePlayer() to a cached world failed")
	}

	// The move fails but the player has already left its old world.
	if u.MovePlayer(p, first.ID()+100) {
		t.Error("MovePlayer() to an unknown world succeeded")
	}
	if first.Contains(p.ID()) {
		t.Error("player left in the old roster after a failed move")
	}
	if p.CurrentWorld() != 0 {
		t.Errorf("CurrentWorld() = %d after a failed move, want 0", p.CurrentWorld())
	}
}

func TestTransferFailsClosed(t *testing.T) {
	u, registry := setUpUniverse(t)
	first := createWorld(t, u, "first")
	p := testPlayer(t, registry, 1)

	if !u.MovePlayer(p, first.ID()) {
		t.Fatal("MovePlayer() to a cached world failed")
	}

	// Either end missing leaves everything untouched.
	if u.Transfer(p, first.ID(), first.ID()+100) {
		t.Error("Transfer() to an unknown world succeeded")
	}
	if u.Transfer(p, first.ID()+100, first.ID()) {
		t.Error("Transfer() from an unknown world succeeded")
	}
	if !first.Contains(p.ID()) || p.CurrentWorld() != first.ID() {
		t.Errorf("failed transfer moved the player: world=%d contains=%t",
			p.CurrentWorld(), first.Contains(p.ID()))
	}

	second := createWorld(t, u, "second")
	if !u.Transfer(p, first.ID(), second.ID()) {
		t.Fatal("Transfer() between cached worlds failed")
	}
	if first.Contains(p.ID()) || !second.Contains(p.ID()) || p.CurrentWorld() != second.ID() {
		t.Error("transfer did not move the player cleanly")
	}
}

func TestConcurrentMovesSettleConsistently(t *testing.T) {
	u, registry := setUpUniverse(t)
	worlds := []*World{
		createWorld(t, u, "a"),
		createWorld(t, u, "b"),
		createWorld(t, u, "c"),
	}
	p := testPlayer(t, registry, 1)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(dst *World) {
			defer wg.Done()
			u.MovePlayer(p, dst.ID())
		}(worlds[i%len(worlds)])
	}
	wg.Wait()

	// Whatever interleaving happened, the player ends up in exactly one
	// roster and that roster matches its current world.
	var memberships []int32
	for _, w := range worlds {
		if w.Contains(p.ID()) {
			memberships = append(memberships, w.ID())
		}
	}
	if len(memberships) != 1 {
		t.Fatalf("player in %d rosters: %v", len(memberships), memberships)
	}
	if p.CurrentWorld() != memberships[0] {
		t.Errorf("CurrentWorld() = %d but roster membership is %d", p.CurrentWorld(), memberships[0])
	}
}

func TestRemovePlayerFromWorld(t *testing.T) {
	u, registry := setUpUniverse(t)
	w := createWorld(t, u, "first")
	p := testPlayer(t, registry, 1)

	if !u.MovePlayer(p, w.ID()) {
		t.Fatal("MovePlayer() to a cached world failed")
	}

	u.RemovePlayerFromWorld(p, w.ID())
	if w.Contains(p.ID()) {
		t.Error("player still in the roster after removal")
	}
	if p.CurrentWorld() != 0 {
		t.Errorf("CurrentWorld() = %d after removal, want 0", p.CurrentWorld())
	}

	// Removing from a world that is not cached still resets the player.
	p.SetCurrentWorld(w.ID() + 100)
	u.RemovePlayerFromWorld(p, w.ID()+100)
	if p.CurrentWorld() != 0 {
		t.Errorf("CurrentWorld() = %d after uncached removal, want 0", p.CurrentWorld())
	}
}

func TestUpsertMetadataUpdatesExistingWorld(t *testing.T) {
	u, _ := setUpUniverse(t)
	w := createWorld(t, u, "before")

	if _, err := u.NextObjectID(w); err != nil {
		t.Fatalf("NextObjectID() error: %s", err)
	}

	md := w.Metadata()
	md.Name = "after"
	md.Visibility = 90
	md.Version = 2
	md.NextObjectID = 1
	updated, err := u.UpsertMetadata(md)
	if err != nil {
		t.Fatalf("UpsertMetadata() error: %s", err)
	}
	if updated != w {
		t.Fatal("UpsertMetadata() replaced the cached world")
	}

	got := w.Metadata()
	if got.Name != "after" || got.Visibility != 90 || got.Version != 2 {
		t.Errorf("metadata not updated: %+v", got)
	}
	if got.NextObjectID != 2 {
		t.Errorf("NextObjectID = %d after upsert, want the counter preserved at 2", got.NextObjectID)
	}

	// The durable row matches.
	row, err := data.FindWorldByID(u.db, w.ID())
	if err != nil {
		t.Fatalf("FindWorldByID() error: %s", err)
	}
	if row.Name != "after" || row.NextObjectID != 2 {
		t.Errorf("durable row not consistent: %+v", row)
	}
}

func TestUpsertMetadataWithZeroIDCreates(t *testing.T) {
	u, _ := setUpUniverse(t)

	w, err := u.UpsertMetadata(Metadata{
		Name:           "fresh",
		OwnerID:        5,
		Visibility:     10,
		Version:        1,
		UpdateInterval: 1,
	})
	if err != nil {
		t.Fatalf("UpsertMetadata() error: %s", err)
	}
	if w.ID() == 0 {
		t.Error("expected a newly assigned world id")
	}
	if _, ok := u.Get(w.ID()); !ok {
		t.Error("created world not cached")
	}
}

func TestUpsertMetadataUnknownIDRejected(t *testing.T) {
	u, _ := setUpUniverse(t)
	existing := createWorld(t, u, "real")
	missingID := existing.ID() + 100

	_, err := u.UpsertMetadata(Metadata{
		ID:             missingID,
		Name:           "nowhere",
		OwnerID:        5,
		Visibility:     10,
		Version:        1,
		UpdateInterval: 1,
	})
	if !errors.Is(err, data.ErrWorldNotFound) {
		t.Fatalf("UpsertMetadata() error = %v, want ErrWorldNotFound", err)
	}

	// The failed upsert must leave no trace: not in the cache, not in the
	// snapshot, and no durable row.
	if _, ok := u.Get(missingID); ok {
		t.Error("rejected world ended up in the cache")
	}
	if snapshot := u.SnapshotAllMetadata(); len(snapshot) != 1 {
		t.Errorf("snapshot has %d entries, want 1", len(snapshot))
	}
	row, err := data.FindWorldByID(u.db, missingID)
	if err != nil {
		t.Fatalf("FindWorldByID() error: %s", err)
	}
	if row != nil {
		t.Errorf("unexpected durable row: %+v", row)
	}
}

func TestSnapshotAllMetadataOrderedByID(t *testing.T) {
	u, _ := setUpUniverse(t)
	for _, name := range []string{"c", "a", "b"} {
		createWorld(t, u, name)
	}

	snapshot := u.SnapshotAllMetadata()
	if len(snapshot) != 3 {
		t.Fatalf("snapshot has %d entries, want 3", len(snapshot))
	}
	for i := 1; i < len(snapshot); i++ {
		if snapshot[i-1].ID >= snapshot[i].ID {
			t.Errorf("snapshot not ordered by id: %d before %d", snapshot[i-1].ID, snapshot[i].ID)
		}
	}
}

func TestNextObjectIDMonotonicAcrossCallers(t *testing.T) {
	u, _ := setUpUniverse(t)
	w := createWorld(t, u, "counting")

	const callers = 10
	ids := make(chan int32, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := u.NextObjectID(w)
			if err != nil {
				t.Errorf("NextObjectID() error: %s", err)
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int32]bool)
	for id := range ids {
		if seen[id] {
			t.Errorf("object id %d handed out twice", id)
		}
		seen[id] = true
	}
	if w.Metadata().NextObjectID != callers+1 {
		t.Errorf("cached counter = %d, want %d", w.Metadata().NextObjectID, callers+1)
	}
}
