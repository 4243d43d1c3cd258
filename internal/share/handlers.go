package share

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ubermundo/server/internal/core/client"
	"github.com/ubermundo/server/internal/core/wire"
	"github.com/ubermundo/server/internal/packets"
	"github.com/ubermundo/server/internal/players"
	"github.com/ubermundo/server/internal/web"
)

// handlePlayerAnnounce resolves or creates the player for the announced
// external identity, binds it to the session, and replies with the player's
// id. This is the only opcode that means anything before a player is bound.
func (s *Server) handlePlayerAnnounce(c *client.Client, r *wire.Reader) error {
	identity := r.Bytes()
	if err := r.Err(); err != nil {
		return err
	}
	if len(identity) != packets.IdentitySize {
		return fmt.Errorf("announce with %d-byte identity from %s", len(identity), c.IPAddr())
	}

	p, err := s.Players.ResolveOrCreate(identity)
	if err != nil {
		return fmt.Errorf("resolving player: %w", err)
	}

	p.SetConn(c)
	c.Player = p
	web.UpdatePlayerCount(s.Players.Count())

	w := wire.NewWriter()
	w.Byte(packets.YourIDType)
	w.Int32(p.ID())
	return c.Send(w.Payload())
}

// handlePositionUpdate records the player's coarse position and refreshes
// its last contact. A changed world id triggers a world transfer along with
// the presence broadcasts and a roster push to this session.
func (s *Server) handlePositionUpdate(c *client.Client, r *wire.Reader) error {
	p := c.Player
	if p == nil {
		return nil
	}

	worldID := r.Int32()
	x := r.Int16()
	y := r.Int16()
	z := r.Int16()
	if err := r.Err(); err != nil {
		return err
	}

	oldWorldID := p.CurrentWorld()
	p.SetPosition(x, y, z)
	p.Touch(s.Clock.Now())

	if worldID == oldWorldID {
		return nil
	}
	if !s.Universe.MovePlayer(p, worldID) {
		// Unknown destination: the move failed, nobody to tell.
		return nil
	}

	s.notifyWorldLeft(p, oldWorldID)
	s.notifyWorldEntered(p)
	return s.sendWorldRoster(c, p)
}

// handleLeavingGame announces the departure to the player's world and
// deactivates it. The payload carries a player id, but only the session's
// own bound player may be deactivated through it.
func (s *Server) handleLeavingGame(c *client.Client, r *wire.Reader) error {
	announcedID := r.Int32()
	if err := r.Err(); err != nil {
		return err
	}

	p := c.Player
	if p == nil {
		return nil
	}
	if announcedID != p.ID() {
		s.Logger.Warnf("[%s] player %d attempted to deactivate player %d, ignoring",
			s.Name, p.ID(), announcedID)
		return nil
	}

	s.notifyWorldLeft(p, p.CurrentWorld())
	s.Players.Deactivate(p.ID())
	return nil
}

// handleRequestLevelData replies with a world's metadata followed by its
// raw content blob. A miss on either yields the zeroed sentinel metadata or
// an empty blob rather than an error.
func (s *Server) handleRequestLevelData(c *client.Client, r *wire.Reader) error {
	worldID := r.Int32()
	if err := r.Err(); err != nil {
		return err
	}

	w := wire.NewWriter()
	w.Byte(packets.LevelDataType)

	wld, ok := s.Universe.Get(worldID)
	if !ok {
		s.Logger.Infof("[%s] level data requested for unknown world %d", s.Name, worldID)
		packets.WriteEmptyWorldMetadata(w)
		w.Bytes(nil)
		return c.Send(w.Payload())
	}

	blob, _, err := s.Storage.Get(worldID)
	if err != nil {
		s.Logger.Warnf("[%s] reading content for world %d: %s", s.Name, worldID, err)
		blob = nil
	}

	metadataToWire(wld.Metadata()).Write(w)
	w.Bytes(blob)
	return c.Send(w.Payload())
}

// handleSaveLevelData upserts the supplied metadata and overwrites the
// world's content blob.
func (s *Server) handleSaveLevelData(c *client.Client, r *wire.Reader) error {
	md := packets.ReadWorldMetadata(r)
	blob := r.Bytes()
	if err := r.Err(); err != nil {
		return err
	}

	wld, err := s.Universe.UpsertMetadata(metadataFromWire(md))
	if err != nil {
		s.Logger.Warnf("[%s] saving metadata for world %d: %s", s.Name, md.ID, err)
		return s.sendSystemMessage(c, err.Error())
	}

	if err := s.Storage.Put(wld.ID(), blob); err != nil {
		s.Logger.Warnf("[%s] saving content for world %d: %s", s.Name, wld.ID(), err)
		return s.sendSystemMessage(c, err.Error())
	}

	s.Logger.Infof("[%s] saved world %d %q (%d content bytes)", s.Name, wld.ID(), md.Name, len(blob))
	return nil
}

// handleCreateNewWorld persists a fresh world owned by the bound player,
// writes its empty content blob, and replies with the assigned id. The
// client is expected to teleport there and start editing.
func (s *Server) handleCreateNewWorld(c *client.Client, r *wire.Reader) error {
	p := c.Player
	if p == nil {
		return nil
	}

	md := packets.ReadWorldMetadata(r)
	if err := r.Err(); err != nil {
		return err
	}

	wld, err := s.Universe.Create(p.ID(), md.Visibility, md.Name, md.Version, md.UpdateInterval)
	if err != nil {
		s.Logger.Errorf("[%s] creating world for player %d: %s", s.Name, p.ID(), err)
		return s.sendSystemMessage(c, err.Error())
	}
	if err := s.Storage.Put(wld.ID(), nil); err != nil {
		s.Logger.Warnf("[%s] writing empty content for world %d: %s", s.Name, wld.ID(), err)
	}
	web.UpdateWorldCount(s.Universe.WorldCount())

	w := wire.NewWriter()
	w.Byte(packets.WorldCreatedType)
	w.Int32(wld.ID())
	return c.Send(w.Payload())
}

func (s *Server) handleRequestLevelMetadata(c *client.Client, r *wire.Reader) error {
	worldID := r.Int32()
	if err := r.Err(); err != nil {
		return err
	}

	w := wire.NewWriter()
	w.Byte(packets.LevelMetadataType)
	if wld, ok := s.Universe.Get(worldID); ok {
		metadataToWire(wld.Metadata()).Write(w)
	} else {
		packets.WriteEmptyWorldMetadata(w)
	}
	return c.Send(w.Payload())
}

func (s *Server) handleRequestAllLevelMetadata(c *client.Client) error {
	snapshot := s.Universe.SnapshotAllMetadata()

	w := wire.NewWriter()
	w.Byte(packets.AllLevelMetadataType)
	w.Int32(int32(len(snapshot)))
	for _, md := range snapshot {
		metadataToWire(md).Write(w)
	}
	return c.Send(w.Payload())
}

// handleAddThing and handleRemoveThing consume the payload but take no
// action yet; the codes are reserved for object placement.
func (s *Server) handleAddThing(c *client.Client, r *wire.Reader) error {
	assetPath := r.String()
	if err := r.Err(); err != nil {
		return err
	}
	s.Logger.Debugf("[%s] add-thing %q from %s not implemented", s.Name, assetPath, c.IPAddr())
	return nil
}

func (s *Server) handleRemoveThing(c *client.Client, r *wire.Reader) error {
	thingID := r.Int32()
	if err := r.Err(); err != nil {
		return err
	}
	s.Logger.Debugf("[%s] remove-thing %d from %s not implemented", s.Name, thingID, c.IPAddr())
	return nil
}

// handleGetNextObjectID advances the durable object-id counter for a world
// and replies with the new id, or 0 when the world does not exist or the
// allocation failed.
func (s *Server) handleGetNextObjectID(c *client.Client, r *wire.Reader) error {
	worldID := r.Int32()
	if err := r.Err(); err != nil {
		return err
	}

	var newID int32
	if wld, ok := s.Universe.Get(worldID); ok {
		id, err := s.Universe.NextObjectID(wld)
		if err != nil {
			s.Logger.Errorf("[%s] advancing object id for world %d: %s", s.Name, worldID, err)
		} else {
			newID = id
		}
	}

	w := wire.NewWriter()
	w.Byte(packets.NextObjectIDType)
	w.Int32(newID)
	return c.Send(w.Payload())
}

// sendWorldRoster pushes the full roster of the player's current world
// (minus the player itself) to this session. Nothing is sent for an empty
// roster.
func (s *Server) sendWorldRoster(c *client.Client, p *players.Player) error {
	worldID := p.CurrentWorld()
	if worldID == 0 {
		return nil
	}
	wld, ok := s.Universe.Get(worldID)
	if !ok {
		return nil
	}

	var others []*players.Player
	for _, other := range wld.Roster() {
		if other.ID() != p.ID() {
			others = append(others, other)
		}
	}
	if len(others) == 0 {
		return nil
	}

	w := wire.NewWriter()
	w.Byte(packets.AnnouncePlayersType)
	w.PositiveInt(int32(len(others)))
	for _, other := range others {
		w.Int32(other.ID())
		w.Bytes(other.Identity())
	}
	return c.Send(w.Payload())
}

// sendSystemMessage delivers a human-readable notice to a single session.
func (s *Server) sendSystemMessage(c *client.Client, message string) error {
	w := wire.NewWriter()
	w.Byte(packets.SystemMessageType)
	w.String(cases.Title(language.English).String(message))
	return c.Send(w.Payload())
}
