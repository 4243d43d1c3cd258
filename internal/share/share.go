// Package share implements the SHARE backend: the protocol engine that
// binds connections to players, tracks which world each player occupies,
// relays presence between players sharing a world, and brokers world
// content and metadata.
package share

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/ubermundo/server/internal/core"
	"github.com/ubermundo/server/internal/core/client"
	"github.com/ubermundo/server/internal/core/wire"
	"github.com/ubermundo/server/internal/packets"
	"github.com/ubermundo/server/internal/players"
	"github.com/ubermundo/server/internal/storage"
	"github.com/ubermundo/server/internal/universe"
	"github.com/ubermundo/server/internal/web"
)

type Server struct {
	Name   string
	Config *core.Config
	Logger *logrus.Logger

	Players  *players.Registry
	Universe *universe.Universe
	Storage  *storage.Store
	Clock    clock.Clock

	mu       sync.Mutex
	sessions map[*client.Client]struct{}
}

func (s *Server) Identifier() string {
	return s.Name
}

func (s *Server) Init(ctx context.Context) error {
	if s.Players == nil || s.Universe == nil || s.Storage == nil {
		return fmt.Errorf("share server missing registry wiring")
	}
	if s.Clock == nil {
		s.Clock = clock.New()
	}
	s.sessions = make(map[*client.Client]struct{})
	return nil
}

func (s *Server) SetUpClient(c *client.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[c] = struct{}{}
}

// Handle dispatches one inbound frame. It runs to completion, including any
// replies, before the frontend reads the connection's next frame, so a slow
// peer only ever stalls itself.
func (s *Server) Handle(ctx context.Context, c *client.Client, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	web.RecordFrame()

	r := wire.NewReader(payload)
	opcode := r.Byte()

	switch opcode {
	case packets.PlayerAnnounceType:
		return s.handlePlayerAnnounce(c, r)
	case packets.PositionUpdateType:
		return s.handlePositionUpdate(c, r)
	case packets.LeavingGameType:
		return s.handleLeavingGame(c, r)
	case packets.RequestLevelDataType:
		return s.handleRequestLevelData(c, r)
	case packets.SaveLevelDataType:
		return s.handleSaveLevelData(c, r)
	case packets.CreateNewWorldType:
		return s.handleCreateNewWorld(c, r)
	case packets.RequestLevelMetadataType:
		return s.handleRequestLevelMetadata(c, r)
	case packets.RequestAllLevelMetadataType:
		return s.handleRequestAllLevelMetadata(c)
	case packets.AddThingType:
		return s.handleAddThing(c, r)
	case packets.RemoveThingType:
		return s.handleRemoveThing(c, r)
	case packets.GetNextObjectIDType:
		return s.handleGetNextObjectID(c, r)
	default:
		// Unknown opcodes are ignored so older servers survive newer clients.
		s.Logger.Infof("[%s] received unknown opcode %#x from %s", s.Name, opcode, c.IPAddr())
		return nil
	}
}

// CleanUpClient runs the session close sequence after the socket is gone:
// tell the world the player left, deactivate it, and forget the session.
func (s *Server) CleanUpClient(c *client.Client) {
	if p := c.Player; p != nil {
		s.notifyWorldLeft(p, p.CurrentWorld())
		s.Players.Deactivate(p.ID())
		p.ClearConn(c)
	}

	s.mu.Lock()
	delete(s.sessions, c)
	s.mu.Unlock()
}

func metadataToWire(md universe.Metadata) packets.WorldMetadata {
	return packets.WorldMetadata{
		ID:             md.ID,
		Name:           md.Name,
		OwnerID:        md.OwnerID,
		Visibility:     md.Visibility,
		Version:        md.Version,
		UpdateInterval: md.UpdateInterval,
	}
}

func metadataFromWire(md packets.WorldMetadata) universe.Metadata {
	return universe.Metadata{
		ID:             md.ID,
		Name:           md.Name,
		OwnerID:        md.OwnerID,
		Visibility:     md.Visibility,
		Version:        md.Version,
		UpdateInterval: md.UpdateInterval,
	}
}
