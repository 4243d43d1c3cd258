package share

import (
	"github.com/ubermundo/server/internal/core/wire"
	"github.com/ubermundo/server/internal/packets"
	"github.com/ubermundo/server/internal/players"
	"github.com/ubermundo/server/internal/web"
)

// notifyWorldLeft tells every other player in the given world that p left
// it. Players without a live session are silently skipped; they may be
// disconnected but not yet reaped.
func (s *Server) notifyWorldLeft(p *players.Player, worldID int32) {
	if worldID == 0 {
		return
	}
	wld, ok := s.Universe.Get(worldID)
	if !ok {
		return
	}
	s.fanOutPresence(presenceFrame(packets.PlayerLeftLevelType, p), wld.Roster(), p.ID())
}

// notifyWorldEntered tells every other player in p's current world that p
// arrived.
func (s *Server) notifyWorldEntered(p *players.Player) {
	worldID := p.CurrentWorld()
	if worldID == 0 {
		return
	}
	wld, ok := s.Universe.Get(worldID)
	if !ok {
		return
	}
	s.fanOutPresence(presenceFrame(packets.PlayerEnteredLevelType, p), wld.Roster(), p.ID())
}

// BroadcastSystemMessage sends a notice to every connected session,
// regardless of world.
func (s *Server) BroadcastSystemMessage(message string) {
	w := wire.NewWriter()
	w.Byte(packets.SystemMessageType)
	w.String(message)
	frame := w.Payload()

	s.mu.Lock()
	sessions := make([]players.Conn, 0, len(s.sessions))
	for c := range s.sessions {
		sessions = append(sessions, c)
	}
	s.mu.Unlock()

	for _, c := range sessions {
		if err := c.Send(frame); err != nil {
			s.Logger.Warnf("[%s] sending system message to %s: %s", s.Name, c.IPAddr(), err)
		}
		web.RecordBroadcast()
	}
}

func (s *Server) fanOutPresence(frame []byte, roster []*players.Player, subjectID int32) {
	for _, other := range roster {
		if other.ID() == subjectID {
			continue
		}
		conn := other.Conn()
		if conn == nil {
			continue
		}
		if err := conn.Send(frame); err != nil {
			s.Logger.Warnf("[%s] notifying %s about player %d: %s",
				s.Name, conn.IPAddr(), subjectID, err)
		}
		web.RecordBroadcast()
	}
}

func presenceFrame(opcode byte, p *players.Player) []byte {
	w := wire.NewWriter()
	w.Byte(opcode)
	w.Int32(p.ID())
	w.Bytes(p.Identity())
	return w.Payload()
}
