// Package packets defines the one-byte message codes shared with the game
// client and the wire form of world metadata. Client-to-server codes are
// suffixed with what the client sends; every message on the wire is one
// framed payload whose first byte is one of these codes.
package packets

import "github.com/ubermundo/server/internal/core/wire"

const (
	// Server reply to PlayerAnnounceType carrying the player's id.
	YourIDType = 0x01
	// Client position report: world id plus x/y/z in decameters.
	PositionUpdateType = 0x02
	// Client is leaving the game entirely.
	LeavingGameType = 0x03
	// Tells a client that another player left its world.
	PlayerLeftLevelType = 0x04
	// Tells a client that another player entered its world.
	PlayerEnteredLevelType = 0x05
	// First message on a connection: the client's 8-byte external identity.
	PlayerAnnounceType = 0x06
	// Full roster of a world (minus the receiver), sent after a world switch.
	AnnouncePlayersType = 0x0A

	RequestLevelDataType = 0x1E
	LevelDataType        = 0x1F
	SaveLevelDataType    = 0x20
	CreateNewWorldType   = 0x21
	WorldCreatedType     = 0x22

	RequestLevelMetadataType    = 0x28
	LevelMetadataType           = 0x2A
	RequestAllLevelMetadataType = 0x2B
	AllLevelMetadataType        = 0x2C

	// Object placement, parsed but not acted upon yet.
	AddThingType    = 0x32
	RemoveThingType = 0x33

	GetNextObjectIDType = 0x34
	NextObjectIDType    = 0x35

	SystemMessageType = 0xC8
)

// IdentitySize is the exact length of the external identity key announced
// by clients.
const IdentitySize = 8

// WorldMetadata is the wire form of a world's metadata record. The
// next-object-id counter is deliberately absent; it never leaves the server.
type WorldMetadata struct {
	ID             int32
	Name           string
	OwnerID        int32
	Visibility     uint8
	Version        int32
	UpdateInterval float32
}

// ReadWorldMetadata parses a metadata record from r. Field order must match
// the client's save-level-data builder exactly.
func ReadWorldMetadata(r *wire.Reader) WorldMetadata {
	return WorldMetadata{
		ID:             r.Int32(),
		Name:           r.String(),
		OwnerID:        r.Int32(),
		Visibility:     r.Byte(),
		Version:        r.PositiveInt(),
		UpdateInterval: r.Float32(),
	}
}

// Write appends the metadata record to w.
func (m WorldMetadata) Write(w *wire.Writer) {
	w.Int32(m.ID)
	w.String(m.Name)
	w.Int32(m.OwnerID)
	w.Byte(m.Visibility)
	w.PositiveInt(m.Version)
	w.Float32(m.UpdateInterval)
}

// WriteEmptyWorldMetadata appends the all-zero sentinel record used when a
// requested world does not exist.
func WriteEmptyWorldMetadata(w *wire.Writer) {
	WorldMetadata{}.Write(w)
}
