package data

import (
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrWorldNotFound is returned by object-id allocation when no row exists
// for the requested world.
var ErrWorldNotFound = errors.New("data: world not found")

// World is the durable metadata record for one world. The live roster is
// never persisted; NextObjectID is server-side only and advanced exclusively
// through IncrementAndFetchObjectID.
type World struct {
	ID      int32 `gorm:"primaryKey"`
	OwnerID int32 `gorm:"not null"`
	// Visibility/category code, bounded 0-100.
	Visibility uint8  `gorm:"not null"`
	Name       string `gorm:"size:64;not null"`
	Version    int32  `gorm:"not null;default:1"`
	// Scaling factor for client-side player update frequency.
	UpdateInterval float32 `gorm:"not null;default:1"`
	NextObjectID   int32   `gorm:"not null;default:1"`
}

// CreateWorld persists a new World record, assigning its ID.
func CreateWorld(db *gorm.DB, world *World) error {
	return db.Create(world).Error
}

// UpdateWorld overwrites the metadata columns of an existing row, returning
// ErrWorldNotFound if no row carries the id. The next-object-id counter is
// deliberately excluded; it only moves through IncrementAndFetchObjectID.
func UpdateWorld(db *gorm.DB, world *World) error {
	res := db.Model(&World{}).Where("id = ?", world.ID).Updates(map[string]interface{}{
		"owner_id":        world.OwnerID,
		"visibility":      world.Visibility,
		"name":            world.Name,
		"version":         world.Version,
		"update_interval": world.UpdateInterval,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrWorldNotFound
	}
	return nil
}

// FindWorldByID returns the row with the given id, or nil if there is no
// match.
func FindWorldByID(db *gorm.DB, id int32) (*World, error) {
	var world World
	err := db.First(&world, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &world, nil
}

// AllWorlds returns every world row, used to warm the universe cache at
// startup.
func AllWorlds(db *gorm.DB) ([]World, error) {
	var worlds []World
	if err := db.Find(&worlds).Error; err != nil {
		return nil, err
	}
	return worlds, nil
}

// IncrementAndFetchObjectID atomically advances the object-id counter of one
// world row and returns the new value. The transaction is serializable so
// concurrent callers for the same world can never observe the same id.
func IncrementAndFetchObjectID(db *gorm.DB, worldID int32) (int32, error) {
	var next int32
	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&World{}).
			Where("id = ?", worldID).
			UpdateColumn("next_object_id", gorm.Expr("next_object_id + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrWorldNotFound
		}

		return tx.Model(&World{}).
			Select("next_object_id").
			Where("id = ?", worldID).
			Scan(&next).Error
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})

	if err != nil {
		return 0, fmt.Errorf("advancing object id for world %d: %w", worldID, err)
	}
	return next, nil
}
