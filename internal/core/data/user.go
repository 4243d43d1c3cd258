package data

import "gorm.io/gorm"

// User is the durable record of an external identity. The row is created on
// the first announcement of an identity and its primary key becomes the
// player id for the lifetime of the identity.
type User struct {
	ID int32 `gorm:"primaryKey"`
	// Always exactly 8 bytes: the external identity key in the byte order
	// the client sent it.
	Identity []byte `gorm:"not null"`
}

// CreateUser persists the User record to the database, assigning its ID.
func CreateUser(db *gorm.DB, user *User) error {
	return db.Create(user).Error
}

// AllUsers returns every user row, used to warm the player registry at
// startup.
func AllUsers(db *gorm.DB) ([]User, error) {
	var users []User
	if err := db.Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
