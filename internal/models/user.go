package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the slice of the account record the messaging layer reads.
// LastSeen is NULL while the user is online and stamped when they go offline.
type User struct {
	ID        string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name      string     `gorm:"type:text" json:"name"`
	Email     string     `gorm:"type:text;index" json:"email"`
	LastSeen  *time.Time `json:"lastSeen"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"-"`
}

// BeforeCreate is a GORM hook that generates a UUID for users created without one.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}
