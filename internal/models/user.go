package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a registered account. The password is stored only as a
// bcrypt hash and is never serialized in API responses.
type User struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email          string    `gorm:"uniqueIndex:idx_users_email;not null" json:"email"`
	HashedPassword string    `gorm:"not null" json:"-"`
	CreatedAt      time.Time `json:"created_at"`

	// Associations
	GenerationJobs []GenerationJob `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE;" json:"-"`
}

// BeforeCreate assigns a UUID primary key when one was not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
