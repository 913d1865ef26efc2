package models

import (
	"time"

	"github.com/google/uuid"
)

// VisibleToAll is the visibleToGender value that accepts messages from everyone.
const VisibleToAll = "all"

type User struct {
	ID              uuid.UUID `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	DogName         string    `json:"dogName" db:"dog_name"`
	Email           string    `json:"email" db:"email"`
	HashedPassword  string    `json:"-" db:"password_hash"`
	Gender          string    `json:"gender" db:"gender"`
	VisibleToGender string    `json:"visibleToGender" db:"visible_to_gender"`
	Available       bool      `json:"available" db:"available"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`

	// PublicKey and EncryptedPrivateKey are issued together and are either
	// both nil or both set.
	PublicKey           *string `json:"publicKey" db:"public_key"`
	EncryptedPrivateKey *string `json:"-" db:"encrypted_private_key"`
}

// HasKeys reports whether the user has completed key issuance.
func (u *User) HasKeys() bool {
	return u.PublicKey != nil && u.EncryptedPrivateKey != nil
}

// AcceptsMessagesFrom applies the receiver's gender filter to a sender.
func (u *User) AcceptsMessagesFrom(sender *User) bool {
	return u.VisibleToGender == VisibleToAll || u.VisibleToGender == sender.Gender
}

// DisplayName renders the partner label shown in chat headers.
func (u *User) DisplayName() string {
	return u.DogName + " (" + u.Name + ")"
}

// BlockRelation is a directed block edge; either direction suppresses messaging.
type BlockRelation struct {
	UserID        uuid.UUID `json:"userId" db:"user_id"`
	BlockedUserID uuid.UUID `json:"blockedUserId" db:"blocked_user_id"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}
