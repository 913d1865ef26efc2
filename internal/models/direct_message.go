package models

import (
	"time"

	"github.com/google/uuid"
)

type DirectMessage struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Seq        int64     `json:"-" db:"seq"`
	SenderID   uuid.UUID `json:"senderId" db:"sender_id"`
	ReceiverID uuid.UUID `json:"receiverId" db:"receiver_id"`
	Content    string    `json:"content" db:"content"`
	IV         *string   `json:"iv" db:"iv"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	Active     bool      `json:"-" db:"active"`
}

// IsEncrypted reports whether Content holds ciphertext.
func (m *DirectMessage) IsEncrypted() bool {
	return m.IV != nil && *m.IV != ""
}

// ReadMarker records that UserID has seen everything from OtherID up to LastSeenAt.
type ReadMarker struct {
	UserID     uuid.UUID `db:"user_id"`
	OtherID    uuid.UUID `db:"other_id"`
	LastSeenAt time.Time `db:"last_seen_at"`
}

// DeletionMarker hides a conversation from UserID up to DeletedAt.
type DeletionMarker struct {
	UserID    uuid.UUID `db:"user_id"`
	OtherID   uuid.UUID `db:"other_id"`
	DeletedAt time.Time `db:"deleted_at"`
}

// History is the visible part of a conversation from one party's side.
type History struct {
	Messages          []*DirectMessage `json:"messages"`
	OtherPublicKey    *string          `json:"otherPublicKey"`
	PartnerLastSeenAt *time.Time       `json:"partnerLastSeenAt"`
}

// InboxItem is the most recent visible message with one partner.
type InboxItem struct {
	OtherID        uuid.UUID `json:"otherId"`
	OtherName      string    `json:"otherName"`
	OtherDogName   string    `json:"otherDogName"`
	OtherPublicKey *string   `json:"otherPublicKey"`
	MessageID      uuid.UUID `json:"id"`
	SenderID       uuid.UUID `json:"senderId"`
	ReceiverID     uuid.UUID `json:"receiverId"`
	Content        string    `json:"content"`
	IV             *string   `json:"iv"`
	CreatedAt      time.Time `json:"createdAt"`
	HasUnread      bool      `json:"hasUnread"`
}
