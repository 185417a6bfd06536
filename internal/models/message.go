package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is one direct message between two users.
// Content always holds ciphertext produced by the message codec; the
// plaintext only exists inside a viewing client.
type Message struct {
	// ID is the server-assigned UUID of the message.
	ID string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	// SenderID is the user who wrote the message.
	SenderID string `gorm:"type:varchar(64);not null;index:idx_conversation" json:"senderId"`
	// ReceiverID is the user the message is addressed to.
	ReceiverID string `gorm:"type:varchar(64);not null;index:idx_conversation" json:"receiverId"`
	// Content is the encoded message body.
	Content string `gorm:"type:text;not null" json:"content"`
	// Read flips to true once the receiver has seen the message.
	Read bool `gorm:"not null;default:false" json:"read"`
	// CreatedAt orders a conversation.
	CreatedAt time.Time `gorm:"not null;index" json:"createdAt"`
}

// BeforeCreate assigns a UUID to messages that do not carry one yet.
func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return
}

// Involves reports whether userID is one of the two participants.
func (m *Message) Involves(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// Between reports whether the message belongs to the conversation of a and b.
func (m *Message) Between(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}
