package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ChatMessage is a message saved in a chat room.
// A nil SenderID together with IsSystem marks a message written by the AI assistant.
type ChatMessage struct {
	ID         string  `gorm:"primaryKey" json:"id"`
	ChatRoomID string  `gorm:"not null;index:idx_room_msg" json:"chat_room_id"`
	SenderID   *string `gorm:"index" json:"sender_id"`
	Content    string  `gorm:"type:text;not null" json:"content"`
	IsSystem   bool    `gorm:"not null;default:false" json:"is_system"`
	// Metadata carries the "ai" and "intro" flags for assistant messages.
	Metadata datatypes.JSONMap `json:"metadata,omitempty"`
	// ReadBy is the set of user ids that have read the message.
	ReadBy    datatypes.JSONSlice[string] `json:"read_by"`
	CreatedAt time.Time                   `gorm:"index:idx_room_msg" json:"created_at"`
}

func (m *ChatMessage) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return
}

// AIMetadata builds the metadata attached to assistant messages.
func AIMetadata(intro bool) datatypes.JSONMap {
	md := datatypes.JSONMap{"ai": true}
	if intro {
		md["intro"] = true
	}
	return md
}

// IsAI reports whether the message was written by the assistant.
func (m *ChatMessage) IsAI() bool {
	if !m.IsSystem || m.SenderID != nil {
		return false
	}
	ai, _ := m.Metadata["ai"].(bool)
	return ai
}

// HasReader reports whether userID is in the read receipt set.
func (m *ChatMessage) HasReader(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}
