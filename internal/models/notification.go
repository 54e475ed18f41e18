package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification types written by the workflow. The column is an open string set.
const (
	NotifyContentFlagged  = "content_flagged"
	NotifyContentPending  = "content_pending"
	NotifyCrisisAlert     = "crisis_alert"
	NotifyContentApproved = "content_approved"
	NotifyContentRejected = "content_rejected"
	NotifyAppealSubmitted = "appeal_submitted"
	NotifyAppealDecided   = "appeal_decided"
	NotifyChatTransfer    = "chat_transfer"
	NotifyChatRequest     = "chat_request"
)

type Notification struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"not null;index:idx_notif_user_time" json:"user_id"`
	Type      string    `gorm:"type:text;not null" json:"type"`
	Title     string    `gorm:"type:text;not null" json:"title"`
	Message   string    `gorm:"type:text" json:"message"`
	Link      string    `gorm:"type:text" json:"link"`
	IsRead    bool      `gorm:"not null;default:false" json:"is_read"`
	CreatedAt time.Time `gorm:"index:idx_notif_user_time" json:"created_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return
}
