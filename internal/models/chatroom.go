package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type RoomStatus string

const (
	RoomWaiting RoomStatus = "waiting"
	RoomActive  RoomStatus = "active"
	RoomClosed  RoomStatus = "closed"
)

// ChatRoom is the single support conversation a student has with counselors.
type ChatRoom struct {
	ID        string `gorm:"primaryKey" json:"id"`
	StudentID string `gorm:"not null;uniqueIndex" json:"student_id"`
	// CounselorID is nil for a public room that every counselor can see.
	CounselorID      *string        `gorm:"index" json:"counselor_id"`
	UrgencyLevel     int            `gorm:"not null;default:0" json:"urgency_level"`
	Status           RoomStatus     `gorm:"type:text;not null" json:"status"`
	AITriageComplete bool           `gorm:"not null;default:false" json:"ai_triage_complete"`
	AIAssessment     datatypes.JSON `json:"ai_assessment,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func (r *ChatRoom) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = RoomWaiting
	}
	return
}

// IsPublic reports whether no counselor is assigned yet.
func (r *ChatRoom) IsPublic() bool {
	return r.CounselorID == nil || *r.CounselorID == ""
}

// AssignedTo reports whether the room is assigned to the given counselor.
func (r *ChatRoom) AssignedTo(userID string) bool {
	return r.CounselorID != nil && *r.CounselorID == userID
}

// ChatTransfer records a room being handed from one counselor to another.
type ChatTransfer struct {
	ID              string    `gorm:"primaryKey" json:"id"`
	ChatRoomID      string    `gorm:"not null;index" json:"chat_room_id"`
	FromCounselorID *string   `json:"from_counselor_id"`
	ToCounselorID   string    `gorm:"not null" json:"to_counselor_id"`
	Reason          string    `gorm:"type:text" json:"reason"`
	CreatedAt       time.Time `json:"created_at"`
}

func (t *ChatTransfer) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return
}
