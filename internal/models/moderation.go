package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FlaggedContent records an item the classifier flagged.
// ContentID is set when the item was still published (mild flags) and nil when it was withheld.
type FlaggedContent struct {
	ID          string                      `gorm:"primaryKey" json:"id"`
	ContentKind ContentKind                 `gorm:"type:text;not null" json:"content_kind"`
	ContentID   *string                     `gorm:"index" json:"content_id"`
	PostID      *string                     `json:"post_id"`
	AuthorID    string                      `gorm:"not null;index" json:"author_id"`
	Title       string                      `gorm:"type:text" json:"title"`
	Body        string                      `gorm:"type:text;not null" json:"body"`
	Anonymous   bool                        `gorm:"not null;default:false" json:"anonymous"`
	FlagLevel   int                         `gorm:"not null" json:"flag_level"`
	Category    string                      `gorm:"type:text" json:"category"`
	Keywords    datatypes.JSONSlice[string] `json:"keywords"`
	Reasoning   string                      `gorm:"type:text" json:"reasoning"`
	IsResolved  bool                        `gorm:"not null;default:false;index" json:"is_resolved"`
	ResolvedBy  *string                     `json:"resolved_by"`
	ResolvedAt  *time.Time                  `json:"resolved_at"`
	CreatedAt   time.Time                   `json:"created_at"`
}

func (f *FlaggedContent) BeforeCreate(tx *gorm.DB) (err error) {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	return
}

type PendingResolution string

const (
	ResolutionApproved PendingResolution = "approved"
	ResolutionRejected PendingResolution = "rejected"
)

// PendingContent holds an item awaiting manual review because the classifier
// failed or was not confident enough.
type PendingContent struct {
	ID          string                      `gorm:"primaryKey" json:"id"`
	ContentKind ContentKind                 `gorm:"type:text;not null" json:"content_kind"`
	PostID      *string                     `json:"post_id"`
	AuthorID    string                      `gorm:"not null;index" json:"author_id"`
	Title       string                      `gorm:"type:text" json:"title"`
	Body        string                      `gorm:"type:text;not null" json:"body"`
	Anonymous   bool                        `gorm:"not null;default:false" json:"anonymous"`
	FlagLevel   int                         `gorm:"not null" json:"flag_level"`
	Category    string                      `gorm:"type:text" json:"category"`
	Keywords    datatypes.JSONSlice[string] `json:"keywords"`
	Reasoning   string                      `gorm:"type:text" json:"reasoning"`
	IsResolved  bool                        `gorm:"not null;default:false;index" json:"is_resolved"`
	Resolution  PendingResolution           `gorm:"type:text" json:"resolution,omitempty"`
	ContentID   *string                     `json:"content_id"`
	ResolvedBy  *string                     `json:"resolved_by"`
	ResolvedAt  *time.Time                  `json:"resolved_at"`
	CreatedAt   time.Time                   `json:"created_at"`
}

func (p *PendingContent) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return
}

type AppealStatus string

const (
	AppealPending  AppealStatus = "pending"
	AppealApproved AppealStatus = "approved"
	AppealRejected AppealStatus = "rejected"
)

// ContentAppeal is a request by an author to re-review one moderated item.
// Exactly one of FlaggedContentID and PendingContentID is set.
type ContentAppeal struct {
	ID               string       `gorm:"primaryKey" json:"id"`
	UserID           string       `gorm:"not null;index" json:"user_id"`
	FlaggedContentID *string      `gorm:"index" json:"flagged_content_id"`
	PendingContentID *string      `gorm:"index" json:"pending_content_id"`
	Reason           string       `gorm:"type:text;not null" json:"reason"`
	Status           AppealStatus `gorm:"type:text;not null;index" json:"status"`
	ReviewerID       *string      `json:"reviewer_id"`
	ReviewerNote     string       `gorm:"type:text" json:"reviewer_note"`
	DecidedAt        *time.Time   `json:"decided_at"`
	CreatedAt        time.Time    `json:"created_at"`
}

func (a *ContentAppeal) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = AppealPending
	}
	return
}
