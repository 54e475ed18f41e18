package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContentKind names the community table a moderated item belongs to.
type ContentKind string

const (
	KindPost    ContentKind = "post"
	KindComment ContentKind = "comment"
)

func (k ContentKind) Valid() bool {
	return k == KindPost || k == KindComment
}

// Post is an anonymous-capable community post.
type Post struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	AuthorID  string    `gorm:"not null;index" json:"author_id,omitempty"`
	Title     string    `gorm:"type:text;not null" json:"title"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	Anonymous bool      `gorm:"not null;default:false" json:"anonymous"`
	FlagLevel int       `gorm:"not null;default:0" json:"flag_level"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (p *Post) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return
}

// Comment is a reply under a post.
type Comment struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	PostID    string    `gorm:"not null;index" json:"post_id"`
	AuthorID  string    `gorm:"not null;index" json:"author_id,omitempty"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	Anonymous bool      `gorm:"not null;default:false" json:"anonymous"`
	FlagLevel int       `gorm:"not null;default:0" json:"flag_level"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (c *Comment) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return
}
