package moderation

import (
	"campuscare/backend/internal/models"
	"campuscare/backend/internal/storage"
	"context"
	"fmt"
)

// Content is a post or comment about to be written to its community table.
type Content struct {
	Kind      models.ContentKind
	AuthorID  string
	PostID    string
	Title     string
	Body      string
	Anonymous bool
	FlagLevel int
}

// CreateContent writes the post or comment row and returns its id.
func CreateContent(ctx context.Context, st storage.Storage, c Content) (string, error) {
	switch c.Kind {
	case models.KindPost:
		post := &models.Post{
			AuthorID:  c.AuthorID,
			Title:     c.Title,
			Body:      c.Body,
			Anonymous: c.Anonymous,
			FlagLevel: c.FlagLevel,
		}
		if err := st.CreatePost(ctx, post); err != nil {
			return "", err
		}
		return post.ID, nil
	case models.KindComment:
		comment := &models.Comment{
			PostID:    c.PostID,
			AuthorID:  c.AuthorID,
			Body:      c.Body,
			Anonymous: c.Anonymous,
			FlagLevel: c.FlagLevel,
		}
		if err := st.CreateComment(ctx, comment); err != nil {
			return "", err
		}
		return comment.ID, nil
	}
	return "", fmt.Errorf("unknown content kind %q", c.Kind)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// FromFlagged rebuilds the content a flagged record was created from.
func FromFlagged(f *models.FlaggedContent, level int) Content {
	return Content{
		Kind:      f.ContentKind,
		AuthorID:  f.AuthorID,
		PostID:    deref(f.PostID),
		Title:     f.Title,
		Body:      f.Body,
		Anonymous: f.Anonymous,
		FlagLevel: level,
	}
}

// FromPending rebuilds the content a pending record holds.
func FromPending(p *models.PendingContent, level int) Content {
	return Content{
		Kind:      p.ContentKind,
		AuthorID:  p.AuthorID,
		PostID:    deref(p.PostID),
		Title:     p.Title,
		Body:      p.Body,
		Anonymous: p.Anonymous,
		FlagLevel: level,
	}
}
