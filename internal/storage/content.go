package storage

import (
	"campuscare/backend/internal/models"
	"context"
)

func (s *Service) CreatePost(ctx context.Context, post *models.Post) error {
	return s.db(ctx).Create(post).Error
}

func (s *Service) GetPostByID(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	if err := first(s.db(ctx).Where("id = ?", id), &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// ListPosts повертає пости від найновіших. Ліміт <= 0 повертає всі.
func (s *Service) ListPosts(ctx context.Context, limit int) ([]models.Post, error) {
	var posts []models.Post
	q := s.db(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&posts).Error
	return posts, err
}

func (s *Service) CreateComment(ctx context.Context, comment *models.Comment) error {
	return s.db(ctx).Create(comment).Error
}

func (s *Service) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	var comments []models.Comment
	err := s.db(ctx).
		Where("post_id = ?", postID).
		Order("created_at ASC").
		Find(&comments).Error
	return comments, err
}
