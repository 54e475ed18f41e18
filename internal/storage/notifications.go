package storage

import (
	"campuscare/backend/internal/models"
	"context"
	"time"
)

// CreateNotifications вставляє всю пачку одним запитом
func (s *Service) CreateNotifications(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return s.db(ctx).Create(&notifications).Error
}

// ListNotifications повертає сповіщення користувача від найновіших.
// Нульовий since повертає всю історію в межах limit.
func (s *Service) ListNotifications(ctx context.Context, userID string, since time.Time, limit int) ([]models.Notification, error) {
	var out []models.Notification
	q := s.db(ctx).Where("user_id = ?", userID)
	if !since.IsZero() {
		q = q.Where("created_at > ?", since)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Order("created_at DESC").Find(&out).Error
	return out, err
}

func (s *Service) MarkNotificationRead(ctx context.Context, id, userID string) error {
	res := s.db(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res := s.db(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}
