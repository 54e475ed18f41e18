package storage

import (
	"campuscare/backend/internal/models"
	"context"
)

func (s *Service) CreateUser(ctx context.Context, user *models.User) error {
	return s.db(ctx).Create(user).Error
}

func (s *Service) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := first(s.db(ctx).Where("id = ?", id), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := first(s.db(ctx).Where("username = ?", username), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUserIDsByRoles повертає ID усіх користувачів з однією з ролей
func (s *Service) ListUserIDsByRoles(ctx context.Context, roles ...models.Role) ([]string, error) {
	var ids []string
	if len(roles) == 0 {
		return ids, nil
	}
	err := s.db(ctx).Model(&models.User{}).
		Where("role IN ?", roles).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	return ids, err
}
