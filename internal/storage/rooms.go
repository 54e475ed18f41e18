package storage

import (
	"campuscare/backend/internal/models"
	"context"

	"gorm.io/gorm"
)

func (s *Service) CreateRoom(ctx context.Context, room *models.ChatRoom) error {
	return s.db(ctx).Create(room).Error
}

func (s *Service) GetRoomByID(ctx context.Context, id string) (*models.ChatRoom, error) {
	var room models.ChatRoom
	if err := first(s.db(ctx).Where("id = ?", id), &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *Service) GetRoomForStudent(ctx context.Context, studentID string) (*models.ChatRoom, error) {
	var room models.ChatRoom
	if err := first(s.db(ctx).Where("student_id = ?", studentID), &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// ListRoomsForCounselor повертає кімнати консультанта та всі публічні кімнати
func (s *Service) ListRoomsForCounselor(ctx context.Context, counselorID string) ([]models.ChatRoom, error) {
	var rooms []models.ChatRoom
	err := s.db(ctx).
		Where("counselor_id = ? OR counselor_id IS NULL", counselorID).
		Order("urgency_level DESC, updated_at DESC").
		Find(&rooms).Error
	return rooms, err
}

func (s *Service) ListAllRooms(ctx context.Context) ([]models.ChatRoom, error) {
	var rooms []models.ChatRoom
	err := s.db(ctx).Order("urgency_level DESC, updated_at DESC").Find(&rooms).Error
	return rooms, err
}

func (s *Service) UpdateRoom(ctx context.Context, roomID string, fields map[string]interface{}) error {
	res := s.db(ctx).Model(&models.ChatRoom{}).Where("id = ?", roomID).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRoom видаляє кімнату разом з повідомленнями та записами передач
func (s *Service) DeleteRoom(ctx context.Context, roomID string) error {
	return s.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_room_id = ?", roomID).Delete(&models.ChatMessage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_room_id = ?", roomID).Delete(&models.ChatTransfer{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", roomID).Delete(&models.ChatRoom{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *Service) SaveTransfer(ctx context.Context, transfer *models.ChatTransfer) error {
	return s.db(ctx).Create(transfer).Error
}
