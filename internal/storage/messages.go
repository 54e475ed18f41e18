package storage

import (
	"campuscare/backend/internal/models"
	"context"

	"gorm.io/gorm"
)

func (s *Service) SaveMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg.ReadBy == nil {
		msg.ReadBy = []string{}
	}
	return s.db(ctx).Create(msg).Error
}

func (s *Service) GetMessageByID(ctx context.Context, id string) (*models.ChatMessage, error) {
	var msg models.ChatMessage
	if err := first(s.db(ctx).Where("id = ?", id), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages повертає повідомлення кімнати від найстаріших
func (s *Service) ListMessages(ctx context.Context, roomID string) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	err := s.db(ctx).
		Where("chat_room_id = ?", roomID).
		Order("created_at ASC").
		Find(&msgs).Error
	return msgs, err
}

// MarkMessageRead додає userID до прочитаних. Повторна позначка нічого не змінює.
func (s *Service) MarkMessageRead(ctx context.Context, messageID, userID string) (*models.ChatMessage, error) {
	var msg models.ChatMessage
	err := s.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := first(tx.Where("id = ?", messageID), &msg); err != nil {
			return err
		}
		if msg.HasReader(userID) {
			return nil
		}
		msg.ReadBy = append(msg.ReadBy, userID)
		return tx.Model(&models.ChatMessage{}).
			Where("id = ?", messageID).
			Update("read_by", msg.ReadBy).Error
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage видаляє повідомлення, лише якщо його написав senderID
func (s *Service) DeleteMessage(ctx context.Context, messageID, senderID string) error {
	res := s.db(ctx).
		Where("id = ? AND sender_id = ?", messageID, senderID).
		Delete(&models.ChatMessage{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
