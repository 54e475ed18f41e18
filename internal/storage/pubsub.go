package storage

import (
	"campuscare/backend/internal/models"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publish надсилає подію як JSON у її канал
func (s *Service) Publish(ctx context.Context, event models.Event) error {
	if s.Redis == nil {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.Redis.Publish(ctx, event.Channel, data).Err()
}

func (s *Service) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return s.Redis.Subscribe(ctx, channels...)
}

func (s *Service) PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub {
	return s.Redis.PSubscribe(ctx, patterns...)
}

// PollEvents відновлює події каналу з таблиць, що за ним стоять.
// Канали сповіщень читають notifications, канали кімнат читають повідомлення.
func (s *Service) PollEvents(ctx context.Context, channel string, since time.Time) ([]models.Event, error) {
	switch {
	case strings.HasPrefix(channel, models.NotificationChannel("")):
		userID := strings.TrimPrefix(channel, models.NotificationChannel(""))
		notifications, err := s.ListNotifications(ctx, userID, since, 0)
		if err != nil {
			return nil, err
		}
		events := make([]models.Event, 0, len(notifications))
		// від найстаріших, у порядку надсилання
		for i := len(notifications) - 1; i >= 0; i-- {
			n := notifications[i]
			ev, err := models.NewEvent(channel, models.EventNotification, n.ID, n)
			if err != nil {
				return nil, err
			}
			ev.At = n.CreatedAt
			events = append(events, ev)
		}
		return events, nil

	case strings.HasPrefix(channel, models.RoomChannel("")):
		roomID := strings.TrimPrefix(channel, models.RoomChannel(""))
		var msgs []models.ChatMessage
		q := s.db(ctx).Where("chat_room_id = ?", roomID)
		if !since.IsZero() {
			q = q.Where("created_at > ?", since)
		}
		if err := q.Order("created_at ASC").Find(&msgs).Error; err != nil {
			return nil, err
		}
		events := make([]models.Event, 0, len(msgs))
		for _, m := range msgs {
			ev, err := models.NewEvent(channel, models.EventMessageCreated, m.ID, m)
			if err != nil {
				return nil, err
			}
			ev.At = m.CreatedAt
			events = append(events, ev)
		}
		return events, nil
	}
	return nil, fmt.Errorf("unknown channel %q", channel)
}
