package chathub

import (
	"campuscare/backend/internal/models"
	"context"
	"encoding/json"
	"time"
)

const resubscribeDelay = 5 * time.Second

// StartPubSubListener пересилає кожну подію кімнати з Redis у цикл хабу.
// Блокується до скасування ctx і перепідписується, якщо підписка не вдалася.
// Пропущене клієнти дочитують через фрейм resync.
func (m *ManagerService) StartPubSubListener(ctx context.Context) {
	for {
		m.listen(ctx)

		t := time.NewTimer(resubscribeDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (m *ManagerService) listen(ctx context.Context) {
	pubsub := m.Chat.Storage.PSubscribe(ctx, models.RoomChannelPattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() == nil {
			m.log.Error("Room subscription failed", "error", err)
		}
		return
	}
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev models.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				m.log.Warn("Error unmarshalling room event", "channel", msg.Channel, "error", err)
				continue
			}
			select {
			case m.PubSubCh <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}
