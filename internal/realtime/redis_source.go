package realtime

import (
	"campuscare/backend/internal/models"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// subscribeTimeout bounds waiting for Redis to confirm a subscription.
const subscribeTimeout = 10 * time.Second

// EventStore is the storage the Redis source reads from.
type EventStore interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
	PollEvents(ctx context.Context, channel string, since time.Time) ([]models.Event, error)
}

// RedisSource subscribes with Redis pub/sub and polls the tables behind each channel.
type RedisSource struct {
	store EventStore
}

func NewRedisSource(store EventStore) *RedisSource {
	return &RedisSource{store: store}
}

func (r *RedisSource) Subscribe(ctx context.Context, channel string) (Stream, error) {
	ps := r.store.Subscribe(ctx, channel)

	confirmCtx, cancel := context.WithTimeout(ctx, subscribeTimeout)
	defer cancel()
	if _, err := ps.Receive(confirmCtx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	streamCtx, streamCancel := context.WithCancel(ctx)
	s := &redisStream{
		ps:     ps,
		ch:     make(chan models.Event),
		cancel: streamCancel,
		done:   make(chan struct{}),
	}
	go s.pump(streamCtx)
	return s, nil
}

func (r *RedisSource) Poll(ctx context.Context, channel string, since time.Time) ([]models.Event, error) {
	return r.store.PollEvents(ctx, channel, since)
}

type redisStream struct {
	ps     *redis.PubSub
	ch     chan models.Event
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error

	closeOnce sync.Once
}

func (s *redisStream) C() <-chan models.Event { return s.ch }

func (s *redisStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *redisStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.ps.Close()
		<-s.done
	})
	return err
}

// pump ends at the first receive error; the subscriber owns reconnecting.
func (s *redisStream) pump(ctx context.Context) {
	defer close(s.done)
	defer close(s.ch)
	for {
		msg, err := s.ps.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, redis.ErrClosed) {
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
			}
			return
		}
		var ev models.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			continue
		}
		select {
		case s.ch <- ev:
		case <-ctx.Done():
			return
		}
	}
}
