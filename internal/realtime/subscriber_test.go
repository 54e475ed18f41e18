package realtime

import (
	"campuscare/backend/internal/models"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStream struct {
	ch        chan models.Event
	mu        sync.Mutex
	err       error
	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeStream() *fakeStream {
	return &fakeStream{ch: make(chan models.Event, 8), closed: make(chan struct{})}
}

func (s *fakeStream) C() <-chan models.Event { return s.ch }

func (s *fakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// drop ends the stream with an error, like a lost connection.
func (s *fakeStream) drop(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.ch)
}

type fakeSource struct {
	mu       sync.Mutex
	failing  bool
	attempts []time.Time
	streams  []*fakeStream
	polled   []time.Time
	pollResp []models.Event
}

func (f *fakeSource) Subscribe(ctx context.Context, _ string) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, time.Now())
	if f.failing {
		return nil, errors.New("connection refused")
	}
	s := newFakeStream()
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *fakeSource) Poll(_ context.Context, _ string, _ time.Time) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polled = append(f.polled, time.Now())
	return append([]models.Event(nil), f.pollResp...), nil
}

func (f *fakeSource) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

func (f *fakeSource) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.attempts)
}

func (f *fakeSource) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.polled)
}

func (f *fakeSource) lastStream() *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streams) == 0 {
		return nil
	}
	return f.streams[len(f.streams)-1]
}

func event(id string) models.Event {
	return models.Event{ID: id, Channel: "notifications:u1", Type: models.EventNotification, At: time.Now().UTC()}
}

func receive(t *testing.T, s *Subscriber) models.Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
		return models.Event{}
	}
}

func assertNoEvent(t *testing.T, s *Subscriber, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-s.Events():
		t.Fatalf("unexpected event %s", ev.ID)
	case <-time.After(wait):
	}
}

func TestSubscriber_PushDelivery(t *testing.T) {
	src := &fakeSource{}
	s := NewSubscriber(src, "notifications:u1", Options{BackoffBase: 5 * time.Millisecond, MaxAttempts: 5, PollInterval: 50 * time.Millisecond})
	s.Start(context.Background())
	defer s.Close()

	require.Eventually(t, func() bool { return s.Mode() == ModePush }, time.Second, time.Millisecond)

	src.lastStream().ch <- event("n1")
	assert.Equal(t, "n1", receive(t, s).ID)
	assert.Zero(t, src.pollCount(), "no polling while push works")
}

func TestSubscriber_BackoffDoublesThenPolls(t *testing.T) {
	base := 10 * time.Millisecond
	src := &fakeSource{failing: true}
	s := NewSubscriber(src, "c", Options{BackoffBase: base, MaxAttempts: 3, PollInterval: time.Hour})
	s.Start(context.Background())
	defer s.Close()

	require.Eventually(t, func() bool { return s.Mode() == ModePolling && src.pollCount() == 1 }, 2*time.Second, time.Millisecond)

	src.mu.Lock()
	attempts := append([]time.Time(nil), src.attempts...)
	src.mu.Unlock()

	// the first attempt plus three reconnects
	require.Len(t, attempts, 4)
	for i := 1; i < len(attempts); i++ {
		gap := attempts[i].Sub(attempts[i-1])
		assert.GreaterOrEqual(t, gap, base<<(i-1), "gap %d", i)
	}
	assert.Equal(t, 1, src.pollCount(), "entering polling mode polls once right away")
}

func TestSubscriber_PollingResubscribesEachTick(t *testing.T) {
	src := &fakeSource{failing: true, pollResp: []models.Event{event("missed")}}
	s := NewSubscriber(src, "c", Options{BackoffBase: time.Millisecond, MaxAttempts: 1, PollInterval: 20 * time.Millisecond})
	s.Start(context.Background())
	defer s.Close()

	assert.Equal(t, "missed", receive(t, s).ID)
	require.Eventually(t, func() bool { return src.pollCount() >= 3 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, ModePolling, s.Mode())
	assertNoEvent(t, s, 10*time.Millisecond) // polled again, already delivered

	attemptsWhilePolling := src.attemptCount()
	src.setFailing(false)
	require.Eventually(t, func() bool { return s.Mode() == ModePush }, 2*time.Second, time.Millisecond)
	assert.Greater(t, src.attemptCount(), attemptsWhilePolling)

	polls := src.pollCount()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, polls, src.pollCount(), "push mode stops polling")
}

func TestSubscriber_ReconnectsAfterDrop(t *testing.T) {
	src := &fakeSource{}
	s := NewSubscriber(src, "c", Options{BackoffBase: 5 * time.Millisecond, MaxAttempts: 5, PollInterval: time.Hour})
	s.Start(context.Background())
	defer s.Close()

	require.Eventually(t, func() bool { return src.lastStream() != nil }, time.Second, time.Millisecond)
	first := src.lastStream()
	first.drop(errors.New("EOF"))

	require.Eventually(t, func() bool { return src.attemptCount() == 2 && s.Mode() == ModePush }, time.Second, time.Millisecond)
	assert.NotSame(t, first, src.lastStream())
	assert.Equal(t, 1, src.pollCount(), "catches up once after reconnecting")

	select {
	case <-first.closed:
	default:
		t.Fatal("dropped stream was not closed")
	}
}

func TestSubscriber_ResyncPollsImmediately(t *testing.T) {
	src := &fakeSource{pollResp: []models.Event{event("p1")}}
	s := NewSubscriber(src, "c", Options{BackoffBase: time.Hour, MaxAttempts: 5, PollInterval: time.Hour})
	s.Start(context.Background())
	defer s.Close()

	require.Eventually(t, func() bool { return s.Mode() == ModePush }, time.Second, time.Millisecond)
	s.Resync()
	assert.Equal(t, "p1", receive(t, s).ID)

	// a push of the same event is dropped
	src.lastStream().ch <- event("p1")
	assertNoEvent(t, s, 20*time.Millisecond)
}

func TestSubscriber_ResyncCutsBackoffShort(t *testing.T) {
	src := &fakeSource{failing: true}
	s := NewSubscriber(src, "c", Options{BackoffBase: time.Hour, MaxAttempts: 5, PollInterval: time.Hour})
	s.Start(context.Background())
	defer s.Close()

	require.Eventually(t, func() bool { return src.attemptCount() == 1 && s.Mode() == ModeReconnecting }, time.Second, time.Millisecond)
	src.setFailing(false)
	s.Resync()

	require.Eventually(t, func() bool { return s.Mode() == ModePush }, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, src.pollCount(), 1)
}

func TestSubscriber_CloseStopsEverything(t *testing.T) {
	src := &fakeSource{failing: true}
	s := NewSubscriber(src, "c", Options{BackoffBase: time.Hour, MaxAttempts: 5, PollInterval: time.Hour})
	s.Start(context.Background())
	require.Eventually(t, func() bool { return src.attemptCount() == 1 }, time.Second, time.Millisecond)

	s.Close()
	_, ok := <-s.Events()
	assert.False(t, ok)
	s.Close()
}

func TestSubscriber_CloseWithoutStart(t *testing.T) {
	s := NewSubscriber(&fakeSource{}, "c", Options{})
	s.Close()
	_, ok := <-s.Events()
	assert.False(t, ok)
}

func TestSubscriber_ContextCancel(t *testing.T) {
	src := &fakeSource{}
	s := NewSubscriber(src, "c", Options{BackoffBase: time.Millisecond, MaxAttempts: 1, PollInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	require.Eventually(t, func() bool { return src.lastStream() != nil }, time.Second, time.Millisecond)

	cancel()
	select {
	case _, ok := <-s.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not stop")
	}
	s.Close()
}
