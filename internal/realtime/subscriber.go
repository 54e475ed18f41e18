// Package realtime keeps a client subscribed to one event channel. When the push
// subscription drops it reconnects with exponential backoff and, once the attempts
// are exhausted, falls back to polling until a resubscribe succeeds.
package realtime

import (
	"campuscare/backend/internal/config"
	"campuscare/backend/internal/logger"
	"campuscare/backend/internal/metrics"
	"campuscare/backend/internal/models"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

type Mode string

const (
	ModePush         Mode = "push"
	ModeReconnecting Mode = "reconnecting"
	ModePolling      Mode = "polling"
)

const (
	// pollOverlap re-reads a window before the newest event seen; duplicates are dropped.
	pollOverlap = 2 * time.Minute
	seenTTL     = 10 * time.Minute
)

// ErrStreamClosed is reported by a stream that ended without a more specific error.
var ErrStreamClosed = errors.New("realtime: stream closed")

// Stream is a live subscription. C is closed when the subscription ends.
type Stream interface {
	C() <-chan models.Event
	Err() error
	Close() error
}

// Source opens subscriptions and serves missed events.
type Source interface {
	Subscribe(ctx context.Context, channel string) (Stream, error)
	Poll(ctx context.Context, channel string, since time.Time) ([]models.Event, error)
}

type Options struct {
	BackoffBase  time.Duration
	MaxAttempts  int
	PollInterval time.Duration
	Logger       *logger.Logger
	Metrics      *metrics.Metrics
}

type Subscriber struct {
	source  Source
	channel string
	opts    Options
	log     *logger.Logger
	metrics *metrics.Metrics

	out    chan models.Event
	resync chan struct{}
	seen   *cache.Cache

	mu       sync.Mutex
	mode     Mode
	lastSeen time.Time

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewSubscriber(src Source, channel string, opts Options) *Subscriber {
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = config.DefaultReconnectBase
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = config.DefaultMaxReconnectAttempts
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = config.DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &Subscriber{
		source:  src,
		channel: channel,
		opts:    opts,
		log:     opts.Logger.With("channel", channel),
		metrics: opts.Metrics,
		out:     make(chan models.Event, 16),
		resync:  make(chan struct{}, 1),
		// no janitor goroutine; expired ids are swept on every poll
		seen: cache.New(seenTTL, 0),
		mode: ModeReconnecting,
		done: make(chan struct{}),
	}
}

// Start begins delivering events. Only events newer than the start are delivered.
func (s *Subscriber) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)
		s.mu.Lock()
		s.lastSeen = time.Now().UTC()
		s.mu.Unlock()
		go s.run(ctx)
	})
}

// Events is closed after the subscriber stops.
func (s *Subscriber) Events() <-chan models.Event {
	return s.out
}

func (s *Subscriber) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Resync polls for missed events right away and, when disconnected, retries the
// subscription without waiting for the backoff.
func (s *Subscriber) Resync() {
	select {
	case s.resync <- struct{}{}:
	default:
	}
}

// Close stops the subscriber and waits for it to exit.
func (s *Subscriber) Close() {
	started := false
	s.startOnce.Do(func() { close(s.done); close(s.out) })
	if s.cancel != nil {
		started = true
		s.cancel()
	}
	if started {
		<-s.done
	}
}

func (s *Subscriber) setMode(m Mode) {
	s.mu.Lock()
	prev := s.mode
	s.mode = m
	s.mu.Unlock()
	if prev != m {
		s.metrics.ObserveModeChange(string(prev), string(m))
		s.log.Debug("Realtime mode changed", "from", prev, "to", m)
	}
}

func (s *Subscriber) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.out)

	failures := 0
	for ctx.Err() == nil {
		stream, err := s.source.Subscribe(ctx, s.channel)
		if err == nil {
			recovering := failures > 0
			failures = 0
			if recovering {
				s.poll(ctx)
			}
			s.setMode(ModePush)
			err = s.consume(ctx, stream)
			_ = stream.Close()
			if ctx.Err() != nil {
				return
			}
		}
		s.log.Warn("Realtime subscription failed", "error", err)

		failures++
		if failures <= s.opts.MaxAttempts {
			s.setMode(ModeReconnecting)
			s.metrics.ObserveReconnect()
			if !s.wait(ctx, s.opts.BackoffBase<<(failures-1)) {
				return
			}
			continue
		}

		if s.Mode() != ModePolling {
			s.setMode(ModePolling)
			s.metrics.ObservePollFallback()
			s.log.Warn("Realtime reconnect attempts exhausted, polling", "interval", s.opts.PollInterval)
			s.poll(ctx)
		}
		if !s.wait(ctx, s.opts.PollInterval) {
			return
		}
		s.poll(ctx)
	}
}

// consume delivers events until the stream ends or ctx is done.
func (s *Subscriber) consume(ctx context.Context, stream Stream) error {
	for {
		select {
		case ev, ok := <-stream.C():
			if !ok {
				if err := stream.Err(); err != nil {
					return err
				}
				return ErrStreamClosed
			}
			if !s.deliver(ctx, ev) {
				return ctx.Err()
			}
		case <-s.resync:
			s.poll(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// wait sleeps for d. A resync cuts the wait short after polling. It returns false when ctx is done.
func (s *Subscriber) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.resync:
		s.poll(ctx)
		return ctx.Err() == nil
	case <-ctx.Done():
		return false
	}
}

func (s *Subscriber) poll(ctx context.Context) {
	s.seen.DeleteExpired()

	s.mu.Lock()
	since := s.lastSeen.Add(-pollOverlap)
	s.mu.Unlock()

	events, err := s.source.Poll(ctx, s.channel, since)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("Realtime poll failed", "error", err)
		}
		return
	}
	for _, ev := range events {
		if !s.deliver(ctx, ev) {
			return
		}
	}
}

// deliver forwards ev unless it was already delivered. It returns false when ctx is done.
func (s *Subscriber) deliver(ctx context.Context, ev models.Event) bool {
	if ev.ID != "" {
		if err := s.seen.Add(ev.Type+":"+ev.ID, struct{}{}, cache.DefaultExpiration); err != nil {
			return true
		}
	}
	s.mu.Lock()
	if ev.At.After(s.lastSeen) {
		s.lastSeen = ev.At
	}
	s.mu.Unlock()

	select {
	case s.out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
