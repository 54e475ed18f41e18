// Package triage runs the AI assistant that talks to a student until a human counselor joins.
//
// A student's first message arms a one-shot timer. If no counselor or admin has written
// when it fires, the assistant posts an introduction and from then on answers every
// student message. The first staff message stops the assistant for the room for good.
package triage

import (
	"campuscare/backend/internal/analysis"
	"campuscare/backend/internal/classifier"
	"campuscare/backend/internal/config"
	"campuscare/backend/internal/localization"
	"campuscare/backend/internal/logger"
	"campuscare/backend/internal/metrics"
	"campuscare/backend/internal/models"
	"campuscare/backend/internal/notify"
	"context"
	"sync"
	"time"
)

// Replier produces the assistant's answers.
type Replier interface {
	Reply(ctx context.Context, history []classifier.Turn, latest string) (classifier.Reply, error)
}

// Snapshot is what the stored thread says about a room's triage so far.
type Snapshot struct {
	HumanJoined bool
	IntroSent   bool
}

// Chat is the chat room store the assistant reads from and writes to.
type Chat interface {
	Snapshot(ctx context.Context, roomID string) (Snapshot, error)
	History(ctx context.Context, roomID string) ([]models.ChatMessage, error)
	PostAIMessage(ctx context.Context, roomID, content string, intro bool) (*models.ChatMessage, error)
	RecordAssessment(ctx context.Context, roomID string, urgency int, assessment map[string]any) error
}

// Escalator notifies staff when the assistant rates a room as critical.
type Escalator interface {
	NotifyStaff(ctx context.Context, msg notify.Message) (int, error)
}

type Options struct {
	Delay        time.Duration
	ReplyTimeout time.Duration
	Language     string
	Logger       *logger.Logger
	Metrics      *metrics.Metrics
}

type roomState struct {
	mu sync.Mutex

	seeded      bool
	armed       bool
	introSent   bool
	humanJoined bool
	escalated   bool
	forgotten   bool
	stop        chan struct{}
}

// stopTimer must be called with mu held.
func (st *roomState) stopTimer() {
	if st.stop != nil {
		close(st.stop)
		st.stop = nil
	}
}

// active reports whether the assistant may still write. Must be called with mu held.
func (st *roomState) active() bool {
	return !st.humanJoined && !st.forgotten
}

type Manager struct {
	replier   Replier
	chat      Chat
	escalator Escalator
	loc       *localization.Localizer
	opts      Options
	log       *logger.Logger
	metrics   *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	rooms map[string]*roomState
}

func NewManager(r Replier, chat Chat, esc Escalator, loc *localization.Localizer, opts Options) *Manager {
	if opts.Delay <= 0 {
		opts.Delay = config.DefaultTriageDelay
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = 30 * time.Second
	}
	if opts.Language == "" {
		opts.Language = localization.DefaultLanguage
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		replier:   r,
		chat:      chat,
		escalator: esc,
		loc:       loc,
		opts:      opts,
		log:       opts.Logger,
		metrics:   opts.Metrics,
		ctx:       ctx,
		cancel:    cancel,
		rooms:     make(map[string]*roomState),
	}
}

func (m *Manager) state(roomID string) *roomState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.rooms[roomID]
	if !ok {
		st = &roomState{}
		m.rooms[roomID] = st
	}
	return st
}

// Observe feeds a chat message to the assistant. Staff messages should be observed
// before they are stored, student messages after.
func (m *Manager) Observe(ctx context.Context, msg *models.ChatMessage, senderRole models.Role) {
	if msg == nil || msg.IsSystem || m.ctx.Err() != nil {
		return
	}
	st := m.state(msg.ChatRoomID)

	st.mu.Lock()
	defer st.mu.Unlock()

	if senderRole.IsStaff() {
		if !st.humanJoined {
			m.log.Debug("Counselor joined, triage stopped", "room_id", msg.ChatRoomID)
		}
		st.humanJoined = true
		st.seeded = true
		st.stopTimer()
		return
	}

	if !st.seeded {
		snap, err := m.chat.Snapshot(ctx, msg.ChatRoomID)
		if err != nil {
			m.log.Warn("Failed to load triage state", "room_id", msg.ChatRoomID, "error", err)
			return
		}
		st.humanJoined = st.humanJoined || snap.HumanJoined
		st.introSent = st.introSent || snap.IntroSent
		st.seeded = true
	}
	if !st.active() {
		return
	}

	if !st.introSent {
		if !st.armed {
			m.arm(msg.ChatRoomID, st)
		}
		return
	}

	m.wg.Add(1)
	go m.reply(msg.ChatRoomID, msg.ID, msg.Content, st)
}

// arm starts the intro timer. Must be called with st.mu held.
func (m *Manager) arm(roomID string, st *roomState) {
	st.armed = true
	stop := make(chan struct{})
	st.stop = stop

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		timer := time.NewTimer(m.opts.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			m.fire(roomID, st, stop)
		case <-stop:
		case <-m.ctx.Done():
		}
	}()
}

func (m *Manager) fire(roomID string, st *roomState, stop chan struct{}) {
	st.mu.Lock()
	defer st.mu.Unlock()

	// a staff message or Forget that raced the timer wins
	if st.stop != stop || !st.active() || st.introSent {
		return
	}
	st.stop = nil
	st.armed = false

	text := m.loc.GetString(m.opts.Language, "triage_intro")
	if _, err := m.chat.PostAIMessage(m.ctx, roomID, text, true); err != nil {
		m.log.Error("Failed to post triage intro", "room_id", roomID, "error", err)
		return
	}
	st.introSent = true
	m.metrics.ObserveTriageMessage("intro")
	m.log.Info("Triage intro sent", "room_id", roomID)
}

func (m *Manager) reply(roomID, messageID, latest string, st *roomState) {
	defer m.wg.Done()

	ctx, cancel := context.WithTimeout(m.ctx, m.opts.ReplyTimeout)
	defer cancel()

	var turns []classifier.Turn
	history, err := m.chat.History(ctx, roomID)
	if err != nil {
		m.log.Warn("Failed to load chat history for triage", "room_id", roomID, "error", err)
	}
	for _, h := range history {
		if h.ID == messageID || h.Content == "" {
			continue
		}
		role := "user"
		if h.SenderID == nil {
			role = "model"
		}
		turns = append(turns, classifier.Turn{Role: role, Text: h.Content})
	}

	res, replyErr := m.replier.Reply(ctx, turns, latest)
	kind := "reply"
	if replyErr != nil || res.Text == "" {
		m.log.Warn("Triage reply failed, sending fallback", "room_id", roomID, "error", replyErr)
		res = classifier.Reply{Text: m.loc.GetString(m.opts.Language, "triage_fallback")}
		kind = "fallback"
	}

	st.mu.Lock()
	if !st.active() {
		st.mu.Unlock()
		return
	}
	if _, err := m.chat.PostAIMessage(m.ctx, roomID, res.Text, false); err != nil {
		st.mu.Unlock()
		m.log.Error("Failed to post triage reply", "room_id", roomID, "error", err)
		return
	}
	m.metrics.ObserveTriageMessage(kind)

	escalate := false
	if kind == "reply" {
		urgency := analysis.ClampUrgency(res.UrgencyLevel)
		if err := m.chat.RecordAssessment(m.ctx, roomID, urgency, res.Assessment); err != nil {
			m.log.Error("Failed to record triage assessment", "room_id", roomID, "error", err)
		}
		if urgency == config.UrgencyCritical && !st.escalated {
			st.escalated = true
			escalate = true
		}
	}
	st.mu.Unlock()

	if escalate && m.escalator != nil {
		_, err := m.escalator.NotifyStaff(m.ctx, notify.Message{
			Type:    models.NotifyCrisisAlert,
			Title:   m.loc.GetString(m.opts.Language, "notif_crisis_alert_title"),
			Message: m.loc.GetString(m.opts.Language, "notif_chat_crisis_message"),
			Link:    "/chat/rooms/" + roomID,
			Urgent:  true,
		})
		if err != nil {
			m.log.Error("Failed to escalate critical room", "room_id", roomID, "error", err)
		}
	}
}

// Forget drops a room's state, e.g. after it was deleted or transferred.
// Timers and replies in flight for the room are discarded.
func (m *Manager) Forget(roomID string) {
	m.mu.Lock()
	st, ok := m.rooms[roomID]
	delete(m.rooms, roomID)
	m.mu.Unlock()
	if !ok {
		return
	}
	st.mu.Lock()
	st.forgotten = true
	st.stopTimer()
	st.mu.Unlock()
}

// Close stops all timers and waits for replies in flight to finish.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}
