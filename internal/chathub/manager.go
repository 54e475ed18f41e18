package chathub

import (
	"campuscare/backend/internal/logger"
	"campuscare/backend/internal/models"
	"context"
	"encoding/json"
	"strings"
	"sync"
)

type membership struct {
	client Client
	roomID string
	join   bool
}

// Direct is a batch of events for one client that did not come through pub/sub,
// such as error replies and resync results.
type Direct struct {
	Client Client
	Events []models.Event
}

// ManagerService це WebSocket-хаб. Таблицями клієнтів і кімнат володіє одна горутина;
// решта спілкується з нею через канали.
type ManagerService struct {
	Clients map[Client]bool
	rooms   map[string]map[Client]bool

	RegisterCh   chan Client
	UnregisterCh chan Client
	PubSubCh     chan models.Event
	DirectCh     chan Direct
	membershipCh chan membership

	Chat *ChatService
	log  *logger.Logger

	done chan struct{}
	wg   sync.WaitGroup
}

// NewManagerService builds a hub. chat may be nil when room events are fed through PubSubCh directly.
func NewManagerService(chat *ChatService, log *logger.Logger) *ManagerService {
	if log == nil {
		log = logger.NewNop()
	}
	return &ManagerService{
		Clients:      make(map[Client]bool),
		rooms:        make(map[string]map[Client]bool),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		PubSubCh:     make(chan models.Event),
		DirectCh:     make(chan Direct),
		membershipCh: make(chan membership),
		Chat:         chat,
		log:          log,
		done:         make(chan struct{}),
	}
}

// Done is closed once the hub has stopped.
func (m *ManagerService) Done() <-chan struct{} {
	return m.done
}

// Run обробляє трафік хабу до скасування ctx, потім закриває всіх клієнтів
func (m *ManagerService) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		m.wg.Wait()
		for c := range m.Clients {
			m.remove(c)
		}
		close(m.done)
	}()

	if m.Chat != nil && m.Chat.Storage != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.StartPubSubListener(ctx)
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-m.RegisterCh:
			m.Clients[c] = true
			m.log.Debug("Client registered", "user_id", c.GetUserID())

		case c := <-m.UnregisterCh:
			m.remove(c)

		case mb := <-m.membershipCh:
			if !m.Clients[mb.client] {
				continue
			}
			if mb.join {
				if m.rooms[mb.roomID] == nil {
					m.rooms[mb.roomID] = make(map[Client]bool)
				}
				m.rooms[mb.roomID][mb.client] = true
			} else {
				m.leave(mb.client, mb.roomID)
			}

		case d := <-m.DirectCh:
			if !m.Clients[d.Client] {
				continue
			}
			for _, ev := range d.Events {
				if !m.send(d.Client, ev) {
					break
				}
			}

		case ev := <-m.PubSubCh:
			m.broadcast(ev)
		}
	}
}

// Register, Unregister, Join, Leave and Reply give up once the hub has stopped.

func (m *ManagerService) Register(c Client) bool {
	select {
	case m.RegisterCh <- c:
		return true
	case <-m.done:
		return false
	}
}

func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
	}
}

// Join adds the client to a room's audience. Callers check access first.
func (m *ManagerService) Join(c Client, roomID string) {
	select {
	case m.membershipCh <- membership{client: c, roomID: roomID, join: true}:
	case <-m.done:
	}
}

func (m *ManagerService) Leave(c Client, roomID string) {
	select {
	case m.membershipCh <- membership{client: c, roomID: roomID}:
	case <-m.done:
	}
}

func (m *ManagerService) Reply(c Client, events ...models.Event) {
	if len(events) == 0 {
		return
	}
	select {
	case m.DirectCh <- Direct{Client: c, Events: events}:
	case <-m.done:
	}
}

func (m *ManagerService) broadcast(ev models.Event) {
	roomID := strings.TrimPrefix(ev.Channel, "room:")
	members := m.rooms[roomID]
	if len(members) == 0 {
		return
	}

	for c := range members {
		m.send(c, ev)
	}

	switch ev.Type {
	case models.EventRoomDeleted:
		delete(m.rooms, roomID)
	case models.EventRoomUpdated:
		// після передачі попередній консультант втрачає доступ
		var room models.ChatRoom
		if err := json.Unmarshal(ev.Payload, &room); err != nil {
			m.log.Warn("Bad room payload", "room_id", roomID, "error", err)
			return
		}
		for c := range m.rooms[roomID] {
			if !CanAccess(&room, c.Actor()) {
				m.leave(c, roomID)
			}
		}
	}
}

// send відключає клієнта, якщо його буфер заповнений
func (m *ManagerService) send(c Client, ev models.Event) bool {
	select {
	case c.GetSendChannel() <- ev:
		return true
	default:
		m.log.Warn("Dropping slow client", "user_id", c.GetUserID())
		m.remove(c)
		return false
	}
}

func (m *ManagerService) leave(c Client, roomID string) {
	members := m.rooms[roomID]
	delete(members, c)
	if len(members) == 0 {
		delete(m.rooms, roomID)
	}
}

func (m *ManagerService) remove(c Client) {
	if !m.Clients[c] {
		return
	}
	delete(m.Clients, c)
	for roomID := range m.rooms {
		m.leave(c, roomID)
	}
	c.Close()
	m.log.Debug("Client unregistered", "user_id", c.GetUserID())
}
