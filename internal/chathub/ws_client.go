package chathub

import (
	"campuscare/backend/internal/apperr"
	"campuscare/backend/internal/models"
	"campuscare/backend/internal/realtime"
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBuffer     = 64

	// resyncWindow: наскільки назад дивиться resync кімнати, якщо клієнт не вказав межу
	resyncWindow = 2 * time.Minute
)

// WebSocketClient реалізує Client поверх з'єднання gorilla websocket.
// Окрім подій кімнат пересилає сповіщення користувача з realtime.Subscriber.
type WebSocketClient struct {
	actor         models.Actor
	Conn          *websocket.Conn
	Hub           *ManagerService
	Send          chan models.Event
	notifications *realtime.Subscriber

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWebSocketClient підключає з'єднання до хабу. notifications може бути nil.
func NewWebSocketClient(hub *ManagerService, conn *websocket.Conn, actor models.Actor, notifications *realtime.Subscriber) *WebSocketClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketClient{
		actor:         actor,
		Conn:          conn,
		Hub:           hub,
		Send:          make(chan models.Event, sendBuffer),
		notifications: notifications,
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (c *WebSocketClient) GetUserID() string                   { return c.actor.ID }
func (c *WebSocketClient) Actor() models.Actor                 { return c.actor }
func (c *WebSocketClient) GetSendChannel() chan<- models.Event { return c.Send }

func (c *WebSocketClient) Run() {
	if c.notifications != nil {
		c.notifications.Start(c.ctx)
	}
	go c.writePump()
	go c.readPump()
}

// Close закриває Send, що зупиняє writePump і разом з ним з'єднання
func (c *WebSocketClient) Close() {
	close(c.Send)
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Warn("Error reading websocket message", "user_id", c.actor.ID, "error", err)
			}
			return
		}

		var frame models.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.Hub.Reply(c, errorEvent(apperr.Invalid("malformed frame")))
			continue
		}
		if err := c.handle(frame); err != nil {
			c.Hub.Reply(c, errorEvent(err))
		}
	}
}

func (c *WebSocketClient) handle(frame models.ClientFrame) error {
	chat := c.Hub.Chat
	switch frame.Type {
	case "join":
		if _, err := chat.Room(c.ctx, c.actor, frame.RoomID); err != nil {
			return err
		}
		c.Hub.Join(c, frame.RoomID)
		return nil

	case "leave":
		c.Hub.Leave(c, frame.RoomID)
		return nil

	case "message":
		// відправник отримає своє повідомлення назад через канал кімнати
		_, err := chat.SendMessage(c.ctx, c.actor, frame.RoomID, frame.Content)
		return err

	case "read":
		_, err := chat.MarkRead(c.ctx, c.actor, frame.MessageID)
		return err

	case "resync":
		if c.notifications != nil {
			c.notifications.Resync()
		}
		if frame.RoomID == "" {
			return nil
		}
		if _, err := chat.Room(c.ctx, c.actor, frame.RoomID); err != nil {
			return err
		}
		since := frame.Since
		if since.IsZero() {
			since = time.Now().UTC().Add(-resyncWindow)
		}
		events, err := chat.Storage.PollEvents(c.ctx, models.RoomChannel(frame.RoomID), since)
		if err != nil {
			return err
		}
		c.Hub.Reply(c, events...)
		return nil
	}
	return apperr.Invalid("unknown frame type " + frame.Type)
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.cancel()
		if c.notifications != nil {
			c.notifications.Close()
		}
		c.Conn.Close()
	}()

	var notifications <-chan models.Event
	if c.notifications != nil {
		notifications = c.notifications.Events()
	}

	for {
		select {
		case ev, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(ev); err != nil {
				return
			}

		case ev, ok := <-notifications:
			if !ok {
				notifications = nil
				continue
			}
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func errorEvent(err error) models.Event {
	ae := apperr.As(err)
	ev, _ := models.NewEvent("", models.EventError, "", map[string]string{"code": ae.Code, "message": ae.Message})
	return ev
}
