package models

import (
	"encoding/json"
	"time"
)

// Event types published on realtime channels.
const (
	EventNotification   = "notification.created"
	EventMessageCreated = "message.created"
	EventMessageRead    = "message.read"
	EventMessageDeleted = "message.deleted"
	EventRoomUpdated    = "room.updated"
	EventRoomDeleted    = "room.deleted"
	// EventError is only written to a websocket client, never published.
	EventError = "error"
)

// Event is the envelope published on Redis channels and written to websocket clients.
type Event struct {
	ID      string          `json:"id"`
	Channel string          `json:"channel"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

// NewEvent marshals payload into an event envelope.
func NewEvent(channel, eventType, id string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{ID: id, Channel: channel, Type: eventType, Payload: raw, At: time.Now().UTC()}, nil
}

// NotificationChannel is the per-user channel notifications are pushed on.
func NotificationChannel(userID string) string {
	return "notifications:" + userID
}

// RoomChannel is the channel a chat room's events are pushed on.
func RoomChannel(roomID string) string {
	return "room:" + roomID
}

// RoomChannelPattern matches every room channel.
const RoomChannelPattern = "room:*"

// ClientFrame is a frame sent by a websocket client.
type ClientFrame struct {
	Type    string `json:"type"` // "join", "leave", "message", "read", "resync"
	RoomID  string `json:"room_id"`
	Content string `json:"content,omitempty"`
	// MessageID is used by "read" frames.
	MessageID string `json:"message_id,omitempty"`
	// Since bounds a "resync" of a room; zero means the last two minutes.
	Since time.Time `json:"since,omitempty"`
}
