package chathub

import (
	"campuscare/backend/internal/apperr"
	"campuscare/backend/internal/localization"
	"campuscare/backend/internal/logger"
	"campuscare/backend/internal/models"
	"campuscare/backend/internal/notify"
	"campuscare/backend/internal/storage"
	"campuscare/backend/internal/triage"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"gorm.io/datatypes"
)

// Triage is the AI assistant watching support chats.
type Triage interface {
	Observe(ctx context.Context, msg *models.ChatMessage, senderRole models.Role)
	Forget(roomID string)
}

type Notifier interface {
	NotifyStaff(ctx context.Context, msg notify.Message) (int, error)
	NotifyUser(ctx context.Context, userID string, msg notify.Message) error
}

// ChatService implements the chat room operations shared by the HTTP API and the websocket hub.
type ChatService struct {
	Storage  storage.Storage
	notifier Notifier
	triage   Triage
	loc      *localization.Localizer
	language string
	log      *logger.Logger
}

func NewChatService(s storage.Storage, n Notifier, loc *localization.Localizer, language string, log *logger.Logger) *ChatService {
	if log == nil {
		log = logger.NewNop()
	}
	if language == "" {
		language = localization.DefaultLanguage
	}
	return &ChatService{Storage: s, notifier: n, loc: loc, language: language, log: log}
}

// SetTriage attaches the assistant. The assistant itself writes through this service.
func (c *ChatService) SetTriage(t Triage) {
	c.triage = t
}

func notFound(err error, what string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound(what)
	}
	return err
}

// CanAccess reports whether actor may read and write in the room.
// Counselors see public rooms and rooms assigned to them; admins see every room.
func CanAccess(room *models.ChatRoom, actor models.Actor) bool {
	switch actor.Role {
	case models.RoleStudent:
		return room.StudentID == actor.ID
	case models.RoleCounselor:
		return room.IsPublic() || room.AssignedTo(actor.ID)
	case models.RoleAdmin:
		return true
	}
	return false
}

// Room loads a room the actor has access to.
func (c *ChatService) Room(ctx context.Context, actor models.Actor, roomID string) (*models.ChatRoom, error) {
	room, err := c.Storage.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, notFound(err, "chat room")
	}
	if !CanAccess(room, actor) {
		return nil, apperr.Forbidden("no access to this chat room")
	}
	return room, nil
}

// OpenRoom returns the student's room, creating it on first use.
func (c *ChatService) OpenRoom(ctx context.Context, actor models.Actor) (*models.ChatRoom, bool, error) {
	if actor.Role != models.RoleStudent {
		return nil, false, apperr.Forbidden("only students open support chats")
	}
	room, err := c.Storage.GetRoomForStudent(ctx, actor.ID)
	if err == nil {
		return room, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, err
	}

	room = &models.ChatRoom{StudentID: actor.ID}
	if err := c.Storage.CreateRoom(ctx, room); err != nil {
		// a concurrent open may have won the unique index on student_id
		if existing, getErr := c.Storage.GetRoomForStudent(ctx, actor.ID); getErr == nil {
			return existing, false, nil
		}
		return nil, false, err
	}
	c.publish(ctx, room.ID, models.EventRoomUpdated, room.ID, room)

	if c.notifier != nil {
		_, err := c.notifier.NotifyStaff(ctx, notify.Message{
			Type:    models.NotifyChatRequest,
			Title:   c.loc.GetString(c.language, "notif_chat_request_title"),
			Message: c.loc.GetString(c.language, "notif_chat_request_message"),
			Link:    "/chat/rooms/" + room.ID,
		})
		if err != nil {
			c.log.Error("Failed to notify staff about chat request", "room_id", room.ID, "error", err)
		}
	}
	c.log.Info("Chat room opened", "room_id", room.ID)
	return room, true, nil
}

func (c *ChatService) ListRooms(ctx context.Context, actor models.Actor) ([]models.ChatRoom, error) {
	switch actor.Role {
	case models.RoleStudent:
		room, err := c.Storage.GetRoomForStudent(ctx, actor.ID)
		if errors.Is(err, storage.ErrNotFound) {
			return []models.ChatRoom{}, nil
		}
		if err != nil {
			return nil, err
		}
		return []models.ChatRoom{*room}, nil
	case models.RoleCounselor:
		return c.Storage.ListRoomsForCounselor(ctx, actor.ID)
	case models.RoleAdmin:
		return c.Storage.ListAllRooms(ctx)
	}
	return nil, apperr.Forbidden("unknown role")
}

// ClaimRoom assigns a public room to the calling counselor.
func (c *ChatService) ClaimRoom(ctx context.Context, actor models.Actor, roomID string) (*models.ChatRoom, error) {
	if !actor.Role.IsStaff() {
		return nil, apperr.Forbidden("only counselors can claim rooms")
	}
	room, err := c.Room(ctx, actor, roomID)
	if err != nil {
		return nil, err
	}
	if room.AssignedTo(actor.ID) {
		return room, nil
	}
	if !room.IsPublic() {
		return nil, apperr.Conflict("room is already assigned")
	}
	fields := map[string]interface{}{"counselor_id": actor.ID, "status": models.RoomActive}
	if err := c.Storage.UpdateRoom(ctx, roomID, fields); err != nil {
		return nil, notFound(err, "chat room")
	}
	return c.reload(ctx, roomID)
}

// TransferRoom hands the room to another counselor.
func (c *ChatService) TransferRoom(ctx context.Context, actor models.Actor, roomID, toCounselorID, reason string) (*models.ChatRoom, error) {
	if !actor.Role.IsStaff() {
		return nil, apperr.Forbidden("only counselors can transfer rooms")
	}
	room, err := c.Room(ctx, actor, roomID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleCounselor && !room.AssignedTo(actor.ID) {
		return nil, apperr.Forbidden("only the assigned counselor can transfer the room")
	}
	if room.AssignedTo(toCounselorID) {
		return nil, apperr.Invalid("room is already assigned to this counselor")
	}
	target, err := c.Storage.GetUserByID(ctx, toCounselorID)
	if err != nil {
		return nil, notFound(err, "counselor")
	}
	if target.Role != models.RoleCounselor {
		return nil, apperr.Invalid("rooms can only be transferred to counselors")
	}

	err = c.Storage.Transaction(ctx, func(tx storage.Storage) error {
		if err := tx.SaveTransfer(ctx, &models.ChatTransfer{
			ChatRoomID:      roomID,
			FromCounselorID: room.CounselorID,
			ToCounselorID:   toCounselorID,
			Reason:          strings.TrimSpace(reason),
		}); err != nil {
			return err
		}
		return tx.UpdateRoom(ctx, roomID, map[string]interface{}{"counselor_id": toCounselorID, "status": models.RoomActive})
	})
	if err != nil {
		return nil, err
	}
	if c.triage != nil {
		c.triage.Forget(roomID)
	}

	if c.notifier != nil {
		lang := target.Language
		if lang == "" {
			lang = c.language
		}
		err := c.notifier.NotifyUser(ctx, toCounselorID, notify.Message{
			Type:    models.NotifyChatTransfer,
			Title:   c.loc.GetString(lang, "notif_chat_transfer_title"),
			Message: c.loc.Format(lang, "notif_chat_transfer_message", strings.TrimSpace(reason)),
			Link:    "/chat/rooms/" + roomID,
		})
		if err != nil {
			c.log.Error("Failed to notify transfer target", "room_id", roomID, "error", err)
		}
	}
	c.log.Info("Chat room transferred", "room_id", roomID, "to", toCounselorID)
	return c.reload(ctx, roomID)
}

// DeleteRoom removes the room and its messages. Only the student who owns it or an admin may.
func (c *ChatService) DeleteRoom(ctx context.Context, actor models.Actor, roomID string) error {
	room, err := c.Room(ctx, actor, roomID)
	if err != nil {
		return err
	}
	if room.StudentID != actor.ID && actor.Role != models.RoleAdmin {
		return apperr.Forbidden("only the student can delete the room")
	}
	if err := c.Storage.DeleteRoom(ctx, roomID); err != nil {
		return notFound(err, "chat room")
	}
	if c.triage != nil {
		c.triage.Forget(roomID)
	}
	c.publish(ctx, roomID, models.EventRoomDeleted, roomID, map[string]string{"id": roomID})
	return nil
}

// SendMessage stores a message and pushes it to the room.
func (c *ChatService) SendMessage(ctx context.Context, actor models.Actor, roomID, content string) (*models.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Invalid("message is empty")
	}
	room, err := c.Room(ctx, actor, roomID)
	if err != nil {
		return nil, err
	}

	sender := actor.ID
	msg := &models.ChatMessage{ChatRoomID: roomID, SenderID: &sender, Content: content}

	// staff are seen by the assistant before the write so a timer cannot fire in between
	if actor.Role.IsStaff() && c.triage != nil {
		c.triage.Observe(ctx, msg, actor.Role)
	}
	if err := c.Storage.SaveMessage(ctx, msg); err != nil {
		if actor.Role.IsStaff() && c.triage != nil {
			// the reply never landed; re-seed from the stored thread
			c.triage.Forget(roomID)
		}
		return nil, err
	}
	if actor.Role.IsStaff() && room.Status == models.RoomWaiting {
		if err := c.Storage.UpdateRoom(ctx, roomID, map[string]interface{}{"status": models.RoomActive}); err != nil {
			c.log.Warn("Failed to activate room", "room_id", roomID, "error", err)
		}
	}
	c.publish(ctx, roomID, models.EventMessageCreated, msg.ID, msg)

	if !actor.Role.IsStaff() && c.triage != nil {
		c.triage.Observe(ctx, msg, actor.Role)
	}
	return msg, nil
}

func (c *ChatService) ListMessages(ctx context.Context, actor models.Actor, roomID string) ([]models.ChatMessage, error) {
	if _, err := c.Room(ctx, actor, roomID); err != nil {
		return nil, err
	}
	return c.Storage.ListMessages(ctx, roomID)
}

// MarkRead adds the actor to the message's read receipts.
func (c *ChatService) MarkRead(ctx context.Context, actor models.Actor, messageID string) (*models.ChatMessage, error) {
	msg, err := c.Storage.GetMessageByID(ctx, messageID)
	if err != nil {
		return nil, notFound(err, "message")
	}
	if _, err := c.Room(ctx, actor, msg.ChatRoomID); err != nil {
		return nil, err
	}
	if msg.HasReader(actor.ID) {
		return msg, nil
	}
	msg, err = c.Storage.MarkMessageRead(ctx, messageID, actor.ID)
	if err != nil {
		return nil, notFound(err, "message")
	}
	c.publish(ctx, msg.ChatRoomID, models.EventMessageRead, msg.ID, map[string]any{"id": msg.ID, "read_by": msg.ReadBy})
	return msg, nil
}

// DeleteMessage removes a message written by the actor.
func (c *ChatService) DeleteMessage(ctx context.Context, actor models.Actor, messageID string) error {
	msg, err := c.Storage.GetMessageByID(ctx, messageID)
	if err != nil {
		return notFound(err, "message")
	}
	if msg.SenderID == nil || *msg.SenderID != actor.ID {
		return apperr.Forbidden("only the sender can delete a message")
	}
	if err := c.Storage.DeleteMessage(ctx, messageID, actor.ID); err != nil {
		return notFound(err, "message")
	}
	c.publish(ctx, msg.ChatRoomID, models.EventMessageDeleted, msg.ID, map[string]string{"id": msg.ID})
	return nil
}

// Snapshot reads a room's triage state back from its stored messages.
func (c *ChatService) Snapshot(ctx context.Context, roomID string) (triage.Snapshot, error) {
	room, err := c.Storage.GetRoomByID(ctx, roomID)
	if err != nil {
		return triage.Snapshot{}, err
	}
	msgs, err := c.Storage.ListMessages(ctx, roomID)
	if err != nil {
		return triage.Snapshot{}, err
	}

	var snap triage.Snapshot
	checked := map[string]bool{}
	for _, m := range msgs {
		if m.IsAI() {
			if intro, _ := m.Metadata["intro"].(bool); intro {
				snap.IntroSent = true
			}
			continue
		}
		if m.SenderID == nil || *m.SenderID == room.StudentID || checked[*m.SenderID] {
			continue
		}
		checked[*m.SenderID] = true
		u, err := c.Storage.GetUserByID(ctx, *m.SenderID)
		if err == nil && u.Role.IsStaff() {
			snap.HumanJoined = true
		}
	}
	return snap, nil
}

func (c *ChatService) History(ctx context.Context, roomID string) ([]models.ChatMessage, error) {
	return c.Storage.ListMessages(ctx, roomID)
}

// PostAIMessage stores and pushes a message written by the assistant.
func (c *ChatService) PostAIMessage(ctx context.Context, roomID, content string, intro bool) (*models.ChatMessage, error) {
	msg := &models.ChatMessage{
		ChatRoomID: roomID,
		Content:    content,
		IsSystem:   true,
		Metadata:   models.AIMetadata(intro),
	}
	if err := c.Storage.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}
	c.publish(ctx, roomID, models.EventMessageCreated, msg.ID, msg)
	return msg, nil
}

// RecordAssessment stores the assistant's latest urgency and assessment on the room.
func (c *ChatService) RecordAssessment(ctx context.Context, roomID string, urgency int, assessment map[string]any) error {
	raw, err := json.Marshal(assessment)
	if err != nil {
		return err
	}
	fields := map[string]interface{}{
		"urgency_level":      urgency,
		"ai_assessment":      datatypes.JSON(raw),
		"ai_triage_complete": true,
	}
	if err := c.Storage.UpdateRoom(ctx, roomID, fields); err != nil {
		return err
	}
	if room, err := c.Storage.GetRoomByID(ctx, roomID); err == nil {
		c.publish(ctx, roomID, models.EventRoomUpdated, roomID, room)
	}
	return nil
}

func (c *ChatService) reload(ctx context.Context, roomID string) (*models.ChatRoom, error) {
	room, err := c.Storage.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, notFound(err, "chat room")
	}
	c.publish(ctx, roomID, models.EventRoomUpdated, roomID, room)
	return room, nil
}

// publish pushes a room event. Subscribers that miss it catch up by polling.
func (c *ChatService) publish(ctx context.Context, roomID, eventType, id string, payload any) {
	ev, err := models.NewEvent(models.RoomChannel(roomID), eventType, id, payload)
	if err == nil {
		err = c.Storage.Publish(ctx, ev)
	}
	if err != nil {
		c.log.Warn("Failed to publish room event", "room_id", roomID, "type", eventType, "error", err)
	}
}
