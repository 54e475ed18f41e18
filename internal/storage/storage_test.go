package storage_test

import (
	"campuscare/backend/internal/models"
	"campuscare/backend/internal/storage"
	"campuscare/backend/internal/storage/storagetest"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createUser(t *testing.T, st storage.Storage, name string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{Username: name, Email: name + "@example.test", PasswordHash: "x", Role: role}
	require.NoError(t, st.CreateUser(context.Background(), u))
	return u
}

func TestUsers(t *testing.T) {
	st, _ := storagetest.New(t)
	ctx := context.Background()

	student := createUser(t, st, "sky", models.RoleStudent)
	counselor := createUser(t, st, "river", models.RoleCounselor)
	admin := createUser(t, st, "stone", models.RoleAdmin)

	got, err := st.GetUserByUsername(ctx, "sky")
	require.NoError(t, err)
	assert.Equal(t, student.ID, got.ID)

	_, err = st.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	ids, err := st.ListUserIDsByRoles(ctx, models.StaffRoles...)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{counselor.ID, admin.ID}, ids)

	ids, err = st.ListUserIDsByRoles(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	dup := &models.User{Username: "sky", Email: "other@example.test", PasswordHash: "x", Role: models.RoleStudent}
	assert.Error(t, st.CreateUser(ctx, dup), "usernames are unique")
}

func TestRooms_VisibilityAndDelete(t *testing.T) {
	st, _ := storagetest.New(t)
	ctx := context.Background()

	c1, c2 := "c1", "c2"
	public := &models.ChatRoom{StudentID: "s1"}
	mine := &models.ChatRoom{StudentID: "s2", CounselorID: &c1}
	theirs := &models.ChatRoom{StudentID: "s3", CounselorID: &c2}
	for _, r := range []*models.ChatRoom{public, mine, theirs} {
		require.NoError(t, st.CreateRoom(ctx, r))
	}

	assert.Error(t, st.CreateRoom(ctx, &models.ChatRoom{StudentID: "s1"}), "one room per student")

	rooms, err := st.ListRoomsForCounselor(ctx, c1)
	require.NoError(t, err)
	var ids []string
	for _, r := range rooms {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{public.ID, mine.ID}, ids)

	require.NoError(t, st.UpdateRoom(ctx, public.ID, map[string]interface{}{"urgency_level": 2}))
	got, err := st.GetRoomForStudent(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.UrgencyLevel)

	assert.ErrorIs(t, st.UpdateRoom(ctx, "missing", map[string]interface{}{"urgency_level": 1}), storage.ErrNotFound)

	require.NoError(t, st.SaveMessage(ctx, &models.ChatMessage{ChatRoomID: public.ID, Content: "hi"}))
	require.NoError(t, st.DeleteRoom(ctx, public.ID))

	msgs, err := st.ListMessages(ctx, public.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.ErrorIs(t, st.DeleteRoom(ctx, public.ID), storage.ErrNotFound)
}

func TestMessages_ReadReceiptsAndDelete(t *testing.T) {
	st, _ := storagetest.New(t)
	ctx := context.Background()

	sender := "u1"
	msg := &models.ChatMessage{ChatRoomID: "r1", SenderID: &sender, Content: "hello"}
	require.NoError(t, st.SaveMessage(ctx, msg))

	got, err := st.MarkMessageRead(ctx, msg.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, []string(got.ReadBy))

	got, err = st.MarkMessageRead(ctx, msg.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, []string(got.ReadBy), "marking twice is a no-op")

	stored, err := st.GetMessageByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasReader("u2"))

	_, err = st.MarkMessageRead(ctx, "missing", "u2")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, st.DeleteMessage(ctx, msg.ID, "u2"), storage.ErrNotFound, "only the sender may delete")
	require.NoError(t, st.DeleteMessage(ctx, msg.ID, sender))
	_, err = st.GetMessageByID(ctx, msg.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestModerationRecords(t *testing.T) {
	st, _ := storagetest.New(t)
	ctx := context.Background()

	flagged := &models.FlaggedContent{ContentKind: models.KindPost, AuthorID: "a1", Body: "b", FlagLevel: 2, Category: "immediate"}
	require.NoError(t, st.CreateFlagged(ctx, flagged))
	pending := &models.PendingContent{ContentKind: models.KindComment, AuthorID: "a1", Body: "b", FlagLevel: 4}
	require.NoError(t, st.CreatePending(ctx, pending))

	open, err := st.ListFlagged(ctx, true)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, []string{}, []string(open[0].Keywords))

	flagged.IsResolved = true
	require.NoError(t, st.SaveFlagged(ctx, flagged))
	open, err = st.ListFlagged(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, open)
	all, err := st.ListFlagged(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	appeal := &models.ContentAppeal{UserID: "a1", PendingContentID: &pending.ID, Reason: "r"}
	require.NoError(t, st.CreateAppeal(ctx, appeal))

	has, err := st.HasOpenAppeal(ctx, "", pending.ID)
	require.NoError(t, err)
	assert.True(t, has)
	has, err = st.HasOpenAppeal(ctx, flagged.ID, "")
	require.NoError(t, err)
	assert.False(t, has)

	appeal.Status = models.AppealRejected
	require.NoError(t, st.DecideAppeal(ctx, appeal))
	assert.ErrorIs(t, st.DecideAppeal(ctx, appeal), storage.ErrStale, "only a pending appeal can be decided")
	has, err = st.HasOpenAppeal(ctx, "", pending.ID)
	require.NoError(t, err)
	assert.False(t, has)

	rejected, err := st.ListAppeals(ctx, models.AppealRejected)
	require.NoError(t, err)
	assert.Len(t, rejected, 1)
}

func TestResolvePending_IsConditional(t *testing.T) {
	st, _ := storagetest.New(t)
	ctx := context.Background()

	pending := &models.PendingContent{ContentKind: models.KindPost, AuthorID: "a1", Body: "b", FlagLevel: 4}
	require.NoError(t, st.CreatePending(ctx, pending))

	// two reviewers read the same unresolved row
	first, err := st.GetPendingByID(ctx, pending.ID)
	require.NoError(t, err)
	second, err := st.GetPendingByID(ctx, pending.ID)
	require.NoError(t, err)

	contentID := "post-1"
	first.IsResolved = true
	first.Resolution = models.ResolutionApproved
	first.ContentID = &contentID
	require.NoError(t, st.ResolvePending(ctx, first, false))

	second.IsResolved = true
	second.Resolution = models.ResolutionRejected
	assert.ErrorIs(t, st.ResolvePending(ctx, second, false), storage.ErrStale)

	stored, err := st.GetPendingByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionApproved, stored.Resolution)
	require.NotNil(t, stored.ContentID)
	assert.Equal(t, contentID, *stored.ContentID)

	// a rejected, unpublished item can still be published once
	rejected := &models.PendingContent{ContentKind: models.KindPost, AuthorID: "a1", Body: "b", FlagLevel: 4,
		IsResolved: true, Resolution: models.ResolutionRejected}
	require.NoError(t, st.CreatePending(ctx, rejected))
	rejected.Resolution = models.ResolutionApproved
	rejected.ContentID = &contentID
	require.NoError(t, st.ResolvePending(ctx, rejected, true))
	assert.ErrorIs(t, st.ResolvePending(ctx, rejected, true), storage.ErrStale)
}

func TestTransaction_RollsBack(t *testing.T) {
	st, _ := storagetest.New(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := st.Transaction(ctx, func(tx storage.Storage) error {
		require.NoError(t, tx.CreatePost(ctx, &models.Post{AuthorID: "a", Title: "t", Body: "b"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	posts, err := st.ListPosts(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestNotifications(t *testing.T) {
	st, _ := storagetest.New(t)
	ctx := context.Background()

	batch := []models.Notification{
		{UserID: "u1", Type: models.NotifyContentFlagged, Title: "a"},
		{UserID: "u1", Type: models.NotifyContentPending, Title: "b"},
		{UserID: "u2", Type: models.NotifyContentPending, Title: "c"},
	}
	require.NoError(t, st.CreateNotifications(ctx, batch))
	require.NoError(t, st.CreateNotifications(ctx, nil))

	list, err := st.ListNotifications(ctx, "u1", time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, st.MarkNotificationRead(ctx, list[0].ID, "u1"))
	assert.ErrorIs(t, st.MarkNotificationRead(ctx, list[0].ID, "u2"), storage.ErrNotFound)

	n, err := st.MarkAllNotificationsRead(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestPublishAndPoll(t *testing.T) {
	st, _ := storagetest.New(t)
	ctx := context.Background()

	sub := st.Subscribe(ctx, models.NotificationChannel("u1"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	ev, err := models.NewEvent(models.NotificationChannel("u1"), models.EventNotification, "n1", map[string]string{"title": "t"})
	require.NoError(t, err)
	require.NoError(t, st.Publish(ctx, ev))

	select {
	case msg := <-sub.Channel():
		var got models.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, "n1", got.ID)
		assert.Equal(t, models.EventNotification, got.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	require.NoError(t, st.CreateNotifications(ctx, []models.Notification{
		{UserID: "u1", Type: models.NotifyCrisisAlert, Title: "first"},
	}))
	require.NoError(t, st.CreateNotifications(ctx, []models.Notification{
		{UserID: "u1", Type: models.NotifyCrisisAlert, Title: "second"},
	}))

	events, err := st.PollEvents(ctx, models.NotificationChannel("u1"), time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, models.EventNotification, e.Type)
		assert.Equal(t, models.NotificationChannel("u1"), e.Channel)
	}

	require.NoError(t, st.SaveMessage(ctx, &models.ChatMessage{ChatRoomID: "r1", Content: "hey"}))
	events, err = st.PollEvents(ctx, models.RoomChannel("r1"), time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventMessageCreated, events[0].Type)

	_, err = st.PollEvents(ctx, "weird", time.Time{})
	assert.Error(t, err)
}
