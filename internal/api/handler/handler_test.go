package handler_test

import (
	"bytes"
	"campuscare/backend/internal/api/handler"
	"campuscare/backend/internal/appeal"
	"campuscare/backend/internal/auth"
	"campuscare/backend/internal/chathub"
	"campuscare/backend/internal/classifier"
	"campuscare/backend/internal/localization"
	"campuscare/backend/internal/metrics"
	"campuscare/backend/internal/models"
	"campuscare/backend/internal/moderation"
	"campuscare/backend/internal/notify"
	"campuscare/backend/internal/storage"
	"campuscare/backend/internal/storage/storagetest"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClassifier struct {
	res classifier.Result
	err error
}

func (c *stubClassifier) Classify(context.Context, string) (classifier.Result, error) {
	return c.res, c.err
}

type env struct {
	router    *gin.Engine
	store     *storage.Service
	auth      *auth.Service
	cls       *stubClassifier
	counselor string
	admin     string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st, _ := storagetest.New(t)
	loc := localization.Default()
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	disp := notify.NewDispatcher(st, time.Minute, nil, nil, m)
	authSvc := auth.NewService(st, "test-secret", time.Hour, "campus.test", nil)
	cls := &stubClassifier{res: classifier.Result{Category: "normal", Confidence: 0.95}}
	chat := chathub.NewChatService(st, disp, loc, "en", nil)

	h := handler.NewHandler(handler.Handler{
		Auth:          authSvc,
		Moderation:    moderation.NewService(st, cls, disp, loc, moderation.Options{Threshold: 0.7, Metrics: m}),
		Appeals:       appeal.NewService(st, disp, loc, "en", nil),
		Chat:          chat,
		Notifications: disp,
		Hub:           chathub.NewManagerService(chat, nil),
		Storage:       st,
		Metrics:       m,
	})

	e := &env{router: h.Router("*"), store: st, auth: authSvc, cls: cls}
	e.counselor = e.staffToken(t, "river", models.RoleCounselor)
	e.admin = e.staffToken(t, "root", models.RoleAdmin)
	return e
}

func (e *env) staffToken(t *testing.T, username string, role models.Role) string {
	t.Helper()
	u, err := e.auth.CreateStaff(context.Background(), username, "longenough", role)
	require.NoError(t, err)
	token, err := e.auth.IssueToken(u)
	require.NoError(t, err)
	return token
}

// signUp registers a student and returns its token and id.
func (e *env) signUp(t *testing.T, username string) (string, string) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/auth/signup", "", gin.H{"username": username, "password": "longenough"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	decode(t, w, &resp)
	return resp.Token, resp.User.ID
}

func (e *env) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst), w.Body.String())
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	decode(t, w, &body)
	return body.Error.Code
}

func TestAuthFlow(t *testing.T) {
	e := newEnv(t)
	e.signUp(t, "sky")

	w := e.do(t, http.MethodPost, "/auth/signup", "", gin.H{"username": "sky", "password": "longenough"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", errorCode(t, w))

	w = e.do(t, http.MethodPost, "/auth/signin", "", gin.H{"username": "sky", "password": "longenough"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	decode(t, w, &resp)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "sky.student@campus.test", resp.User.Email)
	assert.NotContains(t, w.Body.String(), "password")

	w = e.do(t, http.MethodPost, "/auth/signin", "", gin.H{"username": "sky", "password": "wrongwrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPost, "/auth/signin", "", gin.H{"username": "sky"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", errorCode(t, w))
}

func TestRoutesRequireToken(t *testing.T) {
	e := newEnv(t)
	for _, path := range []string{"/posts", "/notifications", "/chat/rooms", "/appeals", "/ws"} {
		w := e.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	student, _ := e.signUp(t, "sky")
	e.do(t, http.MethodPost, "/posts", student, gin.H{"title": "t", "body": "b"})

	w = e.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "moderation_decisions_total")
}

func TestPosts_PublishAndHideAnonymousAuthor(t *testing.T) {
	e := newEnv(t)
	author, authorID := e.signUp(t, "sky")
	reader, _ := e.signUp(t, "lake")

	w := e.do(t, http.MethodPost, "/posts", author, gin.H{"title": "Exams", "body": "Anyone else stressed?", "anonymous": true})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out moderation.Outcome
	decode(t, w, &out)
	assert.Equal(t, moderation.ActionAllow, out.Action)
	require.NotEmpty(t, out.ContentID)

	var list struct {
		Posts []models.Post `json:"posts"`
	}
	decode(t, e.do(t, http.MethodGet, "/posts", reader, nil), &list)
	require.Len(t, list.Posts, 1)
	assert.Empty(t, list.Posts[0].AuthorID)

	decode(t, e.do(t, http.MethodGet, "/posts", author, nil), &list)
	assert.Equal(t, authorID, list.Posts[0].AuthorID)

	decode(t, e.do(t, http.MethodGet, "/posts", e.counselor, nil), &list)
	assert.Equal(t, authorID, list.Posts[0].AuthorID)

	w = e.do(t, http.MethodPost, "/posts/"+out.ContentID+"/comments", reader, gin.H{"body": "Same here"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var comments struct {
		Comments []models.Comment `json:"comments"`
	}
	decode(t, e.do(t, http.MethodGet, "/posts/"+out.ContentID+"/comments", author, nil), &comments)
	require.Len(t, comments.Comments, 1)
	assert.Equal(t, "Same here", comments.Comments[0].Body)

	w = e.do(t, http.MethodGet, "/posts/missing/comments", author, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", errorCode(t, w))
}

func TestPosts_PendingReviewFlow(t *testing.T) {
	e := newEnv(t)
	student, _ := e.signUp(t, "sky")
	e.cls.res = classifier.Result{Category: "normal", Confidence: 0.4}

	w := e.do(t, http.MethodPost, "/posts", student, gin.H{"title": "Hmm", "body": "Ambiguous"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var out moderation.Outcome
	decode(t, w, &out)
	assert.Equal(t, moderation.ActionPending, out.Action)

	w = e.do(t, http.MethodGet, "/moderation/pending", student, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	var pending struct {
		Pending []models.PendingContent `json:"pending"`
	}
	decode(t, e.do(t, http.MethodGet, "/moderation/pending", e.counselor, nil), &pending)
	require.Len(t, pending.Pending, 1)
	assert.Equal(t, out.PendingID, pending.Pending[0].ID)

	w = e.do(t, http.MethodPost, "/moderation/pending/"+out.PendingID+"/approve", e.counselor, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var list struct {
		Posts []models.Post `json:"posts"`
	}
	decode(t, e.do(t, http.MethodGet, "/posts", student, nil), &list)
	require.Len(t, list.Posts, 1)
	assert.Equal(t, "Ambiguous", list.Posts[0].Body)

	var notifs struct {
		Notifications []models.Notification `json:"notifications"`
	}
	decode(t, e.do(t, http.MethodGet, "/notifications", student, nil), &notifs)
	require.NotEmpty(t, notifs.Notifications)
	assert.Equal(t, models.NotifyContentApproved, notifs.Notifications[0].Type)
}

func TestPosts_RejectedThenAppealed(t *testing.T) {
	e := newEnv(t)
	student, _ := e.signUp(t, "sky")
	e.cls.res = classifier.Result{Category: "immediate", Confidence: 0.9}

	w := e.do(t, http.MethodPost, "/posts", student, gin.H{"title": "Help", "body": "I can't go on"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out moderation.Outcome
	decode(t, w, &out)
	assert.Equal(t, moderation.ActionReject, out.Action)
	assert.Empty(t, out.ContentID)
	require.NotEmpty(t, out.FlaggedID)

	var notifs struct {
		Notifications []models.Notification `json:"notifications"`
	}
	decode(t, e.do(t, http.MethodGet, "/notifications", e.counselor, nil), &notifs)
	require.Len(t, notifs.Notifications, 1)
	assert.Equal(t, models.NotifyCrisisAlert, notifs.Notifications[0].Type)

	w = e.do(t, http.MethodPost, "/appeals", student, gin.H{"flagged_content_id": out.FlaggedID, "reason": "I was quoting a song"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var a models.ContentAppeal
	decode(t, w, &a)
	assert.Equal(t, models.AppealPending, a.Status)

	w = e.do(t, http.MethodPost, "/appeals/"+a.ID+"/decide", e.admin, gin.H{"decision": "maybe"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = e.do(t, http.MethodPost, "/appeals/"+a.ID+"/decide", student, gin.H{"decision": "approve"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodPost, "/appeals/"+a.ID+"/decide", e.admin, gin.H{"decision": "approve", "note": "context checked"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &a)
	assert.Equal(t, models.AppealApproved, a.Status)

	var list struct {
		Posts []models.Post `json:"posts"`
	}
	decode(t, e.do(t, http.MethodGet, "/posts", student, nil), &list)
	assert.Len(t, list.Posts, 1)

	var flagged struct {
		Flagged []models.FlaggedContent `json:"flagged"`
	}
	decode(t, e.do(t, http.MethodGet, "/moderation/flagged", e.counselor, nil), &flagged)
	assert.Empty(t, flagged.Flagged)
	decode(t, e.do(t, http.MethodGet, "/moderation/flagged?all=true", e.counselor, nil), &flagged)
	assert.Len(t, flagged.Flagged, 1)
}

func TestPosts_BlockedWritesNothing(t *testing.T) {
	e := newEnv(t)
	student, _ := e.signUp(t, "sky")
	e.cls.res = classifier.Result{Category: "blocked", Confidence: 0.99}

	w := e.do(t, http.MethodPost, "/posts", student, gin.H{"title": "spam", "body": "buy now"})
	require.Equal(t, http.StatusOK, w.Code)
	var out moderation.Outcome
	decode(t, w, &out)
	assert.Equal(t, moderation.ActionBlock, out.Action)
	assert.NotEmpty(t, out.Message)

	var list struct {
		Posts []models.Post `json:"posts"`
	}
	decode(t, e.do(t, http.MethodGet, "/posts", student, nil), &list)
	assert.Empty(t, list.Posts)
}

func TestNotifications_MarkRead(t *testing.T) {
	e := newEnv(t)
	student, _ := e.signUp(t, "sky")
	e.cls.res = classifier.Result{Category: "mild", Confidence: 0.8}
	e.do(t, http.MethodPost, "/posts", student, gin.H{"title": "t", "body": "b"})
	e.do(t, http.MethodPost, "/posts", student, gin.H{"title": "t2", "body": "b2"})

	var notifs struct {
		Notifications []models.Notification `json:"notifications"`
	}
	decode(t, e.do(t, http.MethodGet, "/notifications", e.counselor, nil), &notifs)
	require.Len(t, notifs.Notifications, 2)

	w := e.do(t, http.MethodPost, "/notifications/"+notifs.Notifications[0].ID+"/read", e.counselor, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(t, http.MethodPost, "/notifications/"+notifs.Notifications[0].ID+"/read", e.admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "a notification belongs to one user")

	w = e.do(t, http.MethodPost, "/notifications/read-all", e.counselor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var updated struct {
		Updated int64 `json:"updated"`
	}
	decode(t, w, &updated)
	assert.Equal(t, int64(1), updated.Updated)

	w = e.do(t, http.MethodGet, "/notifications?since=yesterday", e.counselor, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatRoutes(t *testing.T) {
	e := newEnv(t)
	student, _ := e.signUp(t, "sky")

	w := e.do(t, http.MethodPost, "/chat/rooms", student, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var room models.ChatRoom
	decode(t, w, &room)

	w = e.do(t, http.MethodPost, "/chat/rooms", student, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodPost, "/chat/rooms/"+room.ID+"/claim", e.counselor, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, http.MethodPost, "/chat/rooms/"+room.ID+"/messages", student, gin.H{"content": "hello"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var msg models.ChatMessage
	decode(t, w, &msg)

	w = e.do(t, http.MethodPost, "/chat/messages/"+msg.ID+"/read", e.counselor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &msg)
	assert.Len(t, msg.ReadBy, 1)

	var msgs struct {
		Messages []models.ChatMessage `json:"messages"`
	}
	decode(t, e.do(t, http.MethodGet, "/chat/rooms/"+room.ID+"/messages", e.counselor, nil), &msgs)
	assert.Len(t, msgs.Messages, 1)

	w = e.do(t, http.MethodPost, "/chat/rooms/"+room.ID+"/transfer", e.counselor, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodDelete, "/chat/messages/"+msg.ID, e.counselor, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = e.do(t, http.MethodDelete, "/chat/messages/"+msg.ID, student, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	var rooms struct {
		Rooms []models.ChatRoom `json:"rooms"`
	}
	decode(t, e.do(t, http.MethodGet, "/chat/rooms", e.counselor, nil), &rooms)
	assert.Len(t, rooms.Rooms, 1)

	w = e.do(t, http.MethodDelete, "/chat/rooms/"+room.ID, student, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(t, http.MethodGet, "/chat/rooms/"+room.ID+"/messages", student, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
