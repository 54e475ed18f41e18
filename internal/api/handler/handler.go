// Package handler відкриває сервіси через HTTP-роути gin та WebSocket-ендпоінт.
package handler

import (
	"campuscare/backend/internal/apperr"
	"campuscare/backend/internal/appeal"
	"campuscare/backend/internal/auth"
	"campuscare/backend/internal/chathub"
	"campuscare/backend/internal/logger"
	"campuscare/backend/internal/metrics"
	"campuscare/backend/internal/models"
	"campuscare/backend/internal/moderation"
	"campuscare/backend/internal/notify"
	"campuscare/backend/internal/realtime"
	"campuscare/backend/internal/storage"
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler містить посилання на сервіси, які викликають роути
type Handler struct {
	Auth          *auth.Service
	Moderation    *moderation.Service
	Appeals       *appeal.Service
	Chat          *chathub.ChatService
	Notifications *notify.Dispatcher
	Hub           *chathub.ManagerService
	Storage       storage.Storage
	Metrics       *metrics.Metrics
	// Realtime налаштовує підписку на сповіщення для кожного WebSocket-клієнта
	Realtime realtime.Options
	Log      *logger.Logger
}

func NewHandler(h Handler) *Handler {
	if h.Log == nil {
		h.Log = logger.NewNop()
	}
	return &h
}

// Router створює gin engine з усіма роутами
func (h *Handler) Router(corsOrigin string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	corsCfg := cors.DefaultConfig()
	if corsOrigin == "" || corsOrigin == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = strings.Split(corsOrigin, ",")
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", h.Health)
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.Metrics.Registry(), promhttp.HandlerOpts{})))
	}

	r.POST("/auth/signup", h.SignUp)
	r.POST("/auth/signin", h.SignIn)

	api := r.Group("/", h.Auth.RequireAuth())
	api.GET("/ws", h.ServeWebSocket)

	api.POST("/posts", h.CreatePost)
	api.GET("/posts", h.ListPosts)
	api.POST("/posts/:id/comments", h.CreateComment)
	api.GET("/posts/:id/comments", h.ListComments)

	staff := api.Group("/moderation", auth.RequireStaff())
	staff.GET("/flagged", h.ListFlagged)
	staff.POST("/flagged/:id/resolve", h.ResolveFlagged)
	staff.GET("/pending", h.ListPending)
	staff.POST("/pending/:id/approve", h.ApprovePending)
	staff.POST("/pending/:id/reject", h.RejectPending)

	api.POST("/appeals", h.SubmitAppeal)
	api.GET("/appeals", h.ListAppeals)
	api.POST("/appeals/:id/decide", h.DecideAppeal)

	api.GET("/notifications", h.ListNotifications)
	api.POST("/notifications/read-all", h.MarkAllNotificationsRead)
	api.POST("/notifications/:id/read", h.MarkNotificationRead)

	api.POST("/chat/rooms", h.OpenRoom)
	api.GET("/chat/rooms", h.ListRooms)
	api.POST("/chat/rooms/:id/claim", h.ClaimRoom)
	api.POST("/chat/rooms/:id/transfer", h.TransferRoom)
	api.DELETE("/chat/rooms/:id", h.DeleteRoom)
	api.GET("/chat/rooms/:id/messages", h.ListMessages)
	api.POST("/chat/rooms/:id/messages", h.SendMessage)
	api.POST("/chat/messages/:id/read", h.MarkMessageRead)
	api.DELETE("/chat/messages/:id", h.DeleteMessage)

	return r
}

func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.Storage.Ping(ctx); err != nil {
		h.Log.Warn("Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.Log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// writeError віддає err у форматі {"error": {"code", "message"}}
func (h *Handler) writeError(c *gin.Context, err error) {
	ae := apperr.As(err)
	if ae.Status >= http.StatusInternalServerError {
		h.Log.Error("Request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(ae.Status, gin.H{"error": gin.H{"code": ae.Code, "message": ae.Message}})
}

// bind декодує JSON-тіло; при помилці сам відповідає 400
func (h *Handler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.writeError(c, apperr.Invalid("invalid request body: "+err.Error()))
		return false
	}
	return true
}

func notFound(err error, what string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound(what)
	}
	return err
}

func actor(c *gin.Context) models.Actor {
	a, _ := auth.ActorFrom(c)
	return a
}

// language бере основний тег з Accept-Language, напр. "uk" з "uk-UA,uk;q=0.9"
func language(c *gin.Context) string {
	tag := c.GetHeader("Accept-Language")
	if i := strings.IndexAny(tag, ",;"); i >= 0 {
		tag = tag[:i]
	}
	if i := strings.Index(tag, "-"); i >= 0 {
		tag = tag[:i]
	}
	return strings.ToLower(strings.TrimSpace(tag))
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
