// Package storage зберігає таблиці сервісу в PostgreSQL через gorm
// та публікує realtime-події через Redis.
package storage

import (
	"campuscare/backend/internal/models"
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var (
	// ErrNotFound повертається, коли запис не знайдено
	ErrNotFound = errors.New("record not found")
	// ErrStale повертають умовні записи, якщо рядок змінився після читання
	ErrStale = errors.New("record changed concurrently")
)

type Storage interface {
	// Користувачі
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUserIDsByRoles(ctx context.Context, roles ...models.Role) ([]string, error)

	// Чат-кімнати
	CreateRoom(ctx context.Context, room *models.ChatRoom) error
	GetRoomByID(ctx context.Context, id string) (*models.ChatRoom, error)
	GetRoomForStudent(ctx context.Context, studentID string) (*models.ChatRoom, error)
	ListRoomsForCounselor(ctx context.Context, counselorID string) ([]models.ChatRoom, error)
	ListAllRooms(ctx context.Context) ([]models.ChatRoom, error)
	UpdateRoom(ctx context.Context, roomID string, fields map[string]interface{}) error
	DeleteRoom(ctx context.Context, roomID string) error
	SaveTransfer(ctx context.Context, transfer *models.ChatTransfer) error

	// Повідомлення
	SaveMessage(ctx context.Context, msg *models.ChatMessage) error
	GetMessageByID(ctx context.Context, id string) (*models.ChatMessage, error)
	ListMessages(ctx context.Context, roomID string) ([]models.ChatMessage, error)
	MarkMessageRead(ctx context.Context, messageID, userID string) (*models.ChatMessage, error)
	DeleteMessage(ctx context.Context, messageID, senderID string) error

	// Пости та коментарі
	CreatePost(ctx context.Context, post *models.Post) error
	GetPostByID(ctx context.Context, id string) (*models.Post, error)
	ListPosts(ctx context.Context, limit int) ([]models.Post, error)
	CreateComment(ctx context.Context, comment *models.Comment) error
	ListComments(ctx context.Context, postID string) ([]models.Comment, error)

	// Модерація
	CreateFlagged(ctx context.Context, f *models.FlaggedContent) error
	GetFlaggedByID(ctx context.Context, id string) (*models.FlaggedContent, error)
	ListFlagged(ctx context.Context, unresolvedOnly bool) ([]models.FlaggedContent, error)
	SaveFlagged(ctx context.Context, f *models.FlaggedContent) error
	CreatePending(ctx context.Context, p *models.PendingContent) error
	GetPendingByID(ctx context.Context, id string) (*models.PendingContent, error)
	ListPending(ctx context.Context, unresolvedOnly bool) ([]models.PendingContent, error)
	ResolvePending(ctx context.Context, p *models.PendingContent, wasResolved bool) error
	CreateAppeal(ctx context.Context, a *models.ContentAppeal) error
	GetAppealByID(ctx context.Context, id string) (*models.ContentAppeal, error)
	ListAppeals(ctx context.Context, status models.AppealStatus) ([]models.ContentAppeal, error)
	HasOpenAppeal(ctx context.Context, flaggedID, pendingID string) (bool, error)
	DecideAppeal(ctx context.Context, a *models.ContentAppeal) error

	// Сповіщення
	CreateNotifications(ctx context.Context, notifications []models.Notification) error
	ListNotifications(ctx context.Context, userID string, since time.Time, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)

	// Realtime
	Publish(ctx context.Context, event models.Event) error
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
	PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub
	PollEvents(ctx context.Context, channel string, since time.Time) ([]models.Event, error)

	// Transaction виконує fn над Storage в межах однієї транзакції БД.
	// Публікація realtime-подій всередині fn не транзакційна.
	Transaction(ctx context.Context, fn func(tx Storage) error) error
	Ping(ctx context.Context) error
}

type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// NewStorageService Конструктор
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
	}
}

// Migrate створює або оновлює всі таблиці сервісу
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.ChatRoom{},
		&models.ChatMessage{},
		&models.ChatTransfer{},
		&models.Post{},
		&models.Comment{},
		&models.FlaggedContent{},
		&models.PendingContent{},
		&models.ContentAppeal{},
		&models.Notification{},
	)
}

func (s *Service) db(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx)
}

func (s *Service) Transaction(ctx context.Context, fn func(tx Storage) error) error {
	return s.db(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Service{DB: tx, Redis: s.Redis})
	})
}

// Ping перевіряє PostgreSQL та Redis
func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return err
	}
	if s.Redis == nil {
		return nil
	}
	return s.Redis.Ping(ctx).Err()
}

// first завантажує один рядок у dest і перетворює not-found помилку gorm
func first(q *gorm.DB, dest interface{}) error {
	err := q.First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
