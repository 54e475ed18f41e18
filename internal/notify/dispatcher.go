// Package notify writes notification rows and pushes them to recipients' realtime channels.
package notify

import (
	"campuscare/backend/internal/logger"
	"campuscare/backend/internal/metrics"
	"campuscare/backend/internal/models"
	"campuscare/backend/internal/storage"
	"context"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
)

// publishConcurrency bounds parallel Redis publishes for one fan-out.
const publishConcurrency = 8

// Alerter receives urgent notifications on an out-of-band channel.
type Alerter interface {
	SendAlert(ctx context.Context, title, message string) error
}

// Message is the content of a notification before it is addressed to users.
type Message struct {
	Type    string
	Title   string
	Message string
	Link    string
	// Urgent messages are also handed to the Alerter.
	Urgent bool
}

type Dispatcher struct {
	store   storage.Storage
	roles   *cache.Cache
	alerter Alerter
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewDispatcher builds a dispatcher. Role lookups are cached for roleTTL; a nil alerter disables alerts.
func NewDispatcher(store storage.Storage, roleTTL time.Duration, alerter Alerter, log *logger.Logger, m *metrics.Metrics) *Dispatcher {
	if log == nil {
		log = logger.NewNop()
	}
	if roleTTL <= 0 {
		roleTTL = time.Minute
	}
	return &Dispatcher{
		store:   store,
		roles:   cache.New(roleTTL, 0),
		alerter: alerter,
		log:     log,
		metrics: m,
	}
}

// NotifyStaff notifies every counselor and admin.
func (d *Dispatcher) NotifyStaff(ctx context.Context, msg Message) (int, error) {
	return d.NotifyRoles(ctx, models.StaffRoles, msg)
}

// NotifyRoles writes one notification per user holding any of roles and pushes each on the
// user's channel. It returns the number of recipients.
func (d *Dispatcher) NotifyRoles(ctx context.Context, roles []models.Role, msg Message) (int, error) {
	ids, err := d.recipients(ctx, roles)
	if err != nil {
		return 0, err
	}
	if err := d.deliver(ctx, ids, msg); err != nil {
		return 0, err
	}
	if msg.Urgent {
		d.alert(ctx, msg)
	}
	return len(ids), nil
}

// NotifyUser notifies a single user.
func (d *Dispatcher) NotifyUser(ctx context.Context, userID string, msg Message) error {
	if err := d.deliver(ctx, []string{userID}, msg); err != nil {
		return err
	}
	if msg.Urgent {
		d.alert(ctx, msg)
	}
	return nil
}

// InvalidateRoles drops cached role lookups, e.g. after a staff account was created.
func (d *Dispatcher) InvalidateRoles() {
	d.roles.Flush()
}

func (d *Dispatcher) ListForUser(ctx context.Context, userID string, since time.Time, limit int) ([]models.Notification, error) {
	return d.store.ListNotifications(ctx, userID, since, limit)
}

func (d *Dispatcher) MarkRead(ctx context.Context, userID, id string) error {
	return d.store.MarkNotificationRead(ctx, id, userID)
}

func (d *Dispatcher) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return d.store.MarkAllNotificationsRead(ctx, userID)
}

func (d *Dispatcher) recipients(ctx context.Context, roles []models.Role) ([]string, error) {
	key := roleKey(roles)
	if cached, ok := d.roles.Get(key); ok {
		return cached.([]string), nil
	}
	ids, err := d.store.ListUserIDsByRoles(ctx, roles...)
	if err != nil {
		return nil, err
	}
	d.roles.SetDefault(key, ids)
	return ids, nil
}

func (d *Dispatcher) deliver(ctx context.Context, userIDs []string, msg Message) error {
	if len(userIDs) == 0 {
		return nil
	}

	rows := make([]models.Notification, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, models.Notification{
			UserID:  id,
			Type:    msg.Type,
			Title:   msg.Title,
			Message: msg.Message,
			Link:    msg.Link,
		})
	}
	if err := d.store.CreateNotifications(ctx, rows); err != nil {
		return err
	}
	d.metrics.ObserveNotifications(msg.Type, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(publishConcurrency)
	for i := range rows {
		n := rows[i]
		g.Go(func() error {
			ev, err := models.NewEvent(models.NotificationChannel(n.UserID), models.EventNotification, n.ID, n)
			if err != nil {
				return err
			}
			return d.store.Publish(gctx, ev)
		})
	}
	// rows are already stored; clients that missed the push catch up by polling
	if err := g.Wait(); err != nil {
		d.log.Warn("Failed to publish notification", "type", msg.Type, "error", err)
	}
	return nil
}

func (d *Dispatcher) alert(ctx context.Context, msg Message) {
	if d.alerter == nil {
		return
	}
	if err := d.alerter.SendAlert(ctx, msg.Title, msg.Message); err != nil {
		d.log.Warn("Failed to send urgent alert", "type", msg.Type, "error", err)
	}
}

func roleKey(roles []models.Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
