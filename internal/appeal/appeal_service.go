// Package appeal handles authors' requests to re-review moderation decisions.
package appeal

import (
	"campuscare/backend/internal/apperr"
	"campuscare/backend/internal/config"
	"campuscare/backend/internal/localization"
	"campuscare/backend/internal/logger"
	"campuscare/backend/internal/models"
	"campuscare/backend/internal/moderation"
	"campuscare/backend/internal/notify"
	"campuscare/backend/internal/storage"
	"context"
	"errors"
	"strings"
	"time"
)

// Notifier is the part of the notification dispatcher appeals use.
type Notifier interface {
	NotifyStaff(ctx context.Context, msg notify.Message) (int, error)
	NotifyUser(ctx context.Context, userID string, msg notify.Message) error
}

// Target names the moderated item an appeal is about. Exactly one field is set.
type Target struct {
	FlaggedID string `json:"flagged_content_id"`
	PendingID string `json:"pending_content_id"`
}

// Service handles the business logic for appeals.
type Service struct {
	Storage  storage.Storage
	notifier Notifier
	loc      *localization.Localizer
	language string
	log      *logger.Logger
}

// NewService creates a new appeal service.
func NewService(s storage.Storage, n Notifier, loc *localization.Localizer, language string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	if language == "" {
		language = localization.DefaultLanguage
	}
	return &Service{Storage: s, notifier: n, loc: loc, language: language, log: log}
}

// Submit files an appeal by the author of the moderated item.
func (s *Service) Submit(ctx context.Context, actor models.Actor, target Target, reason string) (*models.ContentAppeal, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Invalid("reason is required")
	}
	if (target.FlaggedID == "") == (target.PendingID == "") {
		return nil, apperr.Invalid("exactly one of flagged_content_id and pending_content_id is required")
	}

	if err := s.checkAppealable(ctx, actor, target); err != nil {
		return nil, err
	}

	open, err := s.Storage.HasOpenAppeal(ctx, target.FlaggedID, target.PendingID)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, apperr.Conflict("an appeal for this content is already open")
	}

	a := &models.ContentAppeal{
		UserID:           actor.ID,
		FlaggedContentID: optional(target.FlaggedID),
		PendingContentID: optional(target.PendingID),
		Reason:           reason,
	}
	if err := s.Storage.CreateAppeal(ctx, a); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		_, err := s.notifier.NotifyStaff(ctx, notify.Message{
			Type:    models.NotifyAppealSubmitted,
			Title:   s.loc.GetString(s.language, "notif_appeal_submitted_title"),
			Message: s.loc.GetString(s.language, "notif_appeal_submitted_message"),
			Link:    "/appeals/" + a.ID,
		})
		if err != nil {
			s.log.Error("Failed to notify staff about appeal", "appeal_id", a.ID, "error", err)
		}
	}
	return a, nil
}

func (s *Service) checkAppealable(ctx context.Context, actor models.Actor, target Target) error {
	if target.FlaggedID != "" {
		f, err := s.Storage.GetFlaggedByID(ctx, target.FlaggedID)
		if err != nil {
			return notFound(err, "flagged content")
		}
		if f.AuthorID != actor.ID {
			return apperr.Forbidden("only the author can appeal")
		}
		return nil
	}

	p, err := s.Storage.GetPendingByID(ctx, target.PendingID)
	if err != nil {
		return notFound(err, "pending content")
	}
	if p.AuthorID != actor.ID {
		return apperr.Forbidden("only the author can appeal")
	}
	if !p.IsResolved {
		return apperr.Conflict("content is still under review")
	}
	if p.Resolution == models.ResolutionApproved {
		return apperr.Conflict("content was already approved")
	}
	return nil
}

// List returns appeals with the given status. Students only see their own.
func (s *Service) List(ctx context.Context, actor models.Actor, status models.AppealStatus) ([]models.ContentAppeal, error) {
	appeals, err := s.Storage.ListAppeals(ctx, status)
	if err != nil {
		return nil, err
	}
	if actor.Role.IsStaff() {
		return appeals, nil
	}
	own := make([]models.ContentAppeal, 0, len(appeals))
	for _, a := range appeals {
		if a.UserID == actor.ID {
			own = append(own, a)
		}
	}
	return own, nil
}

// Decide approves or rejects an open appeal.
// Approving publishes withheld content and resolves the moderated item.
func (s *Service) Decide(ctx context.Context, actor models.Actor, appealID string, approve bool, note string) (*models.ContentAppeal, error) {
	if !actor.Role.IsStaff() {
		return nil, apperr.Forbidden("only counselors and admins can decide appeals")
	}

	var a *models.ContentAppeal
	err := s.Storage.Transaction(ctx, func(tx storage.Storage) error {
		var err error
		a, err = tx.GetAppealByID(ctx, appealID)
		if err != nil {
			return notFound(err, "appeal")
		}
		if a.Status != models.AppealPending {
			return apperr.Conflict("appeal already decided")
		}

		if a.FlaggedContentID != nil {
			err = resolveFlagged(ctx, tx, actor, *a.FlaggedContentID, approve)
		} else if a.PendingContentID != nil && approve {
			err = publishPending(ctx, tx, actor, *a.PendingContentID)
		}
		if err != nil {
			return err
		}

		a.Status = models.AppealRejected
		if approve {
			a.Status = models.AppealApproved
		}
		a.ReviewerID = &actor.ID
		a.ReviewerNote = strings.TrimSpace(note)
		decided := time.Now().UTC()
		a.DecidedAt = &decided
		if err := tx.DecideAppeal(ctx, a); err != nil {
			if errors.Is(err, storage.ErrStale) {
				return apperr.Conflict("appeal already decided")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyAuthor(ctx, a)
	s.log.Info("Appeal decided", "appeal_id", a.ID, "status", a.Status, "reviewer_id", actor.ID)
	return a, nil
}

func resolveFlagged(ctx context.Context, tx storage.Storage, actor models.Actor, id string, approve bool) error {
	f, err := tx.GetFlaggedByID(ctx, id)
	if err != nil {
		return notFound(err, "flagged content")
	}
	if approve && f.ContentID == nil {
		contentID, err := moderation.CreateContent(ctx, tx, moderation.FromFlagged(f, config.FlagLevelNormal))
		if err != nil {
			return err
		}
		f.ContentID = &contentID
	}
	if !f.IsResolved {
		f.IsResolved = true
		f.ResolvedBy = &actor.ID
		resolved := time.Now().UTC()
		f.ResolvedAt = &resolved
	}
	return tx.SaveFlagged(ctx, f)
}

func publishPending(ctx context.Context, tx storage.Storage, actor models.Actor, id string) error {
	p, err := tx.GetPendingByID(ctx, id)
	if err != nil {
		return notFound(err, "pending content")
	}
	if p.ContentID != nil {
		return nil
	}
	wasResolved := p.IsResolved
	contentID, err := moderation.CreateContent(ctx, tx, moderation.FromPending(p, config.FlagLevelNormal))
	if err != nil {
		return err
	}
	p.ContentID = &contentID
	p.IsResolved = true
	p.Resolution = models.ResolutionApproved
	p.ResolvedBy = &actor.ID
	resolved := time.Now().UTC()
	p.ResolvedAt = &resolved
	if err := tx.ResolvePending(ctx, p, wasResolved); err != nil {
		if errors.Is(err, storage.ErrStale) {
			return apperr.Conflict("pending content already published")
		}
		return err
	}
	return nil
}

func (s *Service) notifyAuthor(ctx context.Context, a *models.ContentAppeal) {
	if s.notifier == nil {
		return
	}
	lang := s.language
	if u, err := s.Storage.GetUserByID(ctx, a.UserID); err == nil && u.Language != "" {
		lang = u.Language
	}
	outcome := s.loc.GetString(lang, "appeal_"+string(a.Status))
	err := s.notifier.NotifyUser(ctx, a.UserID, notify.Message{
		Type:    models.NotifyAppealDecided,
		Title:   s.loc.GetString(lang, "notif_appeal_decided_title"),
		Message: s.loc.Format(lang, "notif_appeal_decided_message", outcome),
		Link:    "/appeals/" + a.ID,
	})
	if err != nil {
		s.log.Error("Failed to notify appeal author", "appeal_id", a.ID, "error", err)
	}
}

func notFound(err error, what string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound(what)
	}
	return err
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
