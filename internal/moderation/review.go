package moderation

import (
	"campuscare/backend/internal/apperr"
	"campuscare/backend/internal/config"
	"campuscare/backend/internal/models"
	"campuscare/backend/internal/notify"
	"campuscare/backend/internal/storage"
	"context"
	"errors"
)

func requireStaff(actor models.Actor) error {
	if !actor.Role.IsStaff() {
		return apperr.Forbidden("only counselors and admins can review content")
	}
	return nil
}

func notFound(err error, what string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound(what)
	}
	return err
}

// stale maps a lost conditional write to a conflict.
func stale(err error, msg string) error {
	if errors.Is(err, storage.ErrStale) {
		return apperr.Conflict(msg)
	}
	return err
}

// ListFlagged returns flagged items for review.
func (s *Service) ListFlagged(ctx context.Context, actor models.Actor, unresolvedOnly bool) ([]models.FlaggedContent, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return s.Storage.ListFlagged(ctx, unresolvedOnly)
}

// ListPending returns items held for manual review.
func (s *Service) ListPending(ctx context.Context, actor models.Actor, unresolvedOnly bool) ([]models.PendingContent, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return s.Storage.ListPending(ctx, unresolvedOnly)
}

// ApprovePending publishes a held item and returns the new content id.
func (s *Service) ApprovePending(ctx context.Context, actor models.Actor, pendingID string) (string, error) {
	if err := requireStaff(actor); err != nil {
		return "", err
	}

	var p *models.PendingContent
	var contentID string
	err := s.Storage.Transaction(ctx, func(tx storage.Storage) error {
		var err error
		p, err = tx.GetPendingByID(ctx, pendingID)
		if err != nil {
			return notFound(err, "pending content")
		}
		if p.IsResolved {
			return apperr.Conflict("pending content already resolved")
		}
		contentID, err = CreateContent(ctx, tx, FromPending(p, config.FlagLevelNormal))
		if err != nil {
			return err
		}
		p.IsResolved = true
		p.Resolution = models.ResolutionApproved
		p.ContentID = &contentID
		p.ResolvedBy = &actor.ID
		p.ResolvedAt = now()
		// a concurrent reviewer may have resolved the row since it was read
		return stale(tx.ResolvePending(ctx, p, false), "pending content already resolved")
	})
	if err != nil {
		return "", err
	}

	lang := s.userLanguage(ctx, p.AuthorID)
	s.notifyUser(ctx, p.AuthorID, notify.Message{
		Type:    models.NotifyContentApproved,
		Title:   s.loc.GetString(lang, "notif_content_approved_title"),
		Message: s.loc.Format(lang, "notif_content_approved_message", p.ContentKind),
		Link:    contentLink(p.ContentKind, contentID, deref(p.PostID)),
	})
	s.log.Info("Pending content approved", "pending_id", p.ID, "content_id", contentID, "reviewer_id", actor.ID)
	return contentID, nil
}

// RejectPending closes a held item without publishing it.
func (s *Service) RejectPending(ctx context.Context, actor models.Actor, pendingID string) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	p, err := s.Storage.GetPendingByID(ctx, pendingID)
	if err != nil {
		return notFound(err, "pending content")
	}
	if p.IsResolved {
		return apperr.Conflict("pending content already resolved")
	}
	p.IsResolved = true
	p.Resolution = models.ResolutionRejected
	p.ResolvedBy = &actor.ID
	p.ResolvedAt = now()
	if err := s.Storage.ResolvePending(ctx, p, false); err != nil {
		return stale(err, "pending content already resolved")
	}

	lang := s.userLanguage(ctx, p.AuthorID)
	s.notifyUser(ctx, p.AuthorID, notify.Message{
		Type:    models.NotifyContentRejected,
		Title:   s.loc.GetString(lang, "notif_content_rejected_title"),
		Message: s.loc.Format(lang, "notif_content_rejected_message", p.ContentKind),
		Link:    "/appeals",
	})
	s.log.Info("Pending content rejected", "pending_id", p.ID, "reviewer_id", actor.ID)
	return nil
}

// ResolveFlagged marks a flagged item as handled.
func (s *Service) ResolveFlagged(ctx context.Context, actor models.Actor, flaggedID string) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	f, err := s.Storage.GetFlaggedByID(ctx, flaggedID)
	if err != nil {
		return notFound(err, "flagged content")
	}
	if f.IsResolved {
		return apperr.Conflict("flagged content already resolved")
	}
	f.IsResolved = true
	f.ResolvedBy = &actor.ID
	f.ResolvedAt = now()
	return s.Storage.SaveFlagged(ctx, f)
}

func contentLink(kind models.ContentKind, contentID, postID string) string {
	if kind == models.KindComment {
		return "/posts/" + postID + "#comment-" + contentID
	}
	return "/posts/" + contentID
}
