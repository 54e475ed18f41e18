package storage

import (
	"campuscare/backend/internal/models"
	"context"
)

func pendingResolution(p *models.PendingContent) map[string]interface{} {
	return map[string]interface{}{
		"is_resolved": p.IsResolved,
		"resolution":  p.Resolution,
		"content_id":  p.ContentID,
		"resolved_by": p.ResolvedBy,
		"resolved_at": p.ResolvedAt,
	}
}

func (s *Service) CreateFlagged(ctx context.Context, f *models.FlaggedContent) error {
	if f.Keywords == nil {
		f.Keywords = []string{}
	}
	return s.db(ctx).Create(f).Error
}

func (s *Service) GetFlaggedByID(ctx context.Context, id string) (*models.FlaggedContent, error) {
	var f models.FlaggedContent
	if err := first(s.db(ctx).Where("id = ?", id), &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFlagged повертає позначений контент: спершу найсерйозніший і найновіший
func (s *Service) ListFlagged(ctx context.Context, unresolvedOnly bool) ([]models.FlaggedContent, error) {
	var items []models.FlaggedContent
	q := s.db(ctx).Order("flag_level DESC, created_at DESC")
	if unresolvedOnly {
		q = q.Where("is_resolved = ?", false)
	}
	err := q.Find(&items).Error
	return items, err
}

func (s *Service) SaveFlagged(ctx context.Context, f *models.FlaggedContent) error {
	return s.db(ctx).Save(f).Error
}

func (s *Service) CreatePending(ctx context.Context, p *models.PendingContent) error {
	if p.Keywords == nil {
		p.Keywords = []string{}
	}
	return s.db(ctx).Create(p).Error
}

func (s *Service) GetPendingByID(ctx context.Context, id string) (*models.PendingContent, error) {
	var p models.PendingContent
	if err := first(s.db(ctx).Where("id = ?", id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPending повертає контент на перевірці від найстарішого
func (s *Service) ListPending(ctx context.Context, unresolvedOnly bool) ([]models.PendingContent, error) {
	var items []models.PendingContent
	q := s.db(ctx).Order("created_at ASC")
	if unresolvedOnly {
		q = q.Where("is_resolved = ?", false)
	}
	err := q.Find(&items).Error
	return items, err
}

// ResolvePending записує рішення по p, лише поки рядок не опубліковано
// і його is_resolved дорівнює wasResolved. Інакше повертає ErrStale.
func (s *Service) ResolvePending(ctx context.Context, p *models.PendingContent, wasResolved bool) error {
	res := s.db(ctx).Model(&models.PendingContent{}).
		Where("id = ? AND is_resolved = ? AND content_id IS NULL", p.ID, wasResolved).
		Updates(pendingResolution(p))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStale
	}
	return nil
}

func (s *Service) CreateAppeal(ctx context.Context, a *models.ContentAppeal) error {
	return s.db(ctx).Create(a).Error
}

func (s *Service) GetAppealByID(ctx context.Context, id string) (*models.ContentAppeal, error) {
	var a models.ContentAppeal
	if err := first(s.db(ctx).Where("id = ?", id), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAppeals фільтрує за статусом; порожній статус повертає всі апеляції
func (s *Service) ListAppeals(ctx context.Context, status models.AppealStatus) ([]models.ContentAppeal, error) {
	var appeals []models.ContentAppeal
	q := s.db(ctx).Order("created_at ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Find(&appeals).Error
	return appeals, err
}

// HasOpenAppeal перевіряє, чи вже є відкрита апеляція на цей елемент
func (s *Service) HasOpenAppeal(ctx context.Context, flaggedID, pendingID string) (bool, error) {
	q := s.db(ctx).Model(&models.ContentAppeal{}).Where("status = ?", models.AppealPending)
	switch {
	case flaggedID != "":
		q = q.Where("flagged_content_id = ?", flaggedID)
	case pendingID != "":
		q = q.Where("pending_content_id = ?", pendingID)
	default:
		return false, nil
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// DecideAppeal записує рішення, лише поки апеляція ще в статусі pending
func (s *Service) DecideAppeal(ctx context.Context, a *models.ContentAppeal) error {
	res := s.db(ctx).Model(&models.ContentAppeal{}).
		Where("id = ? AND status = ?", a.ID, models.AppealPending).
		Updates(map[string]interface{}{
			"status":        a.Status,
			"reviewer_id":   a.ReviewerID,
			"reviewer_note": a.ReviewerNote,
			"decided_at":    a.DecidedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStale
	}
	return nil
}
