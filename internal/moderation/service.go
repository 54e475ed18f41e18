package moderation

import (
	"campuscare/backend/internal/apperr"
	"campuscare/backend/internal/classifier"
	"campuscare/backend/internal/config"
	"campuscare/backend/internal/localization"
	"campuscare/backend/internal/logger"
	"campuscare/backend/internal/metrics"
	"campuscare/backend/internal/models"
	"campuscare/backend/internal/notify"
	"campuscare/backend/internal/storage"
	"context"
	"errors"
	"strings"
	"time"
)

type Classifier interface {
	Classify(ctx context.Context, text string) (classifier.Result, error)
}

type Notifier interface {
	NotifyStaff(ctx context.Context, msg notify.Message) (int, error)
	NotifyUser(ctx context.Context, userID string, msg notify.Message) error
}

// Submission is a post or comment a user wants to publish.
type Submission struct {
	Kind      models.ContentKind
	AuthorID  string
	PostID    string
	Title     string
	Body      string
	Anonymous bool
	Language  string
}

// Outcome reports what happened to a submission.
type Outcome struct {
	Action    Action `json:"action"`
	FlagLevel int    `json:"flag_level"`
	ContentID string `json:"content_id,omitempty"`
	FlaggedID string `json:"flagged_id,omitempty"`
	PendingID string `json:"pending_id,omitempty"`
	// Message is the localized text shown to the author.
	Message string `json:"message"`
}

type Service struct {
	Storage    storage.Storage
	classifier Classifier
	notifier   Notifier
	loc        *localization.Localizer
	threshold  float64
	language   string
	log        *logger.Logger
	metrics    *metrics.Metrics
}

type Options struct {
	Threshold float64
	// Language is used for staff notifications and authors without a preference.
	Language string
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
}

func NewService(s storage.Storage, c Classifier, n Notifier, loc *localization.Localizer, opts Options) *Service {
	if opts.Threshold <= 0 {
		opts.Threshold = config.DefaultConfidenceThreshold
	}
	if opts.Language == "" {
		opts.Language = localization.DefaultLanguage
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &Service{
		Storage:    s,
		classifier: c,
		notifier:   n,
		loc:        loc,
		threshold:  opts.Threshold,
		language:   opts.Language,
		log:        opts.Logger,
		metrics:    opts.Metrics,
	}
}

// Submit classifies the submission and performs the writes its action calls for.
func (s *Service) Submit(ctx context.Context, sub Submission) (Outcome, error) {
	if err := s.validate(ctx, sub); err != nil {
		return Outcome{}, err
	}
	lang := sub.Language
	if lang == "" {
		lang = s.language
	}

	res, err := s.classifier.Classify(ctx, classificationText(sub))
	if err != nil {
		s.log.Warn("Classifier failed, holding content for review", "kind", sub.Kind, "error", err)
	}
	d := Decide(res, err, s.threshold)
	s.metrics.ObserveDecision(string(d.Action), string(sub.Kind))

	out := Outcome{Action: d.Action, FlagLevel: d.FlagLevel}
	switch d.Action {
	case ActionAllow:
		out.ContentID, err = CreateContent(ctx, s.Storage, contentOf(sub, d.FlagLevel))
		if err != nil {
			return Outcome{}, err
		}
		out.Message = s.loc.GetString(lang, "content_published")

	case ActionFlagMild:
		err = s.Storage.Transaction(ctx, func(tx storage.Storage) error {
			id, err := CreateContent(ctx, tx, contentOf(sub, d.FlagLevel))
			if err != nil {
				return err
			}
			f := flaggedOf(sub, d)
			f.ContentID = &id
			if err := tx.CreateFlagged(ctx, f); err != nil {
				return err
			}
			out.ContentID, out.FlaggedID = id, f.ID
			return nil
		})
		if err != nil {
			return Outcome{}, err
		}
		s.notifyStaff(ctx, notify.Message{
			Type:    models.NotifyContentFlagged,
			Title:   s.loc.GetString(s.language, "notif_content_flagged_title"),
			Message: s.loc.Format(s.language, "notif_content_flagged_message", sub.Kind, d.Result.Category),
			Link:    "/moderation/flagged/" + out.FlaggedID,
		})
		out.Message = s.loc.GetString(lang, "content_published")

	case ActionReject:
		f := flaggedOf(sub, d)
		if err := s.Storage.CreateFlagged(ctx, f); err != nil {
			return Outcome{}, err
		}
		out.FlaggedID = f.ID
		s.notifyStaff(ctx, notify.Message{
			Type:    models.NotifyCrisisAlert,
			Title:   s.loc.GetString(s.language, "notif_crisis_alert_title"),
			Message: s.loc.Format(s.language, "notif_crisis_alert_message", sub.Kind, describe(d.Result)),
			Link:    "/moderation/flagged/" + f.ID,
			Urgent:  true,
		})
		out.Message = s.loc.GetString(lang, "emergency_contact")

	case ActionBlock:
		out.Message = s.loc.GetString(lang, "content_blocked")

	case ActionPending:
		p := pendingOf(sub, d)
		if err := s.Storage.CreatePending(ctx, p); err != nil {
			return Outcome{}, err
		}
		out.PendingID = p.ID
		s.notifyStaff(ctx, notify.Message{
			Type:    models.NotifyContentPending,
			Title:   s.loc.GetString(s.language, "notif_content_pending_title"),
			Message: s.loc.Format(s.language, "notif_content_pending_message", sub.Kind),
			Link:    "/moderation/pending/" + p.ID,
		})
		out.Message = s.loc.GetString(lang, "content_pending_review")
	}

	s.log.Info("Content moderated",
		"action", d.Action,
		"kind", sub.Kind,
		"category", d.Result.Category,
		"confidence", d.Result.Confidence,
		"reason", d.Reason,
	)
	return out, nil
}

func (s *Service) validate(ctx context.Context, sub Submission) error {
	if !sub.Kind.Valid() {
		return apperr.Invalid("unknown content kind")
	}
	if sub.AuthorID == "" {
		return apperr.Unauthorized("author required")
	}
	if strings.TrimSpace(sub.Body) == "" {
		return apperr.Invalid("body is required")
	}
	switch sub.Kind {
	case models.KindPost:
		if strings.TrimSpace(sub.Title) == "" {
			return apperr.Invalid("title is required")
		}
	case models.KindComment:
		if sub.PostID == "" {
			return apperr.Invalid("post_id is required")
		}
		if _, err := s.Storage.GetPostByID(ctx, sub.PostID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperr.NotFound("post")
			}
			return err
		}
	}
	return nil
}

// notifyStaff never fails the submission; the moderation record is already stored.
func (s *Service) notifyStaff(ctx context.Context, msg notify.Message) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.NotifyStaff(ctx, msg); err != nil {
		s.log.Error("Failed to notify staff", "type", msg.Type, "error", err)
	}
}

func (s *Service) notifyUser(ctx context.Context, userID string, msg notify.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyUser(ctx, userID, msg); err != nil {
		s.log.Error("Failed to notify user", "type", msg.Type, "user_id", userID, "error", err)
	}
}

// userLanguage returns the user's preferred language, or the service default.
func (s *Service) userLanguage(ctx context.Context, userID string) string {
	u, err := s.Storage.GetUserByID(ctx, userID)
	if err != nil || u.Language == "" {
		return s.language
	}
	return u.Language
}

func classificationText(sub Submission) string {
	if sub.Title == "" {
		return sub.Body
	}
	return sub.Title + "\n\n" + sub.Body
}

func contentOf(sub Submission, level int) Content {
	return Content{
		Kind:      sub.Kind,
		AuthorID:  sub.AuthorID,
		PostID:    sub.PostID,
		Title:     sub.Title,
		Body:      sub.Body,
		Anonymous: sub.Anonymous,
		FlagLevel: level,
	}
}

func flaggedOf(sub Submission, d Decision) *models.FlaggedContent {
	return &models.FlaggedContent{
		ContentKind: sub.Kind,
		PostID:      optional(sub.PostID),
		AuthorID:    sub.AuthorID,
		Title:       sub.Title,
		Body:        sub.Body,
		Anonymous:   sub.Anonymous,
		FlagLevel:   d.FlagLevel,
		Category:    d.Result.Category,
		Keywords:    d.Result.Keywords,
		Reasoning:   d.Result.Reasoning,
	}
}

func pendingOf(sub Submission, d Decision) *models.PendingContent {
	return &models.PendingContent{
		ContentKind: sub.Kind,
		PostID:      optional(sub.PostID),
		AuthorID:    sub.AuthorID,
		Title:       sub.Title,
		Body:        sub.Body,
		Anonymous:   sub.Anonymous,
		FlagLevel:   config.FlagLevelPending,
		Category:    d.Result.Category,
		Keywords:    d.Result.Keywords,
		Reasoning:   d.Result.Reasoning,
	}
}

func describe(res classifier.Result) string {
	if len(res.Keywords) > 0 {
		return res.Category + ": " + strings.Join(res.Keywords, ", ")
	}
	return res.Category
}

func now() *time.Time {
	t := time.Now().UTC()
	return &t
}
