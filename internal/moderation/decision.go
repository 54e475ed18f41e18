// Package moderation decides what happens to community content based on the
// classifier's verdict and performs the resulting writes and notifications.
package moderation

import (
	"campuscare/backend/internal/analysis"
	"campuscare/backend/internal/classifier"
	"campuscare/backend/internal/config"
)

type Action string

const (
	ActionAllow    Action = "ALLOW"
	ActionFlagMild Action = "FLAG_MILD"
	ActionReject   Action = "REJECT"
	ActionBlock    Action = "BLOCK"
	ActionPending  Action = "PENDING"
)

// Decision is the outcome of the decision table for one classifier verdict.
type Decision struct {
	Action    Action
	FlagLevel int
	Result    classifier.Result
	// Reason explains a PENDING decision.
	Reason string
}

// Decide maps a classifier verdict to an action.
// A failed call, a confidence below threshold or an unknown category all hold the item for review.
func Decide(res classifier.Result, err error, threshold float64) Decision {
	pending := Decision{Action: ActionPending, FlagLevel: config.FlagLevelPending, Result: res}
	if err != nil {
		pending.Reason = "classifier_error"
		return pending
	}
	// written as a negation so NaN also lands here
	if !(res.Confidence >= threshold) {
		pending.Reason = "low_confidence"
		return pending
	}

	level, ok := analysis.FlagLevel(res.Category)
	if !ok {
		pending.Reason = "unknown_category"
		return pending
	}

	d := Decision{FlagLevel: level, Result: res}
	switch level {
	case config.FlagLevelNormal:
		d.Action = ActionAllow
	case config.FlagLevelMild:
		d.Action = ActionFlagMild
	case config.FlagLevelImmediate:
		d.Action = ActionReject
	case config.FlagLevelBlocked:
		d.Action = ActionBlock
	default:
		pending.Reason = "unknown_category"
		return pending
	}
	return d
}
