package config

import "time"

const (
	// Flag levels stored on moderated content.
	FlagLevelNormal    = 0
	FlagLevelMild      = 1
	FlagLevelImmediate = 2
	FlagLevelBlocked   = 3
	FlagLevelPending   = 4

	// Chat room urgency, as assessed by triage.
	UrgencyNone     = 0
	UrgencyLow      = 1
	UrgencyElevated = 2
	UrgencyCritical = 3

	// Moderation
	DefaultConfidenceThreshold = 0.7

	// Triage
	DefaultTriageDelay = 60 * time.Second

	// Realtime
	DefaultReconnectBase        = 5 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultPollInterval         = 30 * time.Second

	// Classifier
	DefaultClassifierTimeout = 15 * time.Second
	DefaultClassifierRetries = 0

	// Notification recipients
	DefaultRoleCacheTTL = 2 * time.Minute
)

// CategoryFlagLevels maps classifier categories to the flag level they carry.
// Categories outside this table are held for manual review.
var CategoryFlagLevels = map[string]int{
	"normal":    FlagLevelNormal,
	"mild":      FlagLevelMild,
	"immediate": FlagLevelImmediate,
	"blocked":   FlagLevelBlocked,
}
