// Package analysis maps classifier categories onto the flag levels stored with moderated content.
package analysis

import (
	"campuscare/backend/internal/config"
	"strings"
)

// FlagLevel returns the flag level carried by a classifier category.
// The second result is false for categories the service does not know.
func FlagLevel(category string) (int, bool) {
	level, ok := config.CategoryFlagLevels[strings.ToLower(strings.TrimSpace(category))]
	return level, ok
}

// IsPublishable reports whether content at this flag level may still be shown.
func IsPublishable(level int) bool {
	return level == config.FlagLevelNormal || level == config.FlagLevelMild
}

// ClampUrgency bounds a model-reported urgency to the known range.
func ClampUrgency(level int) int {
	if level < config.UrgencyNone {
		return config.UrgencyNone
	}
	if level > config.UrgencyCritical {
		return config.UrgencyCritical
	}
	return level
}
