package moderation

import (
	"campuscare/backend/internal/classifier"
	"campuscare/backend/internal/config"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

var categories = []string{"normal", "mild", "immediate", "blocked", "unknown"}

func TestDecide_Table(t *testing.T) {
	tests := []struct {
		category string
		action   Action
		level    int
	}{
		{"normal", ActionAllow, config.FlagLevelNormal},
		{"mild", ActionFlagMild, config.FlagLevelMild},
		{"immediate", ActionReject, config.FlagLevelImmediate},
		{"blocked", ActionBlock, config.FlagLevelBlocked},
		{"sarcasm", ActionPending, config.FlagLevelPending},
	}
	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			d := Decide(classifier.Result{Category: tt.category, Confidence: 0.9}, nil, 0.7)
			assert.Equal(t, tt.action, d.Action)
			assert.Equal(t, tt.level, d.FlagLevel)
		})
	}
}

// Confidence below the threshold is held for review whatever the category.
func TestDecide_LowConfidenceIsAlwaysPending(t *testing.T) {
	for _, category := range categories {
		for _, confidence := range []float64{0, 0.1, 0.5, 0.69, 0.6999999, math.NaN()} {
			t.Run(fmt.Sprintf("%s/%v", category, confidence), func(t *testing.T) {
				d := Decide(classifier.Result{Category: category, Confidence: confidence}, nil, 0.7)
				assert.Equal(t, ActionPending, d.Action)
				assert.Equal(t, config.FlagLevelPending, d.FlagLevel)
				assert.Equal(t, "low_confidence", d.Reason)
			})
		}
	}
}

func TestDecide_ThresholdIsInclusive(t *testing.T) {
	d := Decide(classifier.Result{Category: "blocked", Confidence: 0.7}, nil, 0.7)
	assert.Equal(t, ActionBlock, d.Action)
}

func TestDecide_ErrorIsPending(t *testing.T) {
	d := Decide(classifier.Result{Category: "normal", Confidence: 1}, errors.New("timeout"), 0.7)
	assert.Equal(t, ActionPending, d.Action)
	assert.Equal(t, "classifier_error", d.Reason)
}
