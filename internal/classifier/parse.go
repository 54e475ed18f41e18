package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// extractJSON strips markdown code fences and surrounding prose from a model answer.
func extractJSON(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimPrefix(s, "json")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

func parseResult(text string) (Result, error) {
	var res Result
	if err := json.Unmarshal([]byte(extractJSON(text)), &res); err != nil {
		return Result{}, fmt.Errorf("classifier: parse verdict: %w", err)
	}
	res.Category = strings.ToLower(strings.TrimSpace(res.Category))
	if res.Category == "" {
		return Result{}, errors.New("classifier: verdict without category")
	}
	if math.IsNaN(res.Confidence) || res.Confidence < 0 || res.Confidence > 1 {
		return Result{}, fmt.Errorf("classifier: confidence %v out of range", res.Confidence)
	}
	if res.Keywords == nil {
		res.Keywords = []string{}
	}
	return res, nil
}

func parseReply(text string) (Reply, error) {
	var reply Reply
	if err := json.Unmarshal([]byte(extractJSON(text)), &reply); err != nil || strings.TrimSpace(reply.Text) == "" {
		return Reply{Text: strings.TrimSpace(text)}, nil
	}
	reply.Text = strings.TrimSpace(reply.Text)
	return reply, nil
}
