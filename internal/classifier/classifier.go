// Package classifier talks to a hosted generative-language model to classify
// community content and to write triage replies in support chats.
package classifier

import (
	"bytes"
	"campuscare/backend/internal/logger"
	"campuscare/backend/internal/metrics"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Result is the model's moderation verdict for a piece of text.
type Result struct {
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	FlagLevel  int      `json:"flag_level"`
	Keywords   []string `json:"keywords"`
	Reasoning  string   `json:"reasoning"`
}

// Turn is one message of a chat history handed to Reply.
type Turn struct {
	// Role is "user" for the student and "model" for the assistant or counselors.
	Role string
	Text string
}

// Reply is the assistant's answer to a student in triage.
type Reply struct {
	Text         string         `json:"reply"`
	UrgencyLevel int            `json:"urgency_level"`
	Assessment   map[string]any `json:"assessment"`
}

type Config struct {
	Endpoint   string
	Model      string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

type Client struct {
	endpoint   string
	model      string
	apiKey     string
	timeout    time.Duration
	maxRetries int
	httpClient *http.Client
	log        *logger.Logger
	metrics    *metrics.Metrics
}

// ErrEmptyResponse is returned when the model answered without any text.
var ErrEmptyResponse = errors.New("classifier: empty model response")

// HTTPError is a non-2xx answer from the model endpoint.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("classifier: http %d: %s", e.StatusCode, e.Body)
}

func New(cfg Config, log *logger.Logger, m *metrics.Metrics) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
		maxRetries: maxRetries,
		httpClient: httpClient,
		log:        log,
		metrics:    m,
	}
}

// Classify asks the model to moderate text.
// Any transport failure, timeout or unparseable answer is returned as an error.
func (c *Client) Classify(ctx context.Context, text string) (Result, error) {
	start := time.Now()
	raw, err := c.generate(ctx, moderationPrompt, []Turn{{Role: "user", Text: text}})
	var res Result
	if err == nil {
		res, err = parseResult(raw)
	}
	c.metrics.ObserveClassifier("classify", time.Since(start), err)
	return res, err
}

// Reply asks the model for the assistant's next triage message.
// A model that answers in plain text yields a reply with urgency 0.
func (c *Client) Reply(ctx context.Context, history []Turn, latest string) (Reply, error) {
	start := time.Now()
	turns := make([]Turn, 0, len(history)+1)
	turns = append(turns, history...)
	turns = append(turns, Turn{Role: "user", Text: latest})

	raw, err := c.generate(ctx, triagePrompt, turns)
	var reply Reply
	if err == nil {
		reply, err = parseReply(raw)
	}
	c.metrics.ObserveClassifier("reply", time.Since(start), err)
	return reply, err
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	SystemInstruction *content       `json:"systemInstruction,omitempty"`
	Contents          []content      `json:"contents"`
	GenerationConfig  map[string]any `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (c *Client) generate(ctx context.Context, system string, turns []Turn) (string, error) {
	req := generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: system}}},
		GenerationConfig: map[string]any{
			"temperature":      0.2,
			"responseMimeType": "application/json",
		},
	}
	for _, t := range turns {
		role := t.Role
		if role != "model" {
			role = "user"
		}
		req.Contents = append(req.Contents, content{Role: role, Parts: []part{{Text: t.Text}}})
	}

	var out generateResponse
	if err := c.doWithRetry(ctx, req, &out); err != nil {
		return "", err
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}
	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (c *Client) doWithRetry(ctx context.Context, body any, out any) error {
	backoff := 500 * time.Millisecond

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		raw, err := c.doOnce(ctx, body)
		if err == nil {
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("classifier: decode response: %w", uErr)
			}
			return nil
		}

		if !isRetryable(err) || attempt == c.maxRetries {
			return err
		}

		c.log.Warn("classifier request retrying",
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", backoff.String(),
			"error", err.Error(),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

func (c *Client) doOnce(ctx context.Context, body any) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.endpoint, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)}
	}
	return raw, nil
}

// isRetryable reports whether another attempt may succeed: transport failures, 429 and 5xx.
func isRetryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
