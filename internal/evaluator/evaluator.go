// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package evaluator implements the Evaluator Client (spec C3): a thin
// wrapper around an external LM that grades a student's in-progress code
// against the active prompt, with retry/backoff and two independent
// throttles in front of it — a global token bucket guarding the outbound
// call, and a per-student minimum-interval gate (RateLimiter, in
// limiter.go) guarding how often the engine is even allowed to ask.
package evaluator

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

// Progress is one of the five labels the LM schema is forced to choose
// from.
type Progress string

const (
	NotStarted  Progress = "notStarted"
	JustStarted Progress = "justStarted"
	HalfwayDone Progress = "halfwayDone"
	AlmostDone  Progress = "almostDone"
	AllDone     Progress = "allDone"
)

// Summary is the (progress, feedback) pair C3 produces.
type Summary struct {
	Progress Progress `json:"progress"`
	Feedback string   `json:"feedback"`
}

// DefaultSummary is returned whenever the LM response does not satisfy the
// schema or the call fails; only a rate-limited call is retried (once)
// before falling back to it.
var DefaultSummary = Summary{Progress: NotStarted, Feedback: "Please start"}

var validProgress = map[Progress]bool{
	NotStarted: true, JustStarted: true, HalfwayDone: true, AlmostDone: true, AllDone: true,
}

const (
	retryBackoff  = 30 * time.Second
	requestBudget = 15 * time.Second
)

// Client wraps an external LM endpoint behind the Evaluate contract.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	throttle   *rate.Limiter
}

// New creates a Client. baseURL defaults to the OpenAI-compatible chat
// completions endpoint shape when empty, since most hosted evaluator
// backends speak that dialect.
func New(apiKey, model, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1/chat/completions"
	}
	return &Client{
		httpClient: &http.Client{Timeout: requestBudget},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		// One outbound evaluator call per second sustained, burst of 2 —
		// a global backstop independent of the per-student gate in
		// limiter.go, matching the two decoupled throttle levels the
		// design calls for.
		throttle: rate.NewLimiter(rate.Limit(1), 2),
	}
}

// Evaluate calls the external LM with prompt and code and returns a
// schema-conformant Summary. It never returns an error: an unreachable or
// misbehaving LM yields DefaultSummary, per spec's "recovered locally"
// policy for EvaluatorUnavailable — the caller is not expected to branch on
// failure.
func (c *Client) Evaluate(ctx context.Context, prompt, code string) Summary {
	if err := c.throttle.Wait(ctx); err != nil {
		log.Printf("evaluator: throttle wait: %v", err)
		return DefaultSummary
	}

	summary, err := c.call(ctx, prompt, code)
	if err == nil {
		return summary
	}
	if !isRateLimited(err) {
		log.Printf("evaluator: call failed: %v", err)
		return DefaultSummary
	}

	log.Printf("evaluator: rate limited, backing off %s before retry", retryBackoff)
	select {
	case <-time.After(retryBackoff):
	case <-ctx.Done():
		return DefaultSummary
	}

	summary, err = c.call(ctx, prompt, code)
	if err != nil {
		log.Printf("evaluator: retry failed: %v", err)
		return DefaultSummary
	}
	return summary
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type jsonSchema struct {
	Name   string `json:"name"`
	Schema schema `json:"schema"`
	Strict bool   `json:"strict"`
}

type schema struct {
	Type       string            `json:"type"`
	Properties map[string]schema `json:"properties,omitempty"`
	Enum       []string          `json:"enum,omitempty"`
	Required   []string          `json:"required,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// summarySchema forces the model to pick one of the five progress labels
// and a feedback string, per spec's "fixed schema that forces the model to
// choose one label."
var summarySchema = schema{
	Type: "object",
	Properties: map[string]schema{
		"progress": {Type: "string", Enum: []string{
			string(NotStarted), string(JustStarted), string(HalfwayDone), string(AlmostDone), string(AllDone),
		}},
		"feedback": {Type: "string"},
	},
	Required: []string{"progress", "feedback"},
}

const systemPrompt = "You grade a student's in-progress code against a coding prompt. " +
	"Respond with a progress label and 20-30 words of feedback. Never execute the code."

func (c *Client) call(ctx context.Context, prompt, code string) (Summary, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Prompt:\n%s\n\nStudent code:\n%s", prompt, code)},
		},
		ResponseFormat: &responseFormat{
			Type:   "json_schema",
			JSONSchema: jsonSchema{Name: "progress_summary", Schema: summarySchema, Strict: true},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Summary{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return Summary{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Summary{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Summary{}, &rateLimitedError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return Summary{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Summary{}, fmt.Errorf("decode response envelope: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Summary{}, fmt.Errorf("empty choices")
	}

	var summary Summary
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &summary); err != nil {
		return Summary{}, fmt.Errorf("decode summary payload: %w", err)
	}
	if !validProgress[summary.Progress] || summary.Feedback == "" {
		return Summary{}, fmt.Errorf("response did not satisfy schema")
	}
	return summary, nil
}

type rateLimitedError struct{ status int }

func (e *rateLimitedError) Error() string { return fmt.Sprintf("rate limited (status %d)", e.status) }

func isRateLimited(err error) bool {
	_, ok := err.(*rateLimitedError)
	return ok
}
