package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	ErrPermanent = errors.New("permanent error")
	ErrTransient = errors.New("transient error")
)

// Classifier calls an OpenAI-compatible chat completions endpoint and parses
// the structured moderation report out of the reply.
type Classifier struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClassifier(baseURL, apiKey string, timeoutMs int) *Classifier {
	timeout := time.Duration(timeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Classifier{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// reportSchema constrains the model to the Report shape. Kept as a literal
// so the wire format is visible in one place.
var reportSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"violations": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"user_id": {"type": "string"},
					"rule": {"type": "string"},
					"reason": {"type": "string"},
					"actions": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["user_id", "rule", "reason", "actions"],
				"additionalProperties": false
			}
		}
	},
	"required": ["violations"],
	"additionalProperties": false
}`)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type jsonSchema struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

// Classify runs one moderation request. Transport and 5xx failures wrap
// ErrTransient; 4xx and malformed replies wrap ErrPermanent.
func (c *Classifier) Classify(ctx context.Context, model, systemPrompt, userPrompt string) (*Report, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("%w: classifier endpoint not configured", ErrPermanent)
	}
	payload := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchema{
				Name:   "VoiceModerationReport",
				Strict: true,
				Schema: reportSchema,
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: classifier status %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: classifier status %d", ErrPermanent, resp.StatusCode)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrTransient, err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty choices", ErrPermanent)
	}

	var report Report
	if err := json.Unmarshal([]byte(out.Choices[0].Message.Content), &report); err != nil {
		return nil, fmt.Errorf("%w: parse report: %v", ErrPermanent, err)
	}
	return &report, nil
}
