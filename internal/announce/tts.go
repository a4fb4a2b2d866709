package announce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TTSClient synthesizes speech through an OpenAI-compatible audio endpoint.
type TTSClient struct {
	URL    string
	APIKey string
	Model  string
	Voice  string
	HTTP   *http.Client
}

func NewTTSClient(url, apiKey, model, voice string, timeoutSec int) *TTSClient {
	timeout := time.Duration(timeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &TTSClient{
		URL:    url,
		APIKey: apiKey,
		Model:  model,
		Voice:  voice,
		HTTP:   &http.Client{Timeout: timeout},
	}
}

func (c *TTSClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("TTS API key not configured")
	}
	payload, err := json.Marshal(map[string]string{
		"model":  c.Model,
		"voice":  c.Voice,
		"input":  text,
		"format": "wav",
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("TTS request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("TTS request status %d", resp.StatusCode)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read TTS response: %w", err)
	}
	return audio, nil
}
