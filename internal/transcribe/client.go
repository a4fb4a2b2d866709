// Package transcribe turns harvested PCM into text through a
// whisper-compatible HTTP endpoint, with a bounded worker queue in front of
// it so a slow STT backend cannot stall audio capture.
package transcribe

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/discord-voice-mod/internal/logging"
	"github.com/discord-voice-mod/internal/voice"
)

// buildWAV creates a simple RIFF/WAVE header for 16-bit PCM and returns the
// concatenated bytes (header + data).
func buildWAV(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	byteRate := uint32(sampleRate * channels * bitsPerSample / 8)
	blockAlign := uint16(channels * bitsPerSample / 8)
	dataLen := uint32(len(pcm))
	riffSize := uint32(4 + (8 + 16) + (8 + dataLen))

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, riffSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, blockAlign)
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(pcm)
	return buf.Bytes()
}

// Client posts WAV-wrapped PCM to a whisper-compatible endpoint.
type Client struct {
	baseURL           string
	authToken         string
	language          string
	timeout           time.Duration
	pricePerMinuteUSD float64
	httpClient        *http.Client
}

type ClientOptions struct {
	URL               string
	AuthToken         string
	Language          string
	TimeoutMs         int
	PricePerMinuteUSD float64
}

func NewClient(opts ClientOptions) *Client {
	timeout := time.Duration(opts.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:           opts.URL,
		authToken:         opts.AuthToken,
		language:          opts.Language,
		timeout:           timeout,
		pricePerMinuteUSD: opts.PricePerMinuteUSD,
		httpClient:        &http.Client{Timeout: timeout + 5*time.Second},
	}
}

// EstimateCost returns the projected spend for transcribing pcm, priced per
// audio minute.
func (c *Client) EstimateCost(pcm []byte) float64 {
	if c.pricePerMinuteUSD <= 0 || len(pcm) == 0 {
		return 0
	}
	minutes := voice.PCMDuration(len(pcm)).Minutes()
	return minutes * c.pricePerMinuteUSD
}

// Transcribe wraps pcm into a WAV and posts it, retrying up to 3 times with
// exponential backoff for transient errors. Returns the trimmed transcript,
// which may be empty when the speaker produced no recognizable speech.
func (c *Client) Transcribe(ctx context.Context, pcm []byte, highQuality bool) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("transcription endpoint not configured")
	}

	endpoint := c.baseURL
	if u, err := url.Parse(c.baseURL); err == nil {
		q := u.Query()
		if c.language != "" {
			q.Set("language", c.language)
		}
		if highQuality {
			q.Set("beam_size", "5")
		}
		u.RawQuery = q.Encode()
		endpoint = u.String()
	}

	wav := buildWAV(pcm, voice.SampleRate, voice.Channels, 16)

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(wav))
		if err != nil {
			cancel()
			return "", err
		}
		req.Header.Set("Content-Type", "audio/wav")
		if c.authToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.authToken)
		}

		sendTs := time.Now()
		resp, err := c.httpClient.Do(req)
		cancel()
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			logging.Warnw("STT request failed", "err", err, "attempt", attempt)
			time.Sleep(time.Duration(1<<attempt) * time.Second)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("STT server error status=%d", resp.StatusCode)
			logging.Warnw("STT server error", "status", resp.StatusCode, "attempt", attempt)
			time.Sleep(time.Duration(1<<attempt) * time.Second)
			continue
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return "", fmt.Errorf("STT rejected request status=%d", resp.StatusCode)
		}

		var out struct {
			Text string `json:"text"`
		}
		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("failed to decode STT response: %w", err)
		}

		logging.Debugw("STT response received",
			"bytes", len(pcm),
			"duration_ms", voice.PCMDuration(len(pcm)).Milliseconds(),
			"latency_ms", time.Since(sendTs).Milliseconds())
		return strings.TrimSpace(out.Text), nil
	}
	return "", lastErr
}
