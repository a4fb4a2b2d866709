package discord

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/hraban/opus"

	"github.com/discord-voice-mod/internal/logging"
)

// wavAudio is the decoded payload of a RIFF/WAVE file.
type wavAudio struct {
	sampleRate int
	channels   int
	samples    []int16
}

var encoderRates = map[int]bool{8000: true, 12000: true, 16000: true, 24000: true, 48000: true}

// parseWAV extracts 16-bit PCM from a WAV container.
func parseWAV(data []byte) (*wavAudio, error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}
	var (
		sampleRate, channels, bits int
		pcm                        []byte
	)
	off := 12
	for off+8 <= len(data) {
		chunkID := string(data[off : off+4])
		chunkLen := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+chunkLen > len(data) {
			chunkLen = len(data) - body
		}
		switch chunkID {
		case "fmt ":
			if chunkLen < 16 {
				return nil, fmt.Errorf("truncated fmt chunk")
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body : body+chunkLen]
		}
		off = body + chunkLen
		if chunkLen%2 == 1 {
			off++
		}
	}
	if sampleRate == 0 || channels == 0 || pcm == nil {
		return nil, fmt.Errorf("missing fmt or data chunk")
	}
	if bits != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d", bits)
	}
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[2*i : 2*i+2]))
	}
	return &wavAudio{sampleRate: sampleRate, channels: channels, samples: samples}, nil
}

// Play encodes audio to opus and streams it over the connection, blocking
// until playback finishes or ctx ends. Only WAV input is supported; the TTS
// endpoint is asked for wav and anything else is a misconfiguration.
func (c *Conn) Play(ctx context.Context, audio []byte, format string) error {
	if format != "wav" {
		return fmt.Errorf("unsupported announcement format %q", format)
	}
	wav, err := parseWAV(audio)
	if err != nil {
		return fmt.Errorf("failed to parse announcement audio: %w", err)
	}
	if !encoderRates[wav.sampleRate] {
		return fmt.Errorf("unsupported sample rate %d", wav.sampleRate)
	}
	if wav.channels < 1 || wav.channels > 2 {
		return fmt.Errorf("unsupported channel count %d", wav.channels)
	}

	// One playback at a time per connection.
	c.playMu.Lock()
	defer c.playMu.Unlock()
	if !c.Connected() {
		return fmt.Errorf("voice connection not ready")
	}

	enc, err := opus.NewEncoder(wav.sampleRate, wav.channels, opus.AppVoIP)
	if err != nil {
		return fmt.Errorf("failed to create opus encoder: %w", err)
	}

	if err := c.vc.Speaking(true); err != nil {
		return fmt.Errorf("failed to signal speaking: %w", err)
	}
	defer func() {
		if err := c.vc.Speaking(false); err != nil {
			logging.Debugw("failed to clear speaking flag", "guild_id", c.guildID, "err", err)
		}
	}()

	// 20ms frames.
	frameSamples := wav.sampleRate / 50 * wav.channels
	buf := make([]byte, 1024)
	for start := 0; start < len(wav.samples); start += frameSamples {
		end := start + frameSamples
		frame := make([]int16, frameSamples)
		if end <= len(wav.samples) {
			copy(frame, wav.samples[start:end])
		} else {
			copy(frame, wav.samples[start:])
		}
		n, err := enc.Encode(frame, buf)
		if err != nil {
			return fmt.Errorf("opus encode failed: %w", err)
		}
		packet := make([]byte, n)
		copy(packet, buf[:n])
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c.vc.OpusSend <- packet:
		}
	}
	return nil
}
