package voice

import (
	"sync"
	"time"
)

// PCM format for everything downstream of the opus decoders: 48 kHz mono s16le.
const (
	SampleRate     = 48000
	Channels       = 1
	BytesPerSample = 2
	FrameBytes     = Channels * BytesPerSample
	BytesPerSecond = SampleRate * FrameBytes
)

// RollingBuffer accumulates one speaker's PCM and hands out the unread span on
// each harvest. Old harvested data is trimmed to keep memory bounded.
type RollingBuffer struct {
	data       []byte
	readOffset int // bytes already harvested, frame-aligned
	lastWrite  time.Time
}

func (b *RollingBuffer) append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.data = append(b.data, chunk...)
	b.lastWrite = time.Now()
}

// popSinceLast returns the bytes written since the previous harvest. If the
// unread span exceeds windowSec, only the trailing window is returned and the
// earlier unread audio is dropped. Output is aligned to frame boundaries.
func (b *RollingBuffer) popSinceLast(windowSec, keepSec float64) []byte {
	start := b.readOffset
	end := len(b.data)
	if start >= end {
		return nil
	}

	if windowSec > 0 {
		maxBytes := int(float64(BytesPerSecond) * windowSec)
		if end-start > maxBytes {
			start = end - maxBytes
		}
	}

	// Align the end down so (end-start) is a whole number of frames.
	endAligned := end - ((end - start) % FrameBytes)
	if endAligned <= start {
		return nil
	}

	out := make([]byte, endAligned-start)
	copy(out, b.data[start:endAligned])
	b.readOffset = endAligned

	// Trim harvested data beyond the retention horizon.
	keep := keepSec
	if windowSec*2 > keep {
		keep = windowSec * 2
	}
	keepBytes := int(float64(BytesPerSecond) * keep)
	if keepBytes > 0 && len(b.data) > keepBytes {
		maxTrim := b.readOffset
		if excess := len(b.data) - keepBytes; excess < maxTrim {
			maxTrim = excess
		}
		if maxTrim > 0 {
			trim := maxTrim - (maxTrim % FrameBytes)
			if trim > 0 {
				b.data = append(b.data[:0:0], b.data[trim:]...)
				b.readOffset -= trim
			}
		}
	}

	return out
}

// BufferPool holds per-speaker rolling buffers. It is the hand-off point
// between the voice receive loop (writer) and the harvester (reader), so all
// access is mutex-guarded.
type BufferPool struct {
	mu      sync.Mutex
	buffers map[string]*RollingBuffer
}

func NewBufferPool() *BufferPool {
	return &BufferPool{buffers: make(map[string]*RollingBuffer)}
}

// WriteFrame appends decoded PCM for a speaker. Implements the push-style
// feed the voice transport delivers into.
func (p *BufferPool) WriteFrame(speakerID string, pcm []byte) {
	if speakerID == "" || len(pcm) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	buf := p.buffers[speakerID]
	if buf == nil {
		buf = &RollingBuffer{}
		p.buffers[speakerID] = buf
	}
	buf.append(pcm)
}

// Harvest returns the unread PCM per speaker, bounded to windowSec.
func (p *BufferPool) Harvest(windowSec, keepSec float64) map[string][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string][]byte, len(p.buffers))
	for id, buf := range p.buffers {
		if b := buf.popSinceLast(windowSec, keepSec); len(b) > 0 {
			out[id] = b
		}
	}
	return out
}

// LastWrite reports when the speaker's buffer last received audio.
func (p *BufferPool) LastWrite(speakerID string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	buf := p.buffers[speakerID]
	if buf == nil || buf.lastWrite.IsZero() {
		return time.Time{}, false
	}
	return buf.lastWrite, true
}

// PruneIdle drops buffers with no writes for idle (speaker left the channel).
func (p *BufferPool) PruneIdle(idle time.Duration) {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, buf := range p.buffers {
		if !buf.lastWrite.IsZero() && now.Sub(buf.lastWrite) > idle {
			delete(p.buffers, id)
		}
	}
}
