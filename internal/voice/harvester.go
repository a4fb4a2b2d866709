package voice

import (
	"time"
)

// Window is one fixed-duration capture of per-speaker audio. It is handed to
// exactly one transcription worker and not retained afterwards.
type Window struct {
	Speakers  map[string][]byte
	EndTimes  map[string]time.Time
	Durations map[string]time.Duration
}

// Empty reports whether the window captured no eligible audio.
func (w Window) Empty() bool { return len(w.Speakers) == 0 }

// Harvester drains the buffer pool on a fixed cadence and filters out
// captures too short to be worth transcribing.
type Harvester struct {
	pool       *BufferPool
	windowSec  float64
	minCapture time.Duration
}

func NewHarvester(pool *BufferPool, windowSec, minCaptureSec float64) *Harvester {
	if windowSec <= 0 {
		windowSec = 2.0
	}
	return &Harvester{
		pool:       pool,
		windowSec:  windowSec,
		minCapture: time.Duration(minCaptureSec * float64(time.Second)),
	}
}

// WindowDuration is the fixed harvest cadence.
func (h *Harvester) WindowDuration() time.Duration {
	return time.Duration(h.windowSec * float64(time.Second))
}

// Collect harvests buffered audio accumulated since the previous window.
// Speakers below the minimum captured duration are skipped so downstream
// capacity is not wasted on silence and noise bursts.
func (h *Harvester) Collect() Window {
	raw := h.pool.Harvest(h.windowSec, 10.0)
	w := Window{
		Speakers:  make(map[string][]byte),
		EndTimes:  make(map[string]time.Time),
		Durations: make(map[string]time.Duration),
	}
	now := time.Now().UTC()
	for id, pcm := range raw {
		dur := PCMDuration(len(pcm))
		if dur < h.minCapture {
			continue
		}
		end := now
		if last, ok := h.pool.LastWrite(id); ok && last.UTC().Before(now) {
			end = last.UTC()
		}
		w.Speakers[id] = pcm
		w.EndTimes[id] = end
		w.Durations[id] = dur
	}
	return w
}

// PCMDuration converts a PCM byte count to its audio duration.
func PCMDuration(n int) time.Duration {
	return time.Duration(float64(n) / float64(BytesPerSecond) * float64(time.Second))
}
