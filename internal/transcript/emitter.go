package transcript

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/discord-voice-mod/internal/logging"
)

// Sink posts a rendered transcript part to a channel. Implementations log
// and absorb delivery failures; an unreachable channel never fails a cycle.
type Sink interface {
	PostTranscript(ctx context.Context, channelID, title, body string) error
}

// Broadcaster fans a flushed batch out to live listeners. May be nil.
type Broadcaster interface {
	Broadcast(guildID, channelID string, utterances []Utterance)
}

// EmitterOptions carries the flush thresholds. Zero values take the batching
// defaults tuned for Discord's rate limits.
type EmitterOptions struct {
	MinUtterances int
	MaxUtterances int
	MinInterval   time.Duration
	MaxLatency    time.Duration
	ChunkLimit    int
	HighQuality   bool
}

// Emitter buffers utterances and flushes them to the transcript channel when
// enough have accumulated or too much time has passed. All methods are safe
// for concurrent use by the transcription workers.
type Emitter struct {
	formatter   *Formatter
	sink        Sink
	broadcaster Broadcaster
	guildID     string
	voiceChanID string
	destChanID  string
	opts        EmitterOptions

	mu         sync.Mutex
	buffer     []Utterance
	lastFlush  time.Time
	flushCount int

	// sendMu serializes posting so flush N is delivered before flush N+1.
	sendMu sync.Mutex
}

func NewEmitter(formatter *Formatter, sink Sink, broadcaster Broadcaster, guildID, voiceChannelID, destChannelID string, opts EmitterOptions) *Emitter {
	if opts.MinUtterances < 1 {
		opts.MinUtterances = 1
	}
	if opts.MaxUtterances < opts.MinUtterances {
		opts.MaxUtterances = opts.MinUtterances
	}
	if opts.MinInterval < 0 {
		opts.MinInterval = 0
	}
	if opts.MaxLatency < opts.MinInterval {
		opts.MaxLatency = opts.MinInterval
	}
	if opts.ChunkLimit <= 0 {
		opts.ChunkLimit = 3900
	}
	return &Emitter{
		formatter:   formatter,
		sink:        sink,
		broadcaster: broadcaster,
		guildID:     guildID,
		voiceChanID: voiceChannelID,
		destChanID:  destChannelID,
		opts:        opts,
		lastFlush:   time.Now(),
	}
}

// Add buffers new utterances and flushes if a threshold is crossed.
func (e *Emitter) Add(ctx context.Context, utterances []Utterance) {
	if len(utterances) == 0 {
		return
	}
	e.maybeFlush(ctx, utterances, false)
}

// Flush drains whatever is buffered. force bypasses the thresholds; the
// cycle calls Flush(true) before tearing down so nothing is stranded.
func (e *Emitter) Flush(ctx context.Context, force bool) {
	e.maybeFlush(ctx, nil, force)
}

func (e *Emitter) maybeFlush(ctx context.Context, add []Utterance, force bool) {
	e.mu.Lock()
	e.buffer = append(e.buffer, add...)
	if len(e.buffer) == 0 {
		e.mu.Unlock()
		return
	}

	now := time.Now()
	since := now.Sub(e.lastFlush)
	flush := force ||
		len(e.buffer) >= e.opts.MaxUtterances ||
		(len(e.buffer) >= e.opts.MinUtterances && since >= e.opts.MinInterval) ||
		since >= e.opts.MaxLatency
	if !flush {
		e.mu.Unlock()
		return
	}

	batch := sortByTime(e.buffer)
	e.buffer = e.buffer[:0]
	e.lastFlush = now
	e.flushCount++
	n := e.flushCount
	// Claim the send slot before releasing the buffer lock so a later
	// flush cannot overtake this one to the sink.
	e.sendMu.Lock()
	e.mu.Unlock()

	e.send(ctx, batch, n)
	e.sendMu.Unlock()
}

func (e *Emitter) send(ctx context.Context, batch []Utterance, flushNum int) {
	if e.broadcaster != nil {
		e.broadcaster.Broadcast(e.guildID, e.voiceChanID, batch)
	}
	if e.destChanID == "" || e.sink == nil {
		return
	}

	lines := e.formatter.BuildLines(ctx, batch)
	if len(lines) == 0 {
		return
	}
	payload := strings.Join(lines, "\n")
	chunks := ChunkText(payload, e.opts.ChunkLimit)

	mode := "Voice Transcript"
	if e.opts.HighQuality {
		mode = "Voice Transcript (high quality)"
	}
	for i, part := range chunks {
		title := fmt.Sprintf("%s (live %d)", mode, flushNum)
		if len(chunks) > 1 {
			title = fmt.Sprintf("%s (live %d.%d/%d)", mode, flushNum, i+1, len(chunks))
		}
		if err := e.sink.PostTranscript(ctx, e.destChanID, title, part); err != nil {
			logging.Warnw("failed to post live transcript",
				"guild_id", e.guildID, "channel_id", e.destChanID, "err", err)
			return
		}
	}
}
