package sched

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/discord-voice-mod/internal/logging"
	"github.com/discord-voice-mod/internal/moderation"
	"github.com/discord-voice-mod/internal/settings"
	"github.com/discord-voice-mod/internal/transcribe"
	"github.com/discord-voice-mod/internal/transcript"
	"github.com/discord-voice-mod/internal/voice"
)

// minShortenedIdle is the floor for the idle dwell after a truncated listen.
const minShortenedIdle = 5 * time.Second

// runCycle visits one channel: connect, listen and harvest for the guild's
// listen duration, then dwell idle. Harvested windows flow through the
// transcription queue into the live emitter and the moderation pipeline.
func (s *Scheduler) runCycle(ctx context.Context, guildID, channelID string, gs settings.Settings) error {
	conn, pool, err := s.ensureConn(ctx, guildID, channelID)
	if err != nil {
		return err
	}

	pcfg := s.deps.Config.Pipeline
	formatter := transcript.NewFormatter(guildID, s.deps.Resolver)
	emitter := transcript.NewEmitter(formatter, s.deps.Sink, s.deps.Broadcaster,
		guildID, channelID, gs.TranscriptChanID, transcript.EmitterOptions{
			MinUtterances: pcfg.FlushMinUtterances,
			MaxUtterances: pcfg.FlushMaxUtterances,
			MinInterval:   time.Duration(pcfg.FlushMinIntervalSec * float64(time.Second)),
			MaxLatency:    time.Duration(pcfg.FlushMaxLatencySec * float64(time.Second)),
			ChunkLimit:    pcfg.ChunkLimit,
			HighQuality:   gs.HighQualitySTT,
		})

	pipeline := moderation.NewPipeline(moderation.PipelineOptions{
		GuildID:           guildID,
		ChannelID:         channelID,
		Rules:             gs.Rules,
		TranscriptOnly:    gs.TranscriptOnly,
		HighAccuracy:      gs.HighAccuracy,
		Actions:           gs.Actions,
		Debug:             gs.Debug,
		LogChannelID:      gs.LogChannelID,
		DefaultModel:      s.deps.Config.Classifier.Model,
		HighAccuracyModel: s.deps.Config.Classifier.HighAccuracyModel,
		Classifier:        s.deps.Classifier,
		Ledger:            s.deps.Ledger,
		Recorder:          s.deps.Recorder,
		Executor:          s.deps.Executor,
		Sink:              s.deps.Sink,
		History:           s.deps.History,
		Formatter:         formatter,
		Resolver:          s.deps.Resolver,
	})

	announcePoll := func() {
		if s.deps.Announcer != nil {
			s.deps.Announcer.MaybeAnnounce(ctx, guildID, conn, gs.TranscriptOnly, gs.JoinAnnouncement)
		}
	}

	if gs.SaverMode {
		announcePoll()
		sleepCtx(ctx, gs.Idle)
		return nil
	}

	harvester := voice.NewHarvester(pool, pcfg.HarvestWindowSec, pcfg.MinCaptureSec)

	var (
		cycleMu    sync.Mutex
		utterances []transcript.Utterance
	)
	chunks := make(chan []transcript.Utterance, 4)
	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		for chunk := range chunks {
			pipeline.Process(ctx, chunk)
		}
	}()

	handler := func(hctx context.Context, job transcribe.Job) {
		utts, cost := s.transcribeWindow(hctx, job, gs.HighQualitySTT)
		if cost > 0 {
			if _, err := s.deps.Ledger.Increment(hctx, job.GuildID, 0, cost); err != nil {
				logging.Warnw("failed to record transcription cost",
					"guild_id", job.GuildID, "err", err)
			}
		}
		if len(utts) == 0 {
			return
		}
		cycleMu.Lock()
		utterances = append(utterances, utts...)
		cycleMu.Unlock()
		emitter.Add(hctx, utts)
		chunks <- utts
	}

	queue := transcribe.NewQueue(ctx, pcfg.TranscribeWorkers, pcfg.TranscribeQueueSize, handler)

	start := time.Now()
	deadline := start.Add(gs.Listen)
	for {
		iterStart := time.Now()
		window := harvester.Collect()
		announcePoll()

		if !window.Empty() && s.transcriptionBudgetAllows(ctx, guildID, window) {
			job := transcribe.Job{GuildID: guildID, ChannelID: channelID, Window: window}
			if waited := queue.Submit(job); waited >= 500*time.Millisecond {
				logging.Infow("throttled harvest waiting for transcription backlog",
					"guild_id", guildID, "waited_ms", waited.Milliseconds())
			}
		}

		if ctx.Err() != nil || !time.Now().Before(deadline) {
			break
		}
		sleepFor := harvester.WindowDuration() - time.Since(iterStart)
		if remaining := time.Until(deadline); sleepFor > remaining {
			sleepFor = remaining
		}
		if sleepFor > 0 && !sleepCtx(ctx, sleepFor) {
			break
		}
	}
	actualListen := time.Since(start)
	if actualListen > gs.Listen {
		actualListen = gs.Listen
	}

	queue.DrainAndClose()
	close(chunks)
	<-pipelineDone

	emitter.Flush(ctx, true)

	cycleMu.Lock()
	final := make([]transcript.Utterance, len(utterances))
	copy(final, utterances)
	cycleMu.Unlock()

	if len(final) > 0 && gs.TranscriptChanID != "" {
		s.postCycleSummary(ctx, formatter, gs, channelID, final)
	}

	idle := gs.Idle
	if actualListen > 0 && actualListen < gs.Listen {
		shortened := actualListen
		if shortened < minShortenedIdle {
			shortened = minShortenedIdle
		}
		if shortened < idle {
			idle = shortened
		}
	}
	sleepCtx(ctx, idle)
	return nil
}

// transcribeWindow runs every speaker in the window through the STT client,
// isolating per-speaker failures, and returns the produced utterances plus
// the spend for the audio that was actually transcribed. Utterances carry
// the midpoint timestamp of their audio for stable ordering.
func (s *Scheduler) transcribeWindow(ctx context.Context, job transcribe.Job, highQuality bool) ([]transcript.Utterance, float64) {
	var (
		utts []transcript.Utterance
		cost float64
	)
	for speakerID, pcm := range job.Window.Speakers {
		text, err := s.deps.STT.Transcribe(ctx, pcm, highQuality)
		if err != nil {
			logging.Warnw("transcription failed",
				"guild_id", job.GuildID, "speaker_id", speakerID, "err", err)
			continue
		}
		cost += s.deps.STT.EstimateCost(pcm)
		if text == "" {
			continue
		}
		end := job.Window.EndTimes[speakerID]
		dur := job.Window.Durations[speakerID]
		utts = append(utts, transcript.Utterance{
			SpeakerID: speakerID,
			Text:      text,
			Timestamp: end.Add(-dur / 2),
		})
	}
	if len(utts) == 0 {
		return nil, 0
	}
	return utts, cost
}

// transcriptionBudgetAllows pre-checks the estimated STT spend for a window
// against the guild's remaining budget. Ledger read failures fail open.
func (s *Scheduler) transcriptionBudgetAllows(ctx context.Context, guildID string, window voice.Window) bool {
	var est float64
	for _, pcm := range window.Speakers {
		est += s.deps.STT.EstimateCost(pcm)
	}
	if est <= 0 {
		return true
	}
	usage, err := s.deps.Ledger.Get(ctx, guildID)
	if err != nil {
		logging.Warnw("budget check failed, proceeding", "guild_id", guildID, "err", err)
		return true
	}
	if !usage.Allows(est) {
		logging.Infow("transcription budget reached, skipping window",
			"guild_id", guildID, "estimated_cost", est)
		return false
	}
	return true
}

// postCycleSummary posts the full chronological transcript of the cycle to
// the transcript channel, split into numbered parts when it exceeds the
// chunk limit.
func (s *Scheduler) postCycleSummary(ctx context.Context, formatter *transcript.Formatter, gs settings.Settings, channelID string, utterances []transcript.Utterance) {
	lines := formatter.BuildLines(ctx, utterances)
	if len(lines) == 0 {
		return
	}
	payload := strings.Join(lines, "\n")
	parts := transcript.ChunkText(payload, s.deps.Config.Pipeline.ChunkLimit)

	mode := "Voice Transcript Summary"
	if gs.HighQualitySTT {
		mode = "Voice Transcript Summary (high quality)"
	}
	for i, part := range parts {
		title := mode
		if len(parts) > 1 {
			title = fmt.Sprintf("%s (part %d/%d)", mode, i+1, len(parts))
		}
		if err := s.deps.Sink.PostTranscript(ctx, gs.TranscriptChanID, title, part); err != nil {
			logging.Warnw("failed to post cycle transcript",
				"channel_id", gs.TranscriptChanID, "err", err)
			return
		}
	}
	logging.Debugw("cycle transcript posted",
		"voice_channel_id", channelID, "utterances", len(utterances), "parts", len(parts))
}

// sleepCtx waits d unless ctx ends first; reports whether the full wait
// elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
