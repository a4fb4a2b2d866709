// Package sched owns the per-guild moderation cadence: which channel to
// visit, when to start the next cycle, and how hard to back off when a
// channel refuses connections.
package sched

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/discord-voice-mod/internal/announce"
	"github.com/discord-voice-mod/internal/budget"
	"github.com/discord-voice-mod/internal/config"
	"github.com/discord-voice-mod/internal/history"
	"github.com/discord-voice-mod/internal/logging"
	"github.com/discord-voice-mod/internal/metrics"
	"github.com/discord-voice-mod/internal/moderation"
	"github.com/discord-voice-mod/internal/settings"
	"github.com/discord-voice-mod/internal/transcribe"
	"github.com/discord-voice-mod/internal/transcript"
	"github.com/discord-voice-mod/internal/voice"
)

// GuildSource lists the guilds the scheduler should consider each tick.
type GuildSource interface {
	Guilds(ctx context.Context) ([]string, error)
}

// LogSink is the combined channel-posting surface a cycle needs.
type LogSink interface {
	transcript.Sink
	moderation.Sink
}

// Deps carries everything a Scheduler dispatches through.
type Deps struct {
	Transport   voice.Transport
	Settings    settings.Store
	Guilds      GuildSource
	Ledger      budget.Ledger
	Recorder    metrics.Recorder
	STT         *transcribe.Client
	Classifier  moderation.ReportClassifier
	Executor    moderation.ActionExecutor
	Sink        LogSink
	Resolver    transcript.Resolver
	Announcer   *announce.Manager
	Broadcaster transcript.Broadcaster
	History     *history.Cache
	Config      config.Config
}

// Scheduler drives at most one moderation cycle per guild at a time,
// rotating through the guild's configured channels.
type Scheduler struct {
	deps    Deps
	tick    time.Duration
	margin  time.Duration
	minCyc  time.Duration
	backoff *ConnectBackoff

	mu     sync.Mutex
	states map[string]*guildState
	wg     sync.WaitGroup
}

func New(deps Deps) *Scheduler {
	sc := deps.Config.Scheduler
	return &Scheduler{
		deps:   deps,
		tick:   time.Duration(sc.TickSec) * time.Second,
		margin: time.Duration(sc.CycleMarginSec) * time.Second,
		minCyc: time.Duration(sc.MinCycleTimeoutSec) * time.Second,
		backoff: NewConnectBackoff(
			time.Duration(sc.BackoffBaseSec)*time.Second,
			time.Duration(sc.BackoffMaxSec)*time.Second,
		),
		states: make(map[string]*guildState),
	}
}

// Run ticks until ctx is canceled, then waits for in-flight cycles and
// releases every held connection.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	logging.Infow("scheduler started", "tick", s.tick.String())
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case now := <-ticker.C:
			s.tickAll(ctx, now.UTC())
		}
	}
}

func (s *Scheduler) tickAll(ctx context.Context, now time.Time) {
	guilds, err := s.deps.Guilds.Guilds(ctx)
	if err != nil {
		logging.Errorw("failed to list guilds", "err", err)
		return
	}
	for _, guildID := range guilds {
		s.tickGuild(ctx, guildID, now)
	}
}

func (s *Scheduler) state(guildID string) *guildState {
	st := s.states[guildID]
	if st == nil {
		st = &guildState{nextStart: time.Now().UTC()}
		s.states[guildID] = st
	}
	return st
}

func (s *Scheduler) tickGuild(ctx context.Context, guildID string, now time.Time) {
	gs, err := s.deps.Settings.Guild(ctx, guildID)
	if err != nil {
		logging.Errorw("failed to load guild settings", "guild_id", guildID, "err", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(guildID)

	if !gs.Enabled || s.deps.Config.Classifier.APIKey == "" {
		s.teardownLocked(guildID, st)
		return
	}
	if len(gs.ChannelIDs) == 0 {
		return
	}
	st.channelIDs = gs.ChannelIDs

	if st.inFlight || now.Before(st.nextStart) {
		return
	}
	if st.index >= len(st.channelIDs) {
		st.index = 0
	}
	channelID := st.channelIDs[st.index]

	if remaining := s.backoff.Remaining(guildID, channelID); remaining > 0 {
		logging.Debugw("channel in connect backoff",
			"guild_id", guildID, "channel_id", channelID, "remaining", remaining.String())
		st.index = (st.index + 1) % len(st.channelIDs)
		st.nextStart = now.Add(s.tick)
		return
	}

	timeout := gs.Listen + gs.Idle + s.margin
	if timeout < s.minCyc {
		timeout = s.minCyc
	}

	cycleCtx, cancel := context.WithTimeout(ctx, timeout)
	st.inFlight = true
	st.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.runCycle(cycleCtx, guildID, channelID, gs)
		timedOut := errors.Is(cycleCtx.Err(), context.DeadlineExceeded)
		cancel()
		s.finishCycle(guildID, channelID, err, timedOut)
	}()
}

// finishCycle advances the rotation and schedules the next start. Failures,
// including deadline-exceeded cycles, grow the delay exponentially; success
// runs the next channel immediately.
func (s *Scheduler) finishCycle(guildID, channelID string, err error, timedOut bool) {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(guildID)
	st.inFlight = false
	st.cancel = nil

	if timedOut {
		logging.Warnw("cycle deadline exceeded, releasing connection",
			"guild_id", guildID, "channel_id", channelID)
		s.releaseConnLocked(guildID, st)
	}

	if len(st.channelIDs) > 1 {
		st.index = (st.index + 1) % len(st.channelIDs)
	}

	if err != nil || timedOut {
		st.failures++
		delay := time.Duration(s.deps.Config.Scheduler.BackoffBaseSec) * time.Second
		delay <<= st.failures - 1
		if max := time.Duration(s.deps.Config.Scheduler.BackoffMaxSec) * time.Second; delay > max || delay <= 0 {
			delay = max
		}
		st.nextStart = now.Add(delay)
		logging.Warnw("cycle failed",
			"guild_id", guildID, "channel_id", channelID, "timed_out", timedOut,
			"failures", st.failures, "retry_in", delay.String(), "err", err)
		return
	}

	st.failures = 0
	st.nextStart = now
}

// ensureConn connects (or moves) the guild's voice connection and returns it
// with its buffer pool attached. Held under the scheduler mutex briefly to
// swap state; the dial itself happens outside it.
func (s *Scheduler) ensureConn(ctx context.Context, guildID, channelID string) (voice.Conn, *voice.BufferPool, error) {
	s.mu.Lock()
	st := s.state(guildID)
	current := st.conn
	s.mu.Unlock()

	if current != nil && current.Connected() && current.ChannelID() == channelID {
		s.mu.Lock()
		pool := st.pool
		s.mu.Unlock()
		return current, pool, nil
	}

	conn, err := s.deps.Transport.Connect(ctx, guildID, channelID)
	if err != nil {
		delay := s.backoff.RecordFailure(guildID, channelID)
		logging.Warnw("voice connect failed",
			"guild_id", guildID, "channel_id", channelID, "retry_in", delay.String(), "err", err)
		return nil, nil, err
	}
	s.backoff.Clear(guildID, channelID)

	pool := voice.NewBufferPool()
	conn.Attach(pool)

	s.mu.Lock()
	if st.conn != nil && st.conn.Key() != conn.Key() {
		_ = st.conn.Close()
	}
	st.conn = conn
	st.pool = pool
	s.mu.Unlock()
	return conn, pool, nil
}

// teardownLocked winds a guild down after it has been disabled. An in-flight
// cycle is canceled and keeps its connection until it exits; the connection
// is then released on the next tick.
func (s *Scheduler) teardownLocked(guildID string, st *guildState) {
	if st.inFlight {
		if st.cancel != nil {
			st.cancel()
		}
		return
	}
	s.releaseConnLocked(guildID, st)
}

func (s *Scheduler) releaseConnLocked(guildID string, st *guildState) {
	if st.conn == nil {
		return
	}
	if err := st.conn.Close(); err != nil {
		logging.Warnw("failed to close voice connection", "guild_id", guildID, "err", err)
	}
	st.conn = nil
	st.pool = nil
}

func (s *Scheduler) shutdown() {
	s.mu.Lock()
	for _, st := range s.states {
		if st.cancel != nil {
			st.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	for guildID, st := range s.states {
		s.releaseConnLocked(guildID, st)
	}
	s.mu.Unlock()
	logging.Infow("scheduler stopped")
}
