package sched

import (
	"time"

	"github.com/discord-voice-mod/internal/voice"
)

// guildState is the scheduler's mutable bookkeeping for one guild. Access is
// serialized by the scheduler's mutex; the running cycle gets a snapshot and
// only touches conn/pool through the scheduler.
type guildState struct {
	channelIDs []string
	index      int
	inFlight   bool
	conn       voice.Conn
	pool       *voice.BufferPool
	nextStart  time.Time
	failures   int
	cancel     func()
}
