package transcribe

import (
	"context"
	"sync"
	"time"

	"github.com/discord-voice-mod/internal/logging"
	"github.com/discord-voice-mod/internal/voice"
)

// Job is one harvested window awaiting transcription, covering every
// eligible speaker captured in it.
type Job struct {
	GuildID   string
	ChannelID string
	Window    voice.Window
}

// Handler processes one job. It must not panic; transcription failures are
// the handler's to log and swallow so one speaker cannot poison a cycle.
type Handler func(ctx context.Context, job Job)

// Queue is a bounded transcription queue serviced by a fixed worker pool.
// Submit blocks when the queue is full, which is the backpressure that keeps
// harvesting from outrunning the STT backend.
type Queue struct {
	jobs    chan Job
	handler Handler

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewQueue starts workers goroutines draining the queue. ctx bounds the
// handler invocations, not the queue lifetime; enqueued jobs are always
// handed to the handler even after ctx is done, so the handler must honor
// ctx itself.
func NewQueue(ctx context.Context, workers, depth int, handler Handler) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if depth <= 0 {
		depth = 1
	}
	q := &Queue{
		jobs:    make(chan Job, depth),
		handler: handler,
	}
	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer q.wg.Done()
			for job := range q.jobs {
				q.handler(ctx, job)
			}
		}()
	}
	return q
}

// Submit enqueues a job, blocking while the queue is full, and returns how
// long the caller waited. Submitting after DrainAndClose panics; that is a
// programming error in the cycle, not a runtime condition.
func (q *Queue) Submit(job Job) time.Duration {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		panic("transcribe: Submit after DrainAndClose")
	}
	q.mu.Unlock()

	start := time.Now()
	q.jobs <- job
	waited := time.Since(start)
	if waited >= 500*time.Millisecond {
		logging.Debugw("transcription queue backpressure",
			"guild_id", job.GuildID, "speakers", len(job.Window.Speakers),
			"waited_ms", waited.Milliseconds())
	}
	return waited
}

// Pending reports jobs currently buffered and not yet picked up.
func (q *Queue) Pending() int {
	return len(q.jobs)
}

// DrainAndClose stops accepting jobs, lets the workers finish everything
// already enqueued, and joins them. Safe to call once per queue.
func (q *Queue) DrainAndClose() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	close(q.jobs)
	q.wg.Wait()
}
