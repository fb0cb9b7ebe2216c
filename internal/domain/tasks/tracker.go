package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type message struct {
	event Event
	ack   chan struct{}
}

// Tracker consumes task events on a single goroutine and keeps the latest
// event per task. Progress never moves backwards and terminal states are
// final.
type Tracker struct {
	events    chan message
	stopped   chan struct{}
	mu        sync.RWMutex
	records   map[string]Event
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewTracker creates a tracker that keeps terminal records for retention.
// Run must be started to consume events.
func NewTracker(retention time.Duration, logger *slog.Logger) *Tracker {
	return &Tracker{
		events:    make(chan message, 256),
		stopped:   make(chan struct{}),
		records:   make(map[string]Event),
		retention: retention,
		now:       time.Now,
		logger:    logger,
	}
}

// Run consumes events until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	defer close(t.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-t.events:
			if msg.ack != nil {
				close(msg.ack)
				continue
			}
			t.apply(msg.event)
		}
	}
}

// Publish queues an event for the tracker goroutine. Events published after
// Run has returned are dropped.
func (t *Tracker) Publish(e Event) {
	select {
	case t.events <- message{event: e}:
	case <-t.stopped:
	}
}

// Flush blocks until every event published before the call is applied.
func (t *Tracker) Flush() {
	ack := make(chan struct{})
	select {
	case t.events <- message{ack: ack}:
	case <-t.stopped:
		return
	}
	select {
	case <-ack:
	case <-t.stopped:
	}
}

func (t *Tracker) apply(e Event) {
	if e.At.IsZero() {
		e.At = t.now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.records[e.TaskID]
	if ok {
		if prev.State.Terminal() {
			return
		}
		if !e.State.Terminal() && (e.Progress < prev.Progress || rank(e.State) < rank(prev.State)) {
			return
		}
		if e.State == StateFailed && e.Progress < prev.Progress {
			e.Progress = prev.Progress
		}
	}
	t.records[e.TaskID] = e

	if e.State.Terminal() {
		t.logger.Debug("task finished",
			slog.String("task_id", e.TaskID),
			slog.String("state", string(e.State)),
			slog.String("error_kind", e.ErrorKind))
	}
}

func rank(s State) int {
	switch s {
	case StateQueued:
		return 0
	case StateProcessing:
		return 1
	default:
		return 2
	}
}

// Latest returns the most recent event for id. Unknown ids report a queued
// task that is still initializing.
func (t *Tracker) Latest(id string) Event {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if e, ok := t.records[id]; ok {
		return e
	}
	return Event{TaskID: id, State: StateQueued, Progress: 0, Message: MessageInitializing}
}

// Evict drops terminal records older than the retention window and returns
// how many were removed.
func (t *Tracker) Evict(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, e := range t.records {
		if e.State.Terminal() && now.Sub(e.At) > t.retention {
			delete(t.records, id)
			removed++
		}
	}
	if removed > 0 {
		t.logger.Info("evicted finished tasks",
			slog.Int("evicted", removed),
			slog.Int("remaining", len(t.records)))
	}
	return removed
}

// Len returns the number of tracked tasks.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}
