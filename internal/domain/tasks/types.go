// Package tasks runs ingestion work on a bounded worker pool and tracks the
// latest progress event of every task.
package tasks

import (
	"context"
	"errors"
	"time"
)

// State is the lifecycle stage of a task.
type State string

const (
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether no further events are accepted after s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// MessageInitializing is reported for tasks the tracker has not seen yet.
const MessageInitializing = "initializing"

var (
	// ErrQueueFull is returned when the pool's backlog is at capacity.
	ErrQueueFull = errors.New("task queue is full")
	// ErrPoolClosed is returned after Stop.
	ErrPoolClosed = errors.New("task pool is closed")
)

// Event is a progress report for one task.
type Event struct {
	TaskID    string    `json:"task_id"`
	State     State     `json:"state"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	Result    any       `json:"result,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"updated_at"`
}

// ReportFunc publishes intermediate progress from inside a task.
type ReportFunc func(progress int, message string)

// Func is a unit of work. Its result is attached to the completion event.
type Func func(ctx context.Context, report ReportFunc) (any, error)

// Publisher accepts task events.
type Publisher interface {
	Publish(Event)
}

// Gauge tracks tasks currently executing.
type Gauge interface {
	Inc()
	Dec()
}
