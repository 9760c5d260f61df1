package reminder

import (
	"sync"
	"sync/atomic"
	"time"
)

type taskState int32

const (
	taskPending taskState = iota
	taskFiring
	taskCanceled
	taskDone
)

func (s taskState) String() string {
	switch s {
	case taskPending:
		return "pending"
	case taskFiring:
		return "firing"
	case taskCanceled:
		return "canceled"
	case taskDone:
		return "done"
	default:
		return "unknown"
	}
}

// Task is the handle of one armed reminder.
//
// Its state moves pending→firing→done or pending→canceled, never both.
// Done is closed once the task reaches a terminal state.
type Task struct {
	at      time.Time
	payload Payload
	state   atomic.Int32

	mu    sync.Mutex
	timer Timer

	done     chan struct{}
	doneOnce sync.Once
}

func newTask(at time.Time, p Payload) *Task {
	return &Task{at: at, payload: p, done: make(chan struct{})}
}

// At is the absolute fire time.
func (t *Task) At() time.Time { return t.at }

func (t *Task) Payload() Payload { return t.payload }

func (t *Task) Done() <-chan struct{} { return t.done }

func (t *Task) pending() bool { return taskState(t.state.Load()) == taskPending }

// Cancel stops the task if it has not started firing yet.
// It returns false when the effect already began (or the task already ended).
func (t *Task) Cancel() bool {
	if !t.state.CompareAndSwap(int32(taskPending), int32(taskCanceled)) {
		return false
	}
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.mu.Unlock()
	t.finish()
	return true
}

func (t *Task) setTimer(tm Timer) {
	t.mu.Lock()
	t.timer = tm
	t.mu.Unlock()
}

// begin claims the task for firing.
func (t *Task) begin() bool {
	return t.state.CompareAndSwap(int32(taskPending), int32(taskFiring))
}

func (t *Task) complete() {
	t.state.Store(int32(taskDone))
	t.finish()
}

func (t *Task) finish() {
	t.doneOnce.Do(func() { close(t.done) })
}
