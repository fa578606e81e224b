package agent

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Status is a task or batch lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"

	// StatusSkipped is a batch-row-only state: the row's batch was
	// cancelled before the row ever started.
	StatusSkipped Status = "skipped"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusSkipped:
		return true
	}
	return false
}

// Task tracks one execution (AI loop, direct replay, or a batch row).
// Mutations after a terminal status are ignored, so a late-arriving step
// update can never resurrect a finished task.
type Task struct {
	ID          string
	Instruction string
	CreatedAt   time.Time

	cancelled atomic.Bool

	mu             sync.Mutex
	status         Status
	stepsCompleted int
	currentAction  string
	result         string
	errMsg         string
}

func newTask(id, instruction string) *Task {
	return &Task{
		ID:          id,
		Instruction: instruction,
		CreatedAt:   time.Now().UTC(),
		status:      StatusPending,
	}
}

// Cancel requests cooperative cancellation. The running loop observes it at
// the next step boundary.
func (t *Task) Cancel() { t.cancelled.Store(true) }

func (t *Task) Cancelled() bool { return t.cancelled.Load() }

func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Task) Result() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

func (t *Task) ErrMessage() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errMsg
}

func (t *Task) StepsCompleted() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stepsCompleted
}

func (t *Task) setRunning() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return
	}
	t.status = StatusRunning
}

func (t *Task) setAction(action string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return
	}
	t.currentAction = action
}

func (t *Task) setSteps(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return
	}
	t.stepsCompleted = n
}

func (t *Task) complete(result string, steps int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return
	}
	t.status = StatusCompleted
	t.result = result
	t.stepsCompleted = steps
}

func (t *Task) fail(errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return
	}
	t.status = StatusFailed
	t.errMsg = errMsg
}

func (t *Task) cancelledAfter(steps int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return
	}
	t.status = StatusCancelled
	t.result = cancelResult(steps)
	t.stepsCompleted = steps
}

func cancelResult(steps int) string {
	return fmt.Sprintf("Cancelled after %d steps", steps)
}

// TaskEvent is the progress payload broadcast to websocket clients.
type TaskEvent struct {
	Type           string `json:"type"`
	TaskID         string `json:"task_id"`
	Status         Status `json:"status"`
	StepsCompleted int    `json:"steps_completed"`
	CurrentAction  string `json:"current_action,omitempty"`
	Result         string `json:"result,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Event snapshots the task as a broadcastable progress event.
func (t *Task) Event() TaskEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TaskEvent{
		Type:           "task_status",
		TaskID:         t.ID,
		Status:         t.status,
		StepsCompleted: t.stepsCompleted,
		CurrentAction:  t.currentAction,
		Result:         t.result,
		Error:          t.errMsg,
	}
}
