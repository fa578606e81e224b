package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/sgurov/browserflow/internal/browser"
	"github.com/sgurov/browserflow/internal/workflow"
)

// BatchRow is one parameter set to run the workflow with.
type BatchRow struct {
	Values map[string]string
	Status Status
	TaskID string
	Error  string
}

// Batch runs one workflow over many parameter rows, sequentially. Row
// failures are isolated; cancellation skips everything not yet started.
type Batch struct {
	ID           string
	WorkflowName string

	cancelled atomic.Bool

	mu           sync.Mutex
	status       Status
	rows         []BatchRow
	currentIndex int
	currentTask  *Task
}

func newBatch(id, workflowName string, rowValues []map[string]string) *Batch {
	rows := make([]BatchRow, len(rowValues))
	for i, values := range rowValues {
		rows[i] = BatchRow{Values: values, Status: StatusPending}
	}
	return &Batch{
		ID:           id,
		WorkflowName: workflowName,
		status:       StatusPending,
		rows:         rows,
	}
}

func (b *Batch) Cancel()         { b.cancelled.Store(true) }
func (b *Batch) Cancelled() bool { return b.cancelled.Load() }

func (b *Batch) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Batch) CurrentTask() *Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentTask
}

// Rows returns a snapshot of row states.
func (b *Batch) Rows() []BatchRow {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]BatchRow, len(b.rows))
	copy(out, b.rows)
	return out
}

func (b *Batch) setRunning() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status.Terminal() {
		return
	}
	b.status = StatusRunning
}

func (b *Batch) startRow(i int, task *Task) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.currentIndex = i
	b.currentTask = task
	b.rows[i].Status = StatusRunning
	if task != nil {
		b.rows[i].TaskID = task.ID
	}
}

func (b *Batch) rowCompleted(i int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows[i].Status = StatusCompleted
}

func (b *Batch) rowFailed(i int, errMsg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows[i].Status = StatusFailed
	b.rows[i].Error = errMsg
}

func (b *Batch) rowCancelled(i int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows[i].Status = StatusCancelled
}

// markCancelled skips every row from index on that never started and
// finishes the batch as cancelled.
func (b *Batch) markCancelled(from int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := from; i < len(b.rows); i++ {
		if !b.rows[i].Status.Terminal() {
			b.rows[i].Status = StatusSkipped
		}
	}
	b.status = StatusCancelled
	b.currentTask = nil
}

func (b *Batch) finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status.Terminal() {
		return
	}
	b.status = StatusCompleted
	b.currentTask = nil
}

// BatchEvent is the progress payload broadcast to websocket clients.
type BatchEvent struct {
	Type         string            `json:"type"`
	BatchID      string            `json:"batch_id"`
	WorkflowName string            `json:"workflow_name"`
	Status       Status            `json:"status"`
	CurrentIndex int               `json:"current_index"`
	Total        int               `json:"total"`
	Completed    int               `json:"completed"`
	Failed       int               `json:"failed"`
	CurrentRow   map[string]string `json:"current_row,omitempty"`
}

func (b *Batch) Event() BatchEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ev := BatchEvent{
		Type:         "batch_progress",
		BatchID:      b.ID,
		WorkflowName: b.WorkflowName,
		Status:       b.status,
		CurrentIndex: b.currentIndex,
		Total:        len(b.rows),
	}
	for _, row := range b.rows {
		switch row.Status {
		case StatusCompleted:
			ev.Completed++
		case StatusFailed:
			ev.Failed++
		}
	}
	if b.status == StatusRunning && b.currentIndex < len(b.rows) {
		ev.CurrentRow = b.rows[b.currentIndex].Values
	}
	return ev
}

// BatchRunner executes a batch sequentially, one task per row, reusing the
// single browser session across rows.
type BatchRunner struct {
	registry *Registry
	drv      browser.Driver
	replayer *Replayer
	loop     *Loop
	hub      Broadcaster
	logger   zerolog.Logger
}

// NewBatchRunner wires a runner; loop may be nil when only direct replay is
// used.
func NewBatchRunner(registry *Registry, drv browser.Driver, replayer *Replayer, loop *Loop, hub Broadcaster, logger zerolog.Logger) *BatchRunner {
	return &BatchRunner{
		registry: registry,
		drv:      drv,
		replayer: replayer,
		loop:     loop,
		hub:      hub,
		logger:   logger,
	}
}

// Run drives the batch to a terminal status.
func (r *BatchRunner) Run(ctx context.Context, batch *Batch, wf workflow.Workflow, useAI bool) {
	batch.setRunning()
	r.hub.Broadcast(batch.Event())
	rows := batch.Rows()
	r.logger.Info().Str("batch", batch.ID).Str("workflow", wf.Name).Int("rows", len(rows)).Bool("ai", useAI).Msg("batch started")

	for i := range rows {
		if batch.Cancelled() || ctx.Err() != nil {
			batch.markCancelled(i)
			r.hub.Broadcast(batch.Event())
			r.logger.Info().Str("batch", batch.ID).Int("completed_rows", i).Msg("batch cancelled")
			return
		}

		r.runRow(ctx, batch, wf, i, rows[i].Values, len(rows), useAI)
		r.hub.Broadcast(batch.Event())
	}

	batch.finish()
	r.hub.Broadcast(batch.Event())
	r.logger.Info().Str("batch", batch.ID).Msg("batch finished")
}

func (r *BatchRunner) runRow(ctx context.Context, batch *Batch, wf workflow.Workflow, i int, values map[string]string, total int, useAI bool) {
	resolved, err := wf.Resolve(values)
	if err != nil {
		batch.startRow(i, nil)
		batch.rowFailed(i, err.Error())
		return
	}

	instruction := fmt.Sprintf("Batch %s [%d/%d]", wf.Name, i+1, total)
	if useAI {
		instruction = resolved.Instruction()
	}
	task := r.registry.registerTask(instruction)
	batch.startRow(i, task)
	r.hub.Broadcast(batch.Event())

	if resolved.StartURL != "" {
		if err := r.drv.Navigate(ctx, resolved.StartURL); err != nil {
			task.fail(fmt.Sprintf("navigate to %s: %v", resolved.StartURL, err))
			batch.rowFailed(i, task.ErrMessage())
			return
		}
	}

	switch {
	case useAI && r.loop != nil:
		r.loop.Run(ctx, task)
	case useAI:
		task.fail("AI mode is not configured")
	default:
		r.replayer.Run(ctx, task, resolved)
	}

	if task.Status() == StatusCompleted {
		batch.rowCompleted(i)
		return
	}
	if task.Status() == StatusCancelled {
		batch.rowCancelled(i)
		return
	}
	msg := task.ErrMessage()
	if msg == "" {
		msg = "Task did not complete"
	}
	batch.rowFailed(i, msg)
}
