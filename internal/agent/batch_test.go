package agent

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgurov/browserflow/internal/workflow"
)

func inviteWorkflow() workflow.Workflow {
	return workflow.Workflow{
		Name:     "invite",
		StartURL: "https://app.example.com",
		Parameters: []workflow.Parameter{
			{Name: "recipient"},
		},
		Steps: []workflow.Step{
			{Action: workflow.ActionType, Text: "{{recipient}}", Element: workflow.Descriptor{AriaLabel: "Gone"}},
			{Action: workflow.ActionKey, Key: "Enter"},
		},
	}
}

func newTestBatchRunner(r *Registry, drv *fakeDriver) *BatchRunner {
	replayer := newTestReplayer(drv)
	return NewBatchRunner(r, drv, replayer, nil, NopBroadcaster{}, zerolog.Nop())
}

func TestBatchRunsAllRows(t *testing.T) {
	r := NewRegistry()
	drv := newFakeDriver()
	wf := inviteWorkflow()
	rows := []map[string]string{
		{"recipient": "alice@example.com"},
		{"recipient": "bob@example.com"},
	}

	batch, err := r.CreateBatch(wf, rows)
	require.NoError(t, err)
	newTestBatchRunner(r, drv).Run(context.Background(), batch, wf, false)

	assert.Equal(t, StatusCompleted, batch.Status())
	for _, row := range batch.Rows() {
		assert.Equal(t, StatusCompleted, row.Status)
		assert.Len(t, row.TaskID, 12)
	}

	ev := batch.Event()
	assert.Equal(t, "batch_progress", ev.Type)
	assert.Equal(t, 2, ev.Completed)
	assert.Equal(t, 0, ev.Failed)

	calls := drv.Calls()
	assert.Contains(t, calls, "type alice@example.com")
	assert.Contains(t, calls, "type bob@example.com")
	assert.Equal(t, 2, drv.countCalls("navigate"), "start URL is visited once per row")
}

func TestBatchRowCancellationIsIsolated(t *testing.T) {
	r := NewRegistry()
	drv := newFakeDriver()
	wf := inviteWorkflow()
	rows := []map[string]string{
		{"recipient": "alice@example.com"},
		{"recipient": "bob@example.com"},
	}

	batch, err := r.CreateBatch(wf, rows)
	require.NoError(t, err)

	// Cancelling only row 1's task must not touch the batch or row 2.
	drv.onType = func(text string) {
		if text == "alice@example.com" {
			if task := batch.CurrentTask(); task != nil {
				task.Cancel()
			}
		}
	}
	newTestBatchRunner(r, drv).Run(context.Background(), batch, wf, false)

	rowsOut := batch.Rows()
	assert.Equal(t, StatusCancelled, rowsOut[0].Status)
	assert.Equal(t, StatusCompleted, rowsOut[1].Status)
	assert.Equal(t, StatusCompleted, batch.Status())
}

func TestBatchCancelSkipsRemainingRows(t *testing.T) {
	r := NewRegistry()
	drv := newFakeDriver()
	wf := inviteWorkflow()
	rows := []map[string]string{
		{"recipient": "alice@example.com"},
		{"recipient": "bob@example.com"},
		{"recipient": "carol@example.com"},
	}

	batch, err := r.CreateBatch(wf, rows)
	require.NoError(t, err)

	// Cancel the whole batch while row 2's first step is executing.
	drv.onType = func(text string) {
		if text == "bob@example.com" {
			require.NoError(t, r.CancelBatch(batch.ID))
		}
	}
	newTestBatchRunner(r, drv).Run(context.Background(), batch, wf, false)

	rowsOut := batch.Rows()
	require.Len(t, rowsOut, 3)
	assert.Equal(t, StatusCompleted, rowsOut[0].Status)
	assert.Equal(t, StatusCancelled, rowsOut[1].Status, "in-flight row stops at the next step boundary")
	assert.Equal(t, StatusSkipped, rowsOut[2].Status, "unstarted row is skipped, not cancelled")
	assert.Equal(t, StatusCancelled, batch.Status())

	assert.Equal(t, 0, drv.countCalls("type carol"), "row 3 never runs")
	assert.Equal(t, 1, drv.countCalls("press"), "row 2 stopped before its second step")
}
