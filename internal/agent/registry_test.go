package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgurov/browserflow/internal/workflow"
)

func TestCreateTaskRejectsWhileBusy(t *testing.T) {
	r := NewRegistry()
	first, err := r.CreateTask("first")
	require.NoError(t, err)
	assert.Len(t, first.ID, 12)

	_, err = r.CreateTask("second")
	assert.ErrorIs(t, err, ErrBusy)

	first.complete("done", 1)
	_, err = r.CreateTask("third")
	assert.NoError(t, err)
}

func TestTaskLookupAndCancel(t *testing.T) {
	r := NewRegistry()
	task, err := r.CreateTask("work")
	require.NoError(t, err)

	got, err := r.Task(task.ID)
	require.NoError(t, err)
	assert.Same(t, task, got)

	_, err = r.Task("missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.ErrorIs(t, r.CancelTask("missing"), ErrTaskNotFound)

	require.NoError(t, r.CancelTask(task.ID))
	assert.True(t, task.Cancelled())
}

func batchWorkflow() workflow.Workflow {
	return workflow.Workflow{
		Name: "invite",
		Parameters: []workflow.Parameter{
			{Name: "recipient"},
			{Name: "subject", Default: "Hello"},
		},
		Steps: []workflow.Step{
			{Action: workflow.ActionType, Text: "{{recipient}}"},
		},
	}
}

func TestCreateBatchValidatesRows(t *testing.T) {
	r := NewRegistry()
	rows := []map[string]string{
		{"recipient": "alice@example.com"},
		{"subject": "no recipient here"},
	}
	_, err := r.CreateBatch(batchWorkflow(), rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2 missing required parameters: recipient")

	_, err = r.CreateBatch(batchWorkflow(), nil)
	assert.Error(t, err)
}

func TestCreateBatchRejectsWhileBusy(t *testing.T) {
	r := NewRegistry()
	rows := []map[string]string{{"recipient": "a@example.com"}}

	batch, err := r.CreateBatch(batchWorkflow(), rows)
	require.NoError(t, err)
	assert.Len(t, batch.ID, 12)

	_, err = r.CreateBatch(batchWorkflow(), rows)
	assert.ErrorIs(t, err, ErrBusy)
	_, err = r.CreateTask("task during batch")
	assert.ErrorIs(t, err, ErrBusy)
}

func TestCancelBatchCancelsCurrentTask(t *testing.T) {
	r := NewRegistry()
	rows := []map[string]string{{"recipient": "a@example.com"}}
	batch, err := r.CreateBatch(batchWorkflow(), rows)
	require.NoError(t, err)

	task := r.registerTask("row task")
	batch.startRow(0, task)

	require.NoError(t, r.CancelBatch(batch.ID))
	assert.True(t, batch.Cancelled())
	assert.True(t, task.Cancelled())

	assert.ErrorIs(t, r.CancelBatch("missing"), ErrBatchNotFound)
}
