package agent

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/sgurov/browserflow/internal/workflow"
)

var (
	ErrBusy          = errors.New("another task or batch is already running")
	ErrTaskNotFound  = errors.New("task not found")
	ErrBatchNotFound = errors.New("batch not found")
)

// Registry owns all task and batch state. The agent runs one execution at a
// time; CreateTask and CreateBatch reject while anything is active.
type Registry struct {
	mu      sync.Mutex
	tasks   map[string]*Task
	batches map[string]*Batch
}

func NewRegistry() *Registry {
	return &Registry{
		tasks:   make(map[string]*Task),
		batches: make(map[string]*Batch),
	}
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Busy reports whether any task or batch is pending or running.
func (r *Registry) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busyLocked()
}

func (r *Registry) busyLocked() bool {
	for _, t := range r.tasks {
		if !t.Status().Terminal() {
			return true
		}
	}
	for _, b := range r.batches {
		if !b.Status().Terminal() {
			return true
		}
	}
	return false
}

// CreateTask registers a new top-level task, rejecting if anything is
// already active.
func (r *Registry) CreateTask(instruction string) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busyLocked() {
		return nil, ErrBusy
	}
	t := newTask(newID(), instruction)
	r.tasks[t.ID] = t
	return t, nil
}

// registerTask adds a task without the busy check; batch rows run inside an
// already-active batch.
func (r *Registry) registerTask(instruction string) *Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := newTask(newID(), instruction)
	r.tasks[t.ID] = t
	return t
}

func (r *Registry) Task(id string) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t, nil
}

func (r *Registry) CancelTask(id string) error {
	t, err := r.Task(id)
	if err != nil {
		return err
	}
	t.Cancel()
	return nil
}

// CreateBatch validates every row against the workflow's required
// parameters before anything runs, so a bad row fails the request instead
// of a half-finished batch.
func (r *Registry) CreateBatch(wf workflow.Workflow, rows []map[string]string) (*Batch, error) {
	if len(rows) == 0 {
		return nil, errors.New("batch has no rows")
	}
	required := wf.RequiredParameters()
	for i, row := range rows {
		var missing []string
		for _, name := range required {
			if strings.TrimSpace(row[name]) == "" {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("row %d missing required parameters: %s", i+1, strings.Join(missing, ", "))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busyLocked() {
		return nil, ErrBusy
	}
	b := newBatch(newID(), wf.Name, rows)
	r.batches[b.ID] = b
	return b, nil
}

func (r *Registry) Batch(id string) (*Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	return b, nil
}

// CancelBatch flags the batch and the currently running row's task, so the
// in-flight row stops at its next step boundary and remaining rows are
// skipped.
func (r *Registry) CancelBatch(id string) error {
	b, err := r.Batch(id)
	if err != nil {
		return err
	}
	b.Cancel()
	if t := b.CurrentTask(); t != nil {
		t.Cancel()
	}
	return nil
}
