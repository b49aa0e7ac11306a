package tasks

import (
	"context"
	"fmt"
	"os"

	"github.com/dshills/sagaflow-go/workflow"
)

// FileEditTask writes new content to a file, remembering what was
// there so rollback can restore it.
//
// Editing an existing file discloses an undo that restores the
// original bytes; creating a new file discloses a deletion undo.
type FileEditTask struct {
	id         workflow.TaskID
	name       string
	deps       []workflow.TaskID
	path       string
	newContent []byte
	mode       os.FileMode
}

// NewFileEditTask creates a task writing newContent to path.
func NewFileEditTask(id workflow.TaskID, name, path string, newContent []byte) *FileEditTask {
	return &FileEditTask{
		id:         id,
		name:       name,
		path:       path,
		newContent: newContent,
		mode:       0o644,
	}
}

// WithMode sets the file mode used when creating the file.
func (t *FileEditTask) WithMode(mode os.FileMode) *FileEditTask {
	t.mode = mode
	return t
}

// DependsOn declares dependency hints consumed by the Builder.
func (t *FileEditTask) DependsOn(ids ...workflow.TaskID) *FileEditTask {
	t.deps = append(t.deps, ids...)
	return t
}

// Path returns the target path.
func (t *FileEditTask) Path() string {
	return t.path
}

// ID implements workflow.Task.
func (t *FileEditTask) ID() workflow.TaskID {
	return t.id
}

// Name implements workflow.Task.
func (t *FileEditTask) Name() string {
	return t.name
}

// Dependencies implements workflow.Task.
func (t *FileEditTask) Dependencies() []workflow.TaskID {
	return t.deps
}

// Execute implements workflow.Task.
func (t *FileEditTask) Execute(ctx context.Context, tc *workflow.TaskContext) (workflow.TaskResult, error) {
	if ctx.Err() != nil || tc.Cancelled() {
		return workflow.Skipped("cancelled before start"), nil
	}

	original, readErr := os.ReadFile(t.path)
	existed := readErr == nil
	if readErr != nil && !os.IsNotExist(readErr) {
		return workflow.TaskResult{}, &workflow.TaskError{
			Message: "failed to read " + t.path,
			Code:    "FILE_READ_FAILED",
			TaskID:  t.id,
			Cause:   readErr,
		}
	}

	if err := os.WriteFile(t.path, t.newContent, t.mode); err != nil {
		return workflow.TaskResult{}, &workflow.TaskError{
			Message: "failed to write " + t.path,
			Code:    "FILE_WRITE_FAILED",
			TaskID:  t.id,
			Cause:   err,
		}
	}

	return workflow.Success().WithCompensation(t.undoFor(existed, original)), nil
}

// Compensation implements workflow.Task. The undo depends on whether
// the file existed, so it is disclosed per-run through the result.
func (t *FileEditTask) Compensation() *workflow.Compensation {
	return nil
}

func (t *FileEditTask) undoFor(existed bool, original []byte) *workflow.Compensation {
	if !existed {
		return workflow.FileCreationCompensation(t.path)
	}

	path := t.path
	mode := t.mode
	desc := fmt.Sprintf("restore original content of %s", path)
	return workflow.UndoCompensation(desc, func(_ *workflow.TaskContext) (workflow.TaskResult, error) {
		if err := os.WriteFile(path, original, mode); err != nil {
			return workflow.Failed(fmt.Sprintf("failed to restore %s: %v", path, err)), nil
		}
		return workflow.Success(), nil
	})
}
