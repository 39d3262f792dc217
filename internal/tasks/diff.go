package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/task-manager/task-manager/internal/db/models"
	"github.com/wI2L/jsondiff"
)

// snapshot is the mutable part of a task as recorded in audit changes
type snapshot struct {
	Title        string              `json:"title"`
	Description  string              `json:"description"`
	Status       models.TaskStatus   `json:"status"`
	Priority     models.TaskPriority `json:"priority"`
	AssignedToID *string             `json:"assignedToId"`
}

func snapshotOf(t *models.Task) snapshot {
	s := snapshot{
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Priority:    t.Priority,
	}
	if t.AssignedToID != nil {
		id := *t.AssignedToID
		s.AssignedToID = &id
	}
	return s
}

// updateChanges is stored as the audit changes of an UPDATE
type updateChanges struct {
	Old   snapshot       `json:"old"`
	New   snapshot       `json:"new"`
	Patch jsondiff.Patch `json:"patch"`
}

// diff returns the RFC 6902 operations that turn old into new
func diff(old, new snapshot) (jsondiff.Patch, error) {
	a, err := json.Marshal(old)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task snapshot: %w", err)
	}
	b, err := json.Marshal(new)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task snapshot: %w", err)
	}
	patch, err := jsondiff.CompareJSON(a, b)
	if err != nil {
		return nil, fmt.Errorf("failed to diff task: %w", err)
	}
	if patch == nil {
		patch = jsondiff.Patch{}
	}
	return patch, nil
}
