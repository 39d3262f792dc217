package tasks

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/task-manager/task-manager/internal/db/models"
	"github.com/task-manager/task-manager/internal/validation"
)

// CreateInput is the payload for a new task
type CreateInput struct {
	Title        string              `json:"title" binding:"required,max=255"`
	Description  string              `json:"description"`
	Status       models.TaskStatus   `json:"status" binding:"omitempty,taskstatus"`
	Priority     models.TaskPriority `json:"priority" binding:"omitempty,taskpriority"`
	AssignedToID *string             `json:"assignedToId" binding:"omitempty,uuid"`
}

// Validate checks the payload against its binding tags
func (in *CreateInput) Validate() error {
	if err := validation.Struct(in); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

// Patch is a partial task update. It remembers every key present in the JSON object,
// including keys it does not understand, so authorization sees exactly what the client sent.
// An explicit null assignedToId unassigns the task.
type Patch struct {
	Title        *string
	Description  *string
	Status       *models.TaskStatus
	Priority     *models.TaskPriority
	AssignedToID *string

	assigneeSet bool
	keys        []string
}

// UnmarshalJSON decodes a JSON object. Values of the wrong type are rejected.
func (p *Patch) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: body must be a JSON object", ErrValidation)
	}

	*p = Patch{keys: make([]string, 0, len(raw))}
	for k := range raw {
		p.keys = append(p.keys, k)
	}
	sort.Strings(p.keys)

	fields := map[string]interface{}{
		models.TaskFieldTitle:       &p.Title,
		models.TaskFieldDescription: &p.Description,
		models.TaskFieldStatus:      &p.Status,
		models.TaskFieldPriority:    &p.Priority,
	}
	for key, dst := range fields {
		v, ok := raw[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return fmt.Errorf("%w: %s has the wrong type", ErrValidation, key)
		}
	}

	if v, ok := raw[models.TaskFieldAssignedToID]; ok {
		p.assigneeSet = true
		if err := json.Unmarshal(v, &p.AssignedToID); err != nil {
			return fmt.Errorf("%w: %s has the wrong type", ErrValidation, models.TaskFieldAssignedToID)
		}
	}
	return nil
}

// Keys returns every top-level key of the decoded object, sorted
func (p *Patch) Keys() []string {
	return p.keys
}

// Has reports whether key was present
func (p *Patch) Has(key string) bool {
	i := sort.SearchStrings(p.keys, key)
	return i < len(p.keys) && p.keys[i] == key
}

// AssigneeSet reports whether assignedToId was present, null included
func (p *Patch) AssigneeSet() bool {
	return p.assigneeSet
}

// Validate checks the values that were supplied. A present key with a null value is only
// allowed for assignedToId.
func (p *Patch) Validate() error {
	fe := validation.FieldErrors{}
	for _, key := range []string{models.TaskFieldTitle, models.TaskFieldDescription, models.TaskFieldStatus, models.TaskFieldPriority} {
		if p.Has(key) && p.value(key) == nil {
			fe[key] = "must not be null"
		}
	}
	if p.Title != nil {
		if err := validation.Var(*p.Title, "required,max=255"); err != nil {
			fe[models.TaskFieldTitle] = "must be between 1 and 255 characters"
		}
	}
	if p.Status != nil && !p.Status.Valid() {
		fe[models.TaskFieldStatus] = "must be one of todo, in_progress, done"
	}
	if p.Priority != nil && !p.Priority.Valid() {
		fe[models.TaskFieldPriority] = "must be one of low, medium, high"
	}
	if p.AssignedToID != nil {
		if err := validation.Var(*p.AssignedToID, "uuid"); err != nil {
			fe[models.TaskFieldAssignedToID] = "must be a UUID"
		}
	}
	if len(fe) > 0 {
		return fmt.Errorf("%w: %w", ErrValidation, fe)
	}
	return nil
}

func (p *Patch) value(key string) interface{} {
	switch key {
	case models.TaskFieldTitle:
		if p.Title != nil {
			return p.Title
		}
	case models.TaskFieldDescription:
		if p.Description != nil {
			return p.Description
		}
	case models.TaskFieldStatus:
		if p.Status != nil {
			return p.Status
		}
	case models.TaskFieldPriority:
		if p.Priority != nil {
			return p.Priority
		}
	}
	return nil
}

// applyTo copies the supplied values whose field is listed in mutable onto t
func (p *Patch) applyTo(t *models.Task, mutable []string) {
	allowed := make(map[string]bool, len(mutable))
	for _, f := range mutable {
		allowed[f] = true
	}
	if p.Title != nil && allowed[models.TaskFieldTitle] {
		t.Title = *p.Title
	}
	if p.Description != nil && allowed[models.TaskFieldDescription] {
		t.Description = *p.Description
	}
	if p.Status != nil && allowed[models.TaskFieldStatus] {
		t.Status = *p.Status
	}
	if p.Priority != nil && allowed[models.TaskFieldPriority] {
		t.Priority = *p.Priority
	}
	if p.assigneeSet && allowed[models.TaskFieldAssignedToID] {
		t.AssignedToID = p.AssignedToID
	}
}
