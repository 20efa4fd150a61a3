// pkg/registry/registry.go
package registry

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/common/validation"
)

//go:embed activity-registry.json
var defaultRegistry []byte

// LoadRegistry reads a registry file from disk.
func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*ActivityRegistry, error) {
	var reg ActivityRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse registry: %w", err)
	}
	return &reg, nil
}

// Default returns the registry of the activities this service implements.
func Default() *ActivityRegistry {
	reg, err := Parse(defaultRegistry)
	if err != nil {
		panic(err)
	}
	return reg
}

// Save writes the registry as indented JSON.
func (r *ActivityRegistry) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Find returns the activity registered for taskType.
func (r *ActivityRegistry) Find(taskType string) (*Activity, bool) {
	for i := range r.Activities {
		if r.Activities[i].TaskType == taskType {
			return &r.Activities[i], true
		}
	}
	return nil, false
}

// ValidateInput checks job variables against the activity's input schema.
// Unknown task types are accepted unchecked.
func (r *ActivityRegistry) ValidateInput(taskType string, input map[string]interface{}) *validation.ValidationResult {
	activity, ok := r.Find(taskType)
	if !ok {
		return &validation.ValidationResult{Valid: true}
	}
	return validation.ValidateInput(input, activity.InputSchema)
}

// Validate checks activity naming and uniqueness, that every declared error
// code has a BPMN mapping, and that input schemas compile.
func (r *ActivityRegistry) Validate() error {
	ids := make(map[string]struct{}, len(r.Activities))
	taskTypes := make(map[string]struct{}, len(r.Activities))

	for _, a := range r.Activities {
		if err := validation.ValidateActivityNaming(a.ID); err != nil {
			return fmt.Errorf("activity %q: %w", a.ID, err)
		}
		if a.TaskType == "" {
			return fmt.Errorf("activity %q: taskType is required", a.ID)
		}
		if _, dup := ids[a.ID]; dup {
			return fmt.Errorf("duplicate activity id %q", a.ID)
		}
		if _, dup := taskTypes[a.TaskType]; dup {
			return fmt.Errorf("duplicate task type %q", a.TaskType)
		}
		ids[a.ID] = struct{}{}
		taskTypes[a.TaskType] = struct{}{}

		for _, code := range a.ErrorCodes {
			if _, ok := errors.BPMNErrorMapping[code]; !ok {
				return fmt.Errorf("activity %q: error code %s has no BPMN mapping", a.ID, code)
			}
		}
		if a.Timeout != "" && a.TimeoutDuration() <= 0 {
			return fmt.Errorf("activity %q: invalid timeout %q", a.ID, a.Timeout)
		}

		result := validation.ValidateInput(map[string]interface{}{}, a.InputSchema)
		for _, e := range result.Errors {
			if e.Code == "SCHEMA_INVALID" {
				return fmt.Errorf("activity %q: invalid input schema: %s", a.ID, e.Message)
			}
		}
	}
	return nil
}
