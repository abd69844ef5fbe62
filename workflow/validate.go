package workflow

import "fmt"

// ValidationResult holds errors and warnings from workflow graph validation.
type ValidationResult struct {
	Errors   []string // Blocking: duplicate or empty step IDs
	Warnings []string // Non-blocking: dangling edge targets, self-edges
}

// HasErrors returns true if there are blocking validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Validate checks the step graph of a Spec: step IDs must be non-empty
// and unique, and every edge target should reference a step in the same
// workflow. Dangling edges are warnings rather than errors because the
// generation backend is not trusted to produce a closed graph; callers
// repair them with Repair.
func Validate(spec *Spec) *ValidationResult {
	r := &ValidationResult{}

	ids := make(map[string]bool, len(spec.Steps))
	for i, step := range spec.Steps {
		if step.ID == "" {
			r.Errors = append(r.Errors, fmt.Sprintf("steps[%d] has an empty id", i))
			continue
		}
		if ids[step.ID] {
			r.Errors = append(r.Errors, fmt.Sprintf("steps[%d] id %q is duplicated", i, step.ID))
		}
		ids[step.ID] = true
	}

	for _, step := range spec.Steps {
		for _, edge := range step.Edges {
			if !ids[edge.TargetNodeID] {
				r.Warnings = append(r.Warnings, fmt.Sprintf(
					"step %q edge target %q does not exist in the workflow",
					step.ID, edge.TargetNodeID))
			}
			if edge.TargetNodeID == step.ID {
				r.Warnings = append(r.Warnings, fmt.Sprintf(
					"step %q has an edge to itself", step.ID))
			}
		}
	}

	return r
}

// Repair returns a copy of spec with dangling edges removed. Edges whose
// target references a step present in the workflow are kept unchanged.
// The returned Spec shares step parameter maps with the input; callers
// treat both as immutable.
func Repair(spec *Spec) (*Spec, int) {
	ids := make(map[string]bool, len(spec.Steps))
	for _, step := range spec.Steps {
		ids[step.ID] = true
	}

	repaired := *spec
	repaired.Steps = make([]Step, len(spec.Steps))
	dropped := 0

	for i, step := range spec.Steps {
		kept := step
		kept.Edges = nil
		for _, edge := range step.Edges {
			if ids[edge.TargetNodeID] {
				kept.Edges = append(kept.Edges, edge)
			} else {
				dropped++
			}
		}
		repaired.Steps[i] = kept
	}

	return &repaired, dropped
}
