package flow

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ConfigurationError describes a malformed flow definition. It names the
// offending step so form authors can find the problem.
type ConfigurationError struct {
	StepID string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.StepID == "" {
		return fmt.Sprintf("invalid flow definition: %s", e.Reason)
	}
	return fmt.Sprintf("invalid flow definition: step %q: %s", e.StepID, e.Reason)
}

// Loader parses and validates YAML flow definitions.
type Loader interface {
	// Parse converts a YAML definition into an immutable Document.
	Parse(content string) (*Document, error)

	// Validate checks a YAML definition without building a Document.
	Validate(content string) error
}

// DefaultLoader implements the Loader interface.
type DefaultLoader struct{}

// NewLoader creates a new YAML flow loader.
func NewLoader() Loader {
	return &DefaultLoader{}
}

// Parse converts a YAML definition into a Document.
func (l *DefaultLoader) Parse(content string) (*Document, error) {
	def, err := unmarshalDefinition(content)
	if err != nil {
		return nil, err
	}

	if err := validateDefinition(def); err != nil {
		return nil, err
	}

	steps := make(map[string]StepDef, len(def.Flow.Steps))
	for id, step := range def.Flow.Steps {
		steps[id] = step
	}

	return &Document{
		id:    def.Flow.ID,
		name:  def.Flow.Name,
		start: def.Flow.Start,
		steps: steps,
	}, nil
}

// Validate checks a YAML definition against the flow schema rules.
func (l *DefaultLoader) Validate(content string) error {
	def, err := unmarshalDefinition(content)
	if err != nil {
		return err
	}
	return validateDefinition(def)
}

func unmarshalDefinition(content string) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal([]byte(content), &def); err != nil {
		return nil, fmt.Errorf("failed to parse flow YAML: %w", err)
	}
	return &def, nil
}

func validateDefinition(def *Definition) error {
	spec := def.Flow

	if len(spec.Steps) == 0 {
		return &ConfigurationError{Reason: "flow must declare at least one step"}
	}

	if spec.Start == "" {
		return &ConfigurationError{Reason: "flow must declare a start step"}
	}

	if _, ok := spec.Steps[spec.Start]; !ok {
		return &ConfigurationError{StepID: spec.Start, Reason: "start step does not exist"}
	}

	for id, step := range spec.Steps {
		if err := validateStep(id, step, spec.Steps); err != nil {
			return err
		}
	}

	return validateCompletionReachable(spec)
}

func validateStep(id string, step StepDef, steps map[string]StepDef) error {
	if step.Type == "" {
		return &ConfigurationError{StepID: id, Reason: "step has no type"}
	}

	if step.Type.Terminal() {
		if step.Next != "" {
			return &ConfigurationError{StepID: id, Reason: "completion step must not declare next"}
		}
		return nil
	}

	// Every non-terminal step must have a resolvable outward edge.
	if step.Next == "" {
		return &ConfigurationError{StepID: id, Reason: "non-terminal step must declare next"}
	}
	if _, ok := steps[step.Next]; !ok {
		return &ConfigurationError{StepID: id, Reason: fmt.Sprintf("next references unknown step %q", step.Next)}
	}

	if step.Type.Captures() && step.Map == "" {
		return &ConfigurationError{StepID: id, Reason: "capturing step must declare a map key"}
	}

	if step.Type == KindSingleSelect {
		if len(step.Options) == 0 {
			return &ConfigurationError{StepID: id, Reason: "single_select step must declare options"}
		}
		for i, opt := range step.Options {
			if opt.ID == "" {
				return &ConfigurationError{StepID: id, Reason: fmt.Sprintf("option %d has no id", i)}
			}
		}
	}

	return nil
}

// validateCompletionReachable walks next edges from the start step and
// rejects graphs from which no completion step can be reached. A form
// like that would keep a respondent talking forever.
func validateCompletionReachable(spec FlowSpec) error {
	visited := make(map[string]bool, len(spec.Steps))
	current := spec.Start
	for current != "" && !visited[current] {
		visited[current] = true
		step, ok := spec.Steps[current]
		if !ok {
			break
		}
		if step.Type.Terminal() {
			return nil
		}
		current = step.Next
	}
	return &ConfigurationError{StepID: spec.Start, Reason: "no completion step is reachable from start"}
}
