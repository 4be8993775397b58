// Package flow defines the voice form document model and its YAML loader.
package flow

// StepKind identifies the conversational behavior of a step.
type StepKind string

// The closed set of step kinds the engine knows how to drive.
const (
	KindMessage      StepKind = "message"
	KindText         StepKind = "text"
	KindTextarea     StepKind = "textarea"
	KindEmail        StepKind = "email"
	KindSingleSelect StepKind = "single_select"
	KindCheckbox     StepKind = "checkbox"
	KindCompletion   StepKind = "completion"
)

// Captures reports whether steps of this kind record a value into the
// session answer map. Kinds outside the known set report false.
func (k StepKind) Captures() bool {
	switch k {
	case KindText, KindTextarea, KindEmail, KindSingleSelect, KindCheckbox:
		return true
	}
	return false
}

// Terminal reports whether steps of this kind end the conversation.
func (k StepKind) Terminal() bool {
	return k == KindCompletion
}

// Definition is the top-level YAML shape of a stored form.
type Definition struct {
	Version int      `yaml:"version" json:"version"`
	Flow    FlowSpec `yaml:"flow" json:"flow"`
}

// FlowSpec describes the step graph of one voice form.
type FlowSpec struct {
	ID    string             `yaml:"id" json:"id"`
	Name  string             `yaml:"name" json:"name"`
	Start string             `yaml:"start" json:"start"`
	Steps map[string]StepDef `yaml:"steps" json:"steps"`
}

// StepDef is one node in the flow graph. Which fields are meaningful
// depends on Type; the loader enforces the per-kind requirements.
type StepDef struct {
	Type     StepKind     `yaml:"type" json:"type"`
	Label    string       `yaml:"label,omitempty" json:"label,omitempty"`
	Speak    string       `yaml:"speak,omitempty" json:"speak,omitempty"`
	Reask    string       `yaml:"reask,omitempty" json:"reask,omitempty"`
	Text     string       `yaml:"text,omitempty" json:"text,omitempty"`
	Validate *ValidateDef `yaml:"validate,omitempty" json:"validate,omitempty"`
	Confirm  *ConfirmDef  `yaml:"confirm,omitempty" json:"confirm,omitempty"`
	Options  []OptionDef  `yaml:"options,omitempty" json:"options,omitempty"`
	Map      string       `yaml:"map,omitempty" json:"map,omitempty"`
	Next     string       `yaml:"next,omitempty" json:"next,omitempty"`
}

// ValidateDef declares input validation for a capturing step.
type ValidateDef struct {
	Required bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Regex    string `yaml:"regex,omitempty" json:"regex,omitempty"`
	Message  string `yaml:"message,omitempty" json:"message,omitempty"`
}

// ConfirmDef declares the optional read-back confirmation sub-dialogue.
// Prompt may contain a {field} placeholder matching the step's map key.
type ConfirmDef struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Prompt  string `yaml:"prompt,omitempty" json:"prompt,omitempty"`
}

// OptionDef is one choice of a single_select step. Synonyms are matched
// by substring containment against the spoken utterance; the label is
// always matched implicitly.
type OptionDef struct {
	ID       string   `yaml:"id" json:"id"`
	Label    string   `yaml:"label,omitempty" json:"label,omitempty"`
	Synonyms []string `yaml:"synonyms,omitempty" json:"synonyms,omitempty"`
}
