package flow

// Document is an immutable, validated flow definition. It is constructed
// by the loader once per session and never mutated afterwards; step
// lookups hand out copies so callers cannot reach the shared graph.
type Document struct {
	id    string
	name  string
	start string
	steps map[string]StepDef
}

// ID returns the flow identifier declared in the definition.
func (d *Document) ID() string {
	return d.id
}

// Name returns the human-readable flow name.
func (d *Document) Name() string {
	return d.name
}

// StartStepID returns the id of the step a session begins at.
func (d *Document) StartStepID() string {
	return d.start
}

// Step looks up a step definition by id.
func (d *Document) Step(id string) (StepDef, bool) {
	step, ok := d.steps[id]
	return step, ok
}

// StepCount returns the number of steps in the graph.
func (d *Document) StepCount() int {
	return len(d.steps)
}

// StepIDs returns the ids of all steps in the graph, in no particular order.
func (d *Document) StepIDs() []string {
	ids := make([]string, 0, len(d.steps))
	for id := range d.steps {
		ids = append(ids, id)
	}
	return ids
}
