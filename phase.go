package heapbuilder

import "fmt"

// phaseState is the three-valued guard from spec.md §4.4: before, allowed,
// after. Each transition is permitted exactly once and in one direction.
type phaseState int

const (
	phaseBefore phaseState = iota
	phaseAllowed
	phaseAfter
)

func (s phaseState) String() string {
	switch s {
	case phaseBefore:
		return "before"
	case phaseAllowed:
		return "allowed"
	case phaseAfter:
		return "after"
	default:
		return "unknown"
	}
}

// Phase gates a mutation window of the builder. add_phase guards add_*,
// register_immutable, and partition-size mutations; intern_phase guards
// insertions into the intern table. Both start in phaseBefore and must be
// opened with Allow and closed with Disallow exactly once each.
type Phase struct {
	name  string
	state phaseState
}

// NewPhase constructs a phase in the "before" state. name is used only to
// identify the phase in error messages (e.g. "add_phase", "intern_phase").
func NewPhase(name string) *Phase {
	return &Phase{name: name, state: phaseBefore}
}

// Allow transitions before -> allowed. Any other starting state is a phase
// violation.
func (p *Phase) Allow() error {
	if p.state != phaseBefore {
		return newPhaseViolationError(p.name, "allow", p.state)
	}
	p.state = phaseAllowed
	log.WithFields(logFields{"phase": p.name}).Debug("phase opened")
	return nil
}

// Disallow transitions allowed -> after. Any other starting state is a
// phase violation.
func (p *Phase) Disallow() error {
	if p.state != phaseAllowed {
		return newPhaseViolationError(p.name, "disallow", p.state)
	}
	p.state = phaseAfter
	log.WithFields(logFields{"phase": p.name}).Debug("phase closed")
	return nil
}

// RequireAllowed returns a phase violation error unless the phase is
// currently open. Used to guard add and intern insertions.
func (p *Phase) RequireAllowed(action string) error {
	if p.state != phaseAllowed {
		return newPhaseViolationError(p.name, action, p.state)
	}
	return nil
}

// RequireBefore returns a phase violation error unless the phase has not
// yet been opened. Used to guard register_immutable, which spec.md
// requires to happen strictly before add_phase is opened.
func (p *Phase) RequireBefore(action string) error {
	if p.state != phaseBefore {
		return newPhaseViolationError(p.name, action, p.state)
	}
	return nil
}

// IsAfter reports whether the phase has been closed.
func (p *Phase) IsAfter() bool {
	return p.state == phaseAfter
}

func (p *Phase) String() string {
	return fmt.Sprintf("%s[%s]", p.name, p.state)
}
