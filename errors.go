package heapbuilder

import (
	"fmt"
	"strings"

	goerrors "github.com/go-errors/errors"
)

// BuildError is the common shape of every error kind in spec.md §7: all
// are fatal to the build, none are retried, and all carry a go-errors
// stack trace captured at the point of failure so a post-mortem can show
// not just the Go call stack but, where relevant, the object provenance
// chain (ReasonChain) that led to the failing object.
type BuildError struct {
	Kind    string
	Message string
	Chain   []string
	inner   *goerrors.Error
}

func (e *BuildError) Error() string {
	if len(e.Chain) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s\nreason chain:\n  %s", e.Kind, e.Message, strings.Join(e.Chain, "\n  "))
}

// ErrorStack exposes the go-errors stack trace the way the teacher's own
// log.Fatalln surfaces a message, but with full frame information for
// post-mortem debugging.
func (e *BuildError) ErrorStack() string {
	if e.inner == nil {
		return e.Error()
	}
	return e.inner.ErrorStack()
}

func newBuildError(kind, message string, chain []string) *BuildError {
	return &BuildError{
		Kind:    kind,
		Message: message,
		Chain:   chain,
		inner:   goerrors.Wrap(fmt.Errorf("%s: %s", kind, message), 1),
	}
}

// newUnreachableTypeError: the canonical object's class was not marked
// instantiated by the analyzer. Surfaced with the full provenance chain.
func newUnreachableTypeError(typeName string, chain []string) error {
	return newBuildError("UnreachableTypeError",
		fmt.Sprintf("type %q was not marked instantiated by the analyzer", typeName), chain)
}

// newLateMutationError: a static field or reachable object changed after
// analysis, detected at write time when a referenced target has no
// ObjectInfo.
func newLateMutationError(description string, chain []string) error {
	return newBuildError("LateMutationError", description, chain)
}

// newPhaseViolationError: add after disallow, intern after disallow, or
// register_immutable after add_phase.allow.
func newPhaseViolationError(phaseName, action string, state phaseState) error {
	return newBuildError("PhaseViolationError",
		fmt.Sprintf("%s: cannot %s while phase is %s", phaseName, action, state), nil)
}

// newAlignmentViolationError: an object's offset or a field's in-section
// index is not reference-aligned (or a partition/section invariant is
// violated).
func newAlignmentViolationError(description string) error {
	return newBuildError("AlignmentViolationError", description, nil)
}

// newUnknownPointerRelocationError: a non-data relocation targeted
// something that is neither a method pointer nor a known function
// pointer.
func newUnknownPointerRelocationError(description string) error {
	return newBuildError("UnknownPointerRelocationError", description, nil)
}

// newUnrecognizedMoveTypeError: a miscellaneous categorization error,
// reported with the offending entity.
func newUnrecognizedMoveTypeError(entity string) error {
	return newBuildError("UnrecognizedMoveTypeError",
		fmt.Sprintf("unrecognized move type for %v", entity), nil)
}

// newConfigError covers the ambient configuration-validation failures
// added in SPEC_FULL.md (not one of the six build-time kinds in spec.md
// §7, but fatal in the same "abort before any work starts" sense).
func newConfigError(description string) error {
	return newBuildError("ConfigError", description, nil)
}

func wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return goerrors.WrapPrefix(err, fmt.Sprintf(format, args...), 1)
}
