package heapbuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseAllowDisallowOnce(t *testing.T) {
	p := NewPhase("add_phase")
	require.NoError(t, p.RequireBefore("register_immutable"))
	require.Error(t, p.RequireAllowed("add"))

	require.NoError(t, p.Allow())
	assert.Error(t, p.Allow(), "a second Allow must be rejected")
	require.NoError(t, p.RequireAllowed("add"))
	assert.Error(t, p.RequireBefore("register_immutable"))
	assert.False(t, p.IsAfter())

	require.NoError(t, p.Disallow())
	assert.Error(t, p.Disallow(), "a second Disallow must be rejected")
	assert.True(t, p.IsAfter())
	assert.Error(t, p.RequireAllowed("add"))
}

func TestPhaseDisallowBeforeAllowIsAViolation(t *testing.T) {
	p := NewPhase("intern_phase")
	err := p.Disallow()
	require.Error(t, err)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "PhaseViolationError", be.Kind)
}
