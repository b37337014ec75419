package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStateMachineStartsOpening(t *testing.T) {
	sm := NewStateMachine()
	assert.Equal(t, StateOpening, sm.GetCurrentState())
	assert.Equal(t, StateOpening, sm.GetPreviousState())
	assert.False(t, sm.IsOpen())
}

func TestStateMachineFillFlow(t *testing.T) {
	sm := NewStateMachine()

	require.NoError(t, sm.Transition(StateHolding, CondOrderFilled))
	assert.Equal(t, StateHolding, sm.GetCurrentState())
	assert.Equal(t, StateOpening, sm.GetPreviousState())
	assert.True(t, sm.IsOpen())

	require.NoError(t, sm.Transition(StateClosing, CondCloseRequest))
	assert.True(t, sm.IsOpen(), "closing still counts against open-position limits")

	require.NoError(t, sm.Transition(StateClosed, CondCloseFilled))
	assert.False(t, sm.IsOpen())
	assert.Equal(t, StateClosed, sm.GetCurrentState())
}

func TestStateMachineRejectedSellReopens(t *testing.T) {
	sm := NewStateMachineFromState(StateHolding)
	require.NoError(t, sm.Transition(StateClosing, CondCloseRequest))
	require.NoError(t, sm.Transition(StateHolding, CondCloseFailed))
	assert.Equal(t, StateHolding, sm.GetCurrentState(), "rejected close leaves position open")
}

func TestStateMachineOrderFailurePath(t *testing.T) {
	sm := NewStateMachine()
	require.NoError(t, sm.Transition(StateError, CondOrderFailed))
	assert.False(t, sm.IsOpen())

	require.NoError(t, sm.Transition(StateClosed, CondManualClose))
	assert.Equal(t, StateClosed, sm.GetCurrentState())
}

func TestStateMachineOrderTimeoutGoesDirectlyToClosed(t *testing.T) {
	sm := NewStateMachine()
	require.NoError(t, sm.Transition(StateClosed, CondOrderTimeout))
	assert.Equal(t, StateClosed, sm.GetCurrentState())
}

func TestStateMachineInvalidTransitionReturnsErrorAndLeavesStateUnchanged(t *testing.T) {
	sm := NewStateMachine()

	err := sm.Transition(StateClosed, CondCloseFilled)
	require.Error(t, err)
	assert.Equal(t, StateOpening, sm.GetCurrentState(), "state unchanged after rejected transition")
}

func TestStateMachineIsValidTransitionDoesNotMutate(t *testing.T) {
	sm := NewStateMachine()
	assert.True(t, sm.IsValidTransition(StateHolding, CondOrderFilled))
	assert.False(t, sm.IsValidTransition(StateClosed, CondCloseFilled))
	assert.Equal(t, StateOpening, sm.GetCurrentState())
}

func TestStateMachineTransitionCount(t *testing.T) {
	sm := NewStateMachine()
	assert.Equal(t, 1, sm.GetTransitionCount(StateOpening))
	assert.Equal(t, 0, sm.GetTransitionCount(StateHolding))

	require.NoError(t, sm.Transition(StateHolding, CondOrderFilled))
	require.NoError(t, sm.Transition(StateClosing, CondCloseRequest))
	require.NoError(t, sm.Transition(StateHolding, CondCloseFailed))
	assert.Equal(t, 2, sm.GetTransitionCount(StateHolding))
}

func TestStateMachineCopyIsIndependent(t *testing.T) {
	sm := NewStateMachine()
	require.NoError(t, sm.Transition(StateHolding, CondOrderFilled))

	cp := sm.Copy()
	require.NoError(t, cp.Transition(StateClosing, CondCloseRequest))

	assert.Equal(t, StateHolding, sm.GetCurrentState(), "original unaffected by copy's transition")
	assert.Equal(t, StateClosing, cp.GetCurrentState())
}

func TestStateMachineCopyNilReceiver(t *testing.T) {
	var sm *StateMachine
	assert.Nil(t, sm.Copy())
}
