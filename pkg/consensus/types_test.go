package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddValidatorTogglingActiveKeepsActiveCountInSync(t *testing.T) {
	vs := NewValidatorSet()
	_, v := newValidator(t, 1)
	vs.AddValidator(v)
	require.Equal(t, 1, vs.ActiveCount())

	v.Active = false
	vs.AddValidator(v)
	require.Equal(t, 0, vs.ActiveCount())
	require.False(t, vs.IsValidator(v.NodeID))

	v.Active = true
	vs.AddValidator(v)
	require.Equal(t, 1, vs.ActiveCount())
	require.True(t, vs.IsValidator(v.NodeID))
}

func TestAddValidatorReplacingWithSameActiveStateLeavesCountUnchanged(t *testing.T) {
	vs := NewValidatorSet()
	_, v := newValidator(t, 1)
	vs.AddValidator(v)
	v.Stake = 5
	vs.AddValidator(v)
	require.Equal(t, 1, vs.ActiveCount())
}
