package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutcomeFailedOnAnyFailure(t *testing.T) {
	o := Outcome{RequestedCount: 3, CompletedCount: 2, FailedCount: 1}
	require.True(t, o.Failed())
}

func TestOutcomeFailedWhenEverythingSkipped(t *testing.T) {
	o := Outcome{RequestedCount: 4, CompletedCount: 0, SkippedCount: 4}
	require.True(t, o.Failed())
}

func TestOutcomeSucceedsWhenSomeCompleted(t *testing.T) {
	o := Outcome{RequestedCount: 4, CompletedCount: 1, SkippedCount: 3}
	require.False(t, o.Failed())
}

func TestOutcomeSucceedsWithNothingRequested(t *testing.T) {
	o := Outcome{RequestedCount: 0}
	require.False(t, o.Failed())
}
