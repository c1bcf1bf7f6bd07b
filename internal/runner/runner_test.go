package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDryRunSkipsMutatingCommand(t *testing.T) {
	r := New(true)
	result, err := r.Run(context.Background(), []string{"false"}, Mutating())
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
}

func TestDryRunStillRunsNonMutatingCommand(t *testing.T) {
	r := New(true)
	result, err := r.Run(context.Background(), []string{"false"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ExitCode)
}

func TestRunCapturesOutput(t *testing.T) {
	r := New(false)
	result, err := r.Run(context.Background(), []string{"echo", "hello"}, WithCapture())
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hello\n", result.Stdout)
}

func TestCheckFailsOnNonZeroExit(t *testing.T) {
	r := New(false)
	_, err := r.Check(context.Background(), []string{"false"})
	assert.Error(t, err)
}

func TestCheckSucceedsOnZeroExit(t *testing.T) {
	r := New(false)
	_, err := r.Check(context.Background(), []string{"true"})
	assert.NoError(t, err)
}
