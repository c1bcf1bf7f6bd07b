package clierr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodeNil(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
}

func TestExitCodeCancelled(t *testing.T) {
	assert.Equal(t, 130, ExitCode(ErrCancelled))
}

func TestExitCodeWrappedCancelled(t *testing.T) {
	wrapped := errors.Join(ErrCancelled)
	assert.Equal(t, 130, ExitCode(wrapped))
}

func TestExitCodeOrdinaryError(t *testing.T) {
	assert.Equal(t, 1, ExitCode(New("boom: %s", "x")))
}
