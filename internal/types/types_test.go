package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorMessage(t *testing.T) {
	err := NewAppError(ErrDownload, "download failed", nil)
	assert.Equal(t, "[DOWNLOAD_ERROR] download failed", err.Error())

	err = NewAppErrorWithDetails(ErrDownload, "download failed", "status 404", nil)
	assert.Equal(t, "[DOWNLOAD_ERROR] download failed: status 404", err.Error())
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewAppError(ErrNetwork, "request failed", cause)
	assert.ErrorIs(t, err, cause)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrExtract, CodeOf(NewAppError(ErrExtract, "boom", nil)))
	assert.Equal(t, ErrInternal, CodeOf(errors.New("plain error")))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(NewAppError(ErrNetwork, "x", nil)))
	assert.True(t, IsTransient(NewAppError(ErrAPIRateLimit, "x", nil)))
	assert.True(t, IsTransient(NewAppError(ErrTransientCollaborator, "x", nil)))

	assert.False(t, IsTransient(NewAppError(ErrAPICall, "x", nil)))
	assert.False(t, IsTransient(NewAppError(ErrReconstruction, "x", nil)))
	assert.False(t, IsTransient(errors.New("plain")))
}

func TestUnitStateTerminal(t *testing.T) {
	assert.True(t, StateDone.Terminal())
	assert.True(t, StateFailed.Terminal())
	for _, s := range []UnitState{StatePending, StateMasked, StateTranslated, StateVerifying, StateVerified, StateRepairing, StateUnmasked} {
		assert.False(t, s.Terminal(), string(s))
	}
}
