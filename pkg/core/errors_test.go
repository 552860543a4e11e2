package core_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/engram-ai/engram-go/pkg/core"
)

func TestEngineErrorWrapsAndFormats(t *testing.T) {
	err := core.NewEngineError("Ingest", core.ErrInvalidInput)

	assert.ErrorIs(t, err, core.ErrInvalidInput)
	assert.Equal(t, "engram: Ingest: invalid input", err.Error())

	var engineErr *core.EngineError
	assert.True(t, errors.As(err, &engineErr))
	assert.Equal(t, "Ingest", engineErr.Op)
}

func TestNewEngineErrorNilPassthrough(t *testing.T) {
	assert.NoError(t, core.NewEngineError("Close", nil))
}
