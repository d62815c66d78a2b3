package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_ExtractsClassifiedKind(t *testing.T) {
	err := NewError(KindConflict, "version mismatch", nil)

	assert.Equal(t, KindConflict, KindOf(err))
}

func TestKindOf_UnwrapsWrappedError(t *testing.T) {
	inner := NewError(KindNotFound, "board missing", nil)
	wrapped := fmt.Errorf("while loading: %w", inner)

	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestKindOf_DefaultsToFatalForUnclassifiedError(t *testing.T) {
	err := errors.New("boom")

	assert.Equal(t, KindFatal, KindOf(err))
}

func TestKindOf_EmptyForNilError(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}

func TestValidationf_FormatsMessage(t *testing.T) {
	err := Validationf("x out of range: %d", 5)

	assert.Equal(t, KindValidation, err.Kind)
	assert.Contains(t, err.Error(), "x out of range: 5")
}

func TestError_UnwrapReturnsCause(t *testing.T) {
	cause := errors.New("root cause")
	err := NewError(KindTransient, "retry failed", cause)

	assert.Equal(t, cause, errors.Unwrap(err))
}
