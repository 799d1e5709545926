package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainErrorWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := ErrUnavailable(CodeCollaboratorDown, "llm unreachable").WithCause(cause)

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "llm unreachable")
	assert.Contains(t, err.Error(), "connection refused")
	assert.True(t, IsRetryable(err))
	assert.Equal(t, ErrCatUnavailable, GetCategory(err))
}

func TestDomainErrorIs(t *testing.T) {
	a := ErrValidation(CodeEmptyObjective, "empty")
	b := ErrValidation(CodeEmptyObjective, "different message")
	c := ErrValidation(CodeMissingHeader, "empty")

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestCategoryOfPlainError(t *testing.T) {
	err := fmt.Errorf("plain: %w", errors.New("inner"))
	assert.Equal(t, ErrCatInternal, GetCategory(err))
	assert.False(t, IsRetryable(err))
}

func TestWithDetail(t *testing.T) {
	err := ErrExecution(CodePhaseFailed, "phase failed").
		WithDetail("phase", "debugging").
		WithDetail("retry", 2)
	assert.Equal(t, "debugging", err.Details["phase"])
	assert.Equal(t, 2, err.Details["retry"])
}
