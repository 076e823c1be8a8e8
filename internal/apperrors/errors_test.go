package apperrors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"not found", NewNotFoundError("record", ""), ErrNotFound, true},
		{"validation", NewValidationError("query", "query is required"), ErrValidation, true},
		{"conflict", NewConflictError("already rejected"), ErrConflict, true},
		{"transient wrapped", fmt.Errorf("embed: %w", NewTransientError("", time.Second, nil)), ErrTransient, true},
		{"data", NewDataError("contract_value", ""), ErrData, true},
		{"configuration", NewConfigurationError("weights must sum to 1"), ErrConfiguration, true},
		{"consistency", NewConsistencyError(""), ErrConsistency, true},
		{"different classes", NewDataError("x", ""), ErrConfiguration, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestTransientError(t *testing.T) {
	cause := errors.New("deadline exceeded")
	err := NewTransientError("embedding backend busy", 2*time.Second, cause)

	assert.Equal(t, "embedding backend busy: deadline exceeded", err.Error())
	assert.ErrorIs(t, err, cause)

	var te *TransientError
	assert.True(t, errors.As(fmt.Errorf("rank: %w", err), &te))
	assert.Equal(t, 2*time.Second, te.RetryAfter)
}

func TestDefaultMessages(t *testing.T) {
	assert.Equal(t, "record not found", NewNotFoundError("record", "").Error())
	assert.Equal(t, "malformed data in field: contract_value", NewDataError("contract_value", "").Error())
	assert.Equal(t, "temporarily unavailable, try again", (&TransientError{}).Error())
	assert.Equal(t, "superseded by a newer generation", NewConsistencyError("").Error())
}
