package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_Format(t *testing.T) {
	cause := stderrors.New("connection refused")

	assert.Equal(t, "[BAD_REQUEST] course_id is required", New(ErrCodeBadRequest, "course_id is required").Error())
	assert.Equal(t, "[DATABASE_ERROR] insert failed: connection refused", Wrap(ErrCodeDatabaseError, "insert failed", cause).Error())
	assert.ErrorIs(t, Wrap(ErrCodeDatabaseError, "insert failed", cause), cause)
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("verify: %w", New(ErrCodePaymentNotFound, "payment not found"))

	require.Equal(t, ErrCodePaymentNotFound, CodeOf(wrapped))
	require.True(t, Is(wrapped, ErrCodePaymentNotFound))
	require.False(t, Is(nil, ErrCodePaymentNotFound))
	require.Equal(t, ErrCodeUnknownError, CodeOf(stderrors.New("plain")))
	require.Equal(t, "payment not found", Message(wrapped))
	require.Equal(t, "internal error", Message(stderrors.New("plain")))
}

func TestIsBusinessError(t *testing.T) {
	var tests = []struct {
		code ErrorCode
		want bool
	}{
		{ErrCodeUnauthorized, true},
		{ErrCodeCourseNotFound, true},
		{ErrCodePaymentVerificationFailed, true},
		{ErrCodeConfigurationError, false},
		{ErrCodeGatewayAuthError, false},
		{ErrCodeDatabaseError, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, IsBusinessError(New(tt.code, "x")))
		})
	}
}
