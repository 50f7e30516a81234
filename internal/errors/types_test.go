package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	testCases := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "not found",
			err:      FileNotFound("/a/b"),
			expected: "[FileNotFound] file not found /a/b",
		},
		{
			name:     "permissions with reason",
			err:      NoPermissions("/ro", "read-only"),
			expected: "[NoPermissions] no permissions (read-only) /ro",
		},
		{
			name:     "config with cause",
			err:      NewConfigError("bad_port", "invalid port", fmt.Errorf("boom")),
			expected: "[bad_port] invalid port: boom",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.err.Error())
		})
	}
}

func TestSentinelComparison(t *testing.T) {
	err := fmt.Errorf("writing: %w", FileExists("/index.html"))

	assert.True(t, errors.Is(err, ErrFileExists))
	assert.False(t, errors.Is(err, ErrFileNotFound))
	assert.Equal(t, CodeFileExists, CodeOf(err))
	assert.True(t, IsFileSystemError(err))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(fmt.Errorf("plain")))
	assert.False(t, IsFileSystemError(fmt.Errorf("plain")))
}

func TestUnwrapAndContext(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := NewInternalError("compose", "compose failed", cause).WithContext("instance", "abc")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "abc", err.Context["instance"])
}

func TestSameCodeDifferentTypeDoesNotMatch(t *testing.T) {
	err := NewValidationError(CodeFileNotFound, "looks similar")
	assert.False(t, errors.Is(err, ErrFileNotFound))
}
