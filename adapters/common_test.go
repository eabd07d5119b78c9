package adapters

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionConstants(t *testing.T) {
	assert.Equal(t, int64(-1), AnyVersion)
	assert.Equal(t, int64(0), NoStream)
	assert.Equal(t, int64(-2), StreamExists)
}

func TestExtractCategory(t *testing.T) {
	tests := []struct {
		name     string
		streamID string
		expected string
	}{
		{name: "standard format", streamID: "Account-123", expected: "Account"},
		{name: "uuid suffix splits on first hyphen", streamID: "Account-6f1c2a9e-47aa-4b1e-9d1f-0a4b7c1e2d3f", expected: "Account"},
		{name: "no hyphen returns entire ID", streamID: "SingleWord", expected: "SingleWord"},
		{name: "empty string returns empty", streamID: "", expected: ""},
		{name: "starts with hyphen returns empty", streamID: "-Leading", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractCategory(tt.streamID))
		})
	}
}

func TestConcurrencyError(t *testing.T) {
	err := NewConcurrencyError("Account-1", 3, 5)

	assert.Equal(t, "Account-1", err.StreamID)
	assert.Equal(t, int64(3), err.ExpectedVersion)
	assert.Equal(t, int64(5), err.ActualVersion)
	assert.Contains(t, err.Error(), "expected version 3, got 5")
	assert.True(t, errors.Is(err, ErrConcurrencyConflict))
	assert.False(t, errors.Is(err, ErrStreamNotFound))

	var target *ConcurrencyError
	require.True(t, errors.As(err, &target))
	assert.Equal(t, int64(5), target.ActualVersion)
}

func TestStreamNotFoundError(t *testing.T) {
	err := NewStreamNotFoundError("Account-1")

	assert.Equal(t, `kestrel: stream "Account-1" not found`, err.Error())
	assert.True(t, errors.Is(err, ErrStreamNotFound))
	assert.Equal(t, ErrStreamNotFound, err.Unwrap())
}

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		name     string
		expected int64
		current  int64
		exists   bool
		wantErr  error
	}{
		{name: "any version on missing stream", expected: AnyVersion, current: 0, exists: false},
		{name: "any version on existing stream", expected: AnyVersion, current: 7, exists: true},
		{name: "no stream when missing", expected: NoStream, current: 0, exists: false},
		{name: "no stream when exists", expected: NoStream, current: 2, exists: true, wantErr: ErrConcurrencyConflict},
		{name: "stream exists when exists", expected: StreamExists, current: 2, exists: true},
		{name: "stream exists when missing", expected: StreamExists, current: 0, exists: false, wantErr: ErrStreamNotFound},
		{name: "exact version matches", expected: 4, current: 4, exists: true},
		{name: "exact version mismatch", expected: 3, current: 4, exists: true, wantErr: ErrConcurrencyConflict},
		{name: "negative version is invalid", expected: -5, current: 0, exists: false, wantErr: ErrInvalidVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckVersion("Account-1", tt.expected, tt.current, tt.exists)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDefaultLimit(t *testing.T) {
	assert.Equal(t, 100, DefaultLimit(0, 100))
	assert.Equal(t, 100, DefaultLimit(-1, 100))
	assert.Equal(t, 25, DefaultLimit(25, 100))
}
