package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize_ValidInputs(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"0", 0},
		{"", 0},
		{"1024", 1024},
		{"1KB", 1000},
		{"1KiB", 1024},
		{"256MiB", 268_435_456},
		{"1GB", 1_000_000_000},
		{"1GiB", 1_073_741_824},
		{"1.5 KiB", 1536},
		{"1TB", 1_000_000_000_000},
		{"100B", 100},
		{"4mib", 4_194_304},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseSize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestParseSize_InvalidInputs(t *testing.T) {
	for _, input := range []string{"abc", "MB", "-1", "-2MB"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseSize(input)
			assert.Error(t, err)
		})
	}
}
