package otp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Length(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		wantLen int
	}{
		{name: "default on zero", length: 0, wantLen: DefaultLength},
		{name: "default on negative", length: -3, wantLen: DefaultLength},
		{name: "four digits", length: 4, wantLen: 4},
		{name: "six digits", length: 6, wantLen: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := New(tt.length)
			require.NoError(t, err)
			assert.Len(t, code, tt.wantLen)

			for _, r := range code {
				assert.True(t, r >= '0' && r <= '9', "code must be numeric, got %q", code)
			}
		})
	}
}

func TestNew_NotConstant(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		code, err := New(6)
		require.NoError(t, err)
		seen[code] = struct{}{}
	}

	// 50 draws of a 6-digit code collide with negligible probability
	assert.Greater(t, len(seen), 1)
}
