package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateBookingCodeShape(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := GenerateBookingCode()
		require.NoError(t, err)
		assert.Len(t, code, codeLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(codeAlphabet, r), "unexpected character %q in %s", r, code)
		}
	}
}

func TestGenerateBookingCodeVaries(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GenerateBookingCode()
		require.NoError(t, err)
		seen[code] = true
	}
	// 36^6 values; 50 draws colliding down to a single code would mean the
	// generator is broken, not unlucky.
	assert.Greater(t, len(seen), 1)
}
