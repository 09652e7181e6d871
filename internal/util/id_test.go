package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShareToken(t *testing.T) {
	first, err := NewShareToken()
	require.NoError(t, err)
	second, err := NewShareToken()
	require.NoError(t, err)

	assert.Len(t, first, 64)
	assert.True(t, ValidShareToken(first))
	assert.NotEqual(t, first, second)
}

func TestValidShareToken(t *testing.T) {
	cases := map[string]bool{
		"":                        false,
		"abc":                     false,
		"../../etc/passwd":        false,
		string(make([]byte, 64)):  false,
		"0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef": true,
		"0123456789ABCDEF0123456789abcdef0123456789abcdef0123456789abcdef": false,
	}
	for token, want := range cases {
		assert.Equal(t, want, ValidShareToken(token), "token %q", token)
	}
}
