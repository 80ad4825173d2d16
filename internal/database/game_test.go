package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateGameCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code, err := GenerateGameCode()
		require.NoError(t, err)
		assert.Len(t, code, codeLength)
		for _, c := range code {
			assert.True(t, strings.ContainsRune(codeAlphabet, c), "unexpected character %q in code %s", c, code)
		}
		seen[code] = true
	}
	// 100 draws from a 31^6 space should never collide.
	assert.Greater(t, len(seen), 95)
}
