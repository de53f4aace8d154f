package random

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringUsesAlphabet(t *testing.T) {
	r := New()
	const alphabet = "AB23"
	for range 100 {
		s := r.String(4, alphabet)
		require.Len(t, s, 4)
		for _, ch := range s {
			assert.True(t, strings.ContainsRune(alphabet, ch), "unexpected %q", ch)
		}
	}
}

func TestIntnBounds(t *testing.T) {
	r := New()
	assert.Equal(t, 0, r.Intn(0))
	for range 100 {
		v := r.Intn(3)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 3)
	}
}

func TestIDIsUUID(t *testing.T) {
	_, err := uuid.Parse(New().ID())
	assert.NoError(t, err)
}

func TestTokenIsUniqueAndURLSafe(t *testing.T) {
	r := New()
	a, err := r.Token()
	require.NoError(t, err)
	b, err := r.Token()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, CredentialBytes)
}
