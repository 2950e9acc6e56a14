package secret

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reveal(t *testing.T, s *Secret) string {
	t.Helper()

	var out string
	require.NoError(t, s.Reveal(func(b []byte) error {
		out = string(b)
		return nil
	}))

	return out
}

func TestNew_Nil(t *testing.T) {
	s := New(nil)

	assert.True(t, s.IsSealed())
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, reveal(t, s))
}

func TestFromString(t *testing.T) {
	s := FromString("pässwörd")

	assert.True(t, s.IsSealed())
	assert.Equal(t, 8, s.Len())
	assert.Equal(t, "pässwörd", reveal(t, s))
}

func TestAppendRune_AfterSealFails(t *testing.T) {
	s := FromString("abc")

	err := s.AppendRune('d')
	require.ErrorIs(t, err, ErrImmutable)
	assert.Equal(t, "abc", reveal(t, s))
}

func TestAppendRune_BeforeSeal(t *testing.T) {
	s := &Secret{}

	for _, r := range "key-123" {
		require.NoError(t, s.AppendRune(r))
	}

	assert.False(t, s.IsSealed())
	s.Seal()
	s.Seal()
	assert.True(t, s.IsSealed())
	assert.Equal(t, "key-123", reveal(t, s))
}

func TestReveal_PropagatesCallbackError(t *testing.T) {
	s := FromString("x")
	boom := errors.New("boom")

	err := s.Reveal(func([]byte) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestDestroy_ZeroesBuffer(t *testing.T) {
	s := FromString("topsecret")

	var held []byte
	require.NoError(t, s.Reveal(func(b []byte) error {
		held = b[:len(b):len(b)]
		return nil
	}))

	s.Destroy()

	assert.Equal(t, make([]byte, len("topsecret")), held)
	assert.Equal(t, 0, s.Len())
	assert.ErrorIs(t, s.Reveal(func([]byte) error { return nil }), ErrDestroyed)
	assert.ErrorIs(t, s.AppendRune('a'), ErrImmutable)
}

func TestLen_NilSecret(t *testing.T) {
	var s *Secret
	assert.Equal(t, 0, s.Len())
}

func TestFormatting_NeverLeaks(t *testing.T) {
	s := FromString("hunter2")

	assert.Equal(t, redacted, fmt.Sprint(s))
	assert.Equal(t, redacted, fmt.Sprintf("%v", s))
	assert.Equal(t, redacted, fmt.Sprintf("%#v", s))
	assert.NotContains(t, fmt.Sprintf("%s", s), "hunter2")
}
