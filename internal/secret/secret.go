// Package secret holds passwords and service principal keys in a byte buffer
// that is sealed after construction and zeroed when released.
package secret

import (
	"errors"
	"runtime"
	"sync"
	"unicode/utf8"
)

// ErrImmutable is returned when a sealed Secret is modified.
var ErrImmutable = errors.New("secret: instance is read-only")

// ErrDestroyed is returned when a destroyed Secret is revealed.
var ErrDestroyed = errors.New("secret: instance has been destroyed")

const redacted = "[REDACTED]"

// Secret is a write-once byte buffer. Characters are appended one at a time,
// then Seal makes the buffer read-only. The contents leave the buffer only
// through Reveal. The buffer is zeroed by Destroy or, failing that, when the
// Secret becomes unreachable.
type Secret struct {
	mu        sync.Mutex
	buf       []byte
	runes     int
	sealed    bool
	destroyed bool
}

// New wraps plaintext into a sealed Secret. A nil plaintext yields an empty
// sealed Secret.
func New(plaintext *string) *Secret {
	s := &Secret{}

	if plaintext != nil {
		for _, r := range *plaintext {
			// Cannot fail: s is not sealed yet.
			_ = s.AppendRune(r)
		}
	}

	s.Seal()

	return s
}

// FromString wraps a plaintext string into a sealed Secret.
func FromString(plaintext string) *Secret {
	return New(&plaintext)
}

// AppendRune adds one character to the buffer.
func (s *Secret) AppendRune(r rune) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return ErrImmutable
	}

	// Grow by copying so no stale plaintext is left behind in the old array.
	need := len(s.buf) + utf8.RuneLen(r)
	if need > cap(s.buf) {
		grown := make([]byte, len(s.buf), 2*need)
		copy(grown, s.buf)
		clear(s.buf)
		s.buf = grown
	}

	s.buf = utf8.AppendRune(s.buf, r)
	s.runes++

	return nil
}

// Seal makes the Secret read-only. Sealing twice is a no-op.
func (s *Secret) Seal() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return
	}

	s.sealed = true

	// buf is not reallocated after sealing, so the cleanup sees the final
	// backing array.
	runtime.AddCleanup(s, func(b []byte) { clear(b) }, s.buf)
}

// IsSealed reports whether the Secret is read-only.
func (s *Secret) IsSealed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sealed
}

// Len returns the number of characters in the Secret. A nil Secret has
// length zero.
func (s *Secret) Len() int {
	if s == nil {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.runes
}

// Reveal calls fn with the plaintext bytes. fn must not retain the slice.
func (s *Secret) Reveal(fn func(plaintext []byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return ErrDestroyed
	}

	return fn(s.buf)
}

// Destroy zeroes the buffer. The Secret cannot be revealed afterwards.
// Destroying a nil Secret is a no-op.
func (s *Secret) Destroy() {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.buf)
	s.buf = s.buf[:0]
	s.runes = 0
	s.sealed = true
	s.destroyed = true
}

// String never returns the plaintext.
func (s *Secret) String() string { return redacted }

// GoString never returns the plaintext.
func (s *Secret) GoString() string { return redacted }
