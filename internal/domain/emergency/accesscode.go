package emergency

import (
	"crypto/rand"
	"strings"

	"github.com/google/uuid"
)

const (
	AccessCodeLength   = 6
	accessCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// CodeGenerator produces access codes. Tests swap in deterministic ones.
type CodeGenerator func() string

// NewAccessCode returns a random token over [A-Z0-9]. Bytes at or above the
// largest multiple of the alphabet size are discarded so every symbol is
// equally likely.
func NewAccessCode() string {
	const limit = 256 - 256%len(accessCodeAlphabet)
	var sb strings.Builder
	sb.Grow(AccessCodeLength)
	buf := make([]byte, AccessCodeLength*2)
	for sb.Len() < AccessCodeLength {
		// crypto/rand.Read does not return errors since Go 1.24.
		_, _ = rand.Read(buf)
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			sb.WriteByte(accessCodeAlphabet[int(b)%len(accessCodeAlphabet)])
			if sb.Len() == AccessCodeLength {
				break
			}
		}
	}
	return sb.String()
}

// NormalizeAccessCode upper-cases and trims operator input.
func NormalizeAccessCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// newCaseID returns a time-ordered UUIDv7, falling back to v4 if the
// clock-sequence read fails.
func newCaseID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
