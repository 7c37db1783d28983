package capability

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	// SessionCodePrefix identifies collaboration session access codes.
	SessionCodePrefix = "sess_"
	// ShareKeyPrefix identifies project share keys.
	ShareKeyPrefix = "share_"
	// CodeLength is the number of random bytes per code (32 bytes = 256 bits,
	// collision probability negligible up to the birthday bound).
	CodeLength = 32
)

// CodeGenerator produces opaque, collision-resistant access codes.
// Format: <prefix><base64url(32 random bytes)>.
type CodeGenerator struct {
	prefix string
}

// NewCodeGenerator creates a generator for the given prefix.
func NewCodeGenerator(prefix string) *CodeGenerator {
	return &CodeGenerator{prefix: prefix}
}

// NewSessionCodeGenerator creates a generator for session access codes.
func NewSessionCodeGenerator() *CodeGenerator {
	return NewCodeGenerator(SessionCodePrefix)
}

// NewShareKeyGenerator creates a generator for share keys.
func NewShareKeyGenerator() *CodeGenerator {
	return NewCodeGenerator(ShareKeyPrefix)
}

// Generate creates a fresh opaque code.
func (g *CodeGenerator) Generate() (string, error) {
	randomBytes := make([]byte, CodeLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return g.prefix + base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// ValidateFormat checks that a presented code has this generator's prefix
// and a valid base64url payload. It says nothing about whether the code
// resolves to a record.
func (g *CodeGenerator) ValidateFormat(code string) error {
	if !strings.HasPrefix(code, g.prefix) {
		return Errorf(KindValidationInput, "code must start with %q", g.prefix)
	}
	encoded := strings.TrimPrefix(code, g.prefix)
	if encoded == "" {
		return NewError(KindValidationInput, "code is too short")
	}
	if _, err := base64.RawURLEncoding.DecodeString(encoded); err != nil {
		return NewError(KindValidationInput, "invalid code encoding")
	}
	return nil
}

// DisplayPrefix returns the loggable head of a code (prefix plus the first
// 8 payload characters). Full codes never appear in logs or audit records.
func DisplayPrefix(code string) string {
	for _, p := range []string{SessionCodePrefix, ShareKeyPrefix} {
		if strings.HasPrefix(code, p) {
			payload := strings.TrimPrefix(code, p)
			if len(payload) >= 8 {
				return p + payload[:8]
			}
			return code
		}
	}
	if len(code) > 8 {
		return code[:8]
	}
	return code
}

// KindForCode maps a presented opaque code to the authority that can
// resolve it, based on its prefix.
func KindForCode(code string) (TokenKind, bool) {
	switch {
	case strings.HasPrefix(code, SessionCodePrefix):
		return KindSession, true
	case strings.HasPrefix(code, ShareKeyPrefix):
		return KindShare, true
	default:
		return "", false
	}
}
