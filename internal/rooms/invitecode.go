// Package rooms implements room lifecycle, invite-coded membership, and the
// role-assignment rules for the PomoLink platform.
package rooms

import (
	"context"
	"crypto/rand"
	"math/big"

	"pomolink/internal/types"
)

// codeAlphabet is the 33-glyph invite-code alphabet: uppercase letters minus
// the ambiguous O and I, digits minus 0. Codes are meant to be read aloud and
// typed from a screen share, so lookalike glyphs are excluded.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ123456789"

// DefaultCodeLength is the standard invite code length.
const DefaultCodeLength = 8

const (
	// maxAttempts bounds collision retries at the default length before the
	// generator widens the code.
	maxAttempts = 10

	// widenedAttempts bounds retries at the widened length before giving up.
	widenedAttempts = 5

	// widenBy is how many characters are added when the default keyspace
	// keeps colliding.
	widenBy = 2
)

// CodeChecker reports whether an invite code is already taken.
type CodeChecker interface {
	InviteCodeExists(ctx context.Context, code string) (bool, error)
}

// InviteCodeGenerator draws unique room invite codes.
//
// Collisions at 33^8 combinations are vanishingly rare, but the retry is
// bounded anyway: 10 attempts at length 8, then 5 attempts at length 10, then
// a terminal internal_invite_code_exhausted error instead of retrying forever.
type InviteCodeGenerator struct {
	checker CodeChecker
	length  int
}

// NewInviteCodeGenerator creates a generator with the default code length.
func NewInviteCodeGenerator(checker CodeChecker) *InviteCodeGenerator {
	return &InviteCodeGenerator{checker: checker, length: DefaultCodeLength}
}

// Generate returns an invite code not currently present in the rooms table.
func (g *InviteCodeGenerator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		code, err := randomCode(g.length)
		if err != nil {
			return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate invite code", err)
		}
		exists, err := g.checker.InviteCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}

	// The default keyspace is saturated enough to collide repeatedly;
	// widen the code before failing.
	for attempt := 0; attempt < widenedAttempts; attempt++ {
		code, err := randomCode(g.length + widenBy)
		if err != nil {
			return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate invite code", err)
		}
		exists, err := g.checker.InviteCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}

	return "", types.NewAppError(types.ErrCodeInternalCodeExhausted,
		"could not find an unused invite code", nil)
}

// randomCode draws length characters uniformly from codeAlphabet using
// crypto/rand.
func randomCode(length int) (string, error) {
	alphabetLen := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
