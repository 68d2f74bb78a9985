package disassemble

import "github.com/pkg/errors"

var (
	// ErrNoMatch is returned by Decode when no instruction's fingerprint
	// matches a word; the caller decides whether that means data, an
	// unknown opcode, or the end of a variable-length stream.
	ErrNoMatch = errors.New("no instruction fingerprint matches this word")
)
