// Package container reads and writes the ISAX binary wrapper: a
// self-describing header carrying entry point, code/data section bounds,
// and (v2 only) an embedded symbol table, wrapped around an assembled
// code+data image so a disassembler can recover structure a bare byte
// stream would lose.
package container

import "github.com/pkg/errors"

var (
	// ErrContainerMalformed is returned when a buffer claims to be an ISAX
	// (or legacy "ISA\x01") container but its header doesn't fit, or its
	// declared section sizes run past the end of the buffer.
	ErrContainerMalformed = errors.New("malformed container")
	// ErrContainerVersionUnsupported is returned for a recognized magic
	// whose version field names a layout this package doesn't implement.
	ErrContainerVersionUnsupported = errors.New("unsupported container version")
)
