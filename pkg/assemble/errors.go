package assemble

import "github.com/pkg/errors"

// Sentinel errors, one per class of assembly failure named in the
// external error taxonomy. Failures detected in this package wrap one of
// these via errors.Wrapf so callers can classify them with errors.Is while
// still getting a source-line message; errors from pkg/asmsyntax and
// pkg/symtab are passed through wrapping those packages' own sentinels.
var (
	ErrUnknownMnemonic        = errors.New("unknown mnemonic")
	ErrUnknownDirective       = errors.New("unknown directive")
	ErrOperandArity           = errors.New("wrong number of operands")
	ErrOperandType            = errors.New("operand has the wrong kind for this field")
	ErrRegisterUnknown        = errors.New("unknown register")
	ErrImmediateOutOfRange    = errors.New("immediate value out of range for field")
	ErrAddressOutOfRange      = errors.New("address out of range for field")
	ErrPseudoExpansionOverflow = errors.New("pseudo-instruction expansion could not fit target value after redistribution")
	ErrPseudoExpansionInexact  = errors.New("pseudo-instruction expansion template references a field no real instruction declares")
	ErrDirectiveArgument      = errors.New("invalid directive argument")
)
