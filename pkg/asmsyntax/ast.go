package asmsyntax

// Program is the parsed form of a full assembly source file.
type Program struct {
	Lines []*Line
}

// Line is one logical source line: an optional label, and at most one of
// a Directive or an Instruction. A label-only line has both nil; blank and
// comment-only lines produce no Line at all.
type Line struct {
	Number      int
	Raw         string
	Label       string
	Directive   *Directive
	Instruction *Instruction
}

// Directive is a parsed assembler directive, e.g. ".word 1, 2, label+4".
// Numeric/expression arguments go in Args; string-literal arguments (for
// ".ascii"/".asciiz"-style directives) go in Strings, in the order each
// kind of argument was encountered.
type Directive struct {
	Name    string
	Args    []Expr
	Strings []string
}

// Instruction is a parsed mnemonic plus its operand list, e.g.
// "ADDI x1, x2, -1".
type Instruction struct {
	Mnemonic string
	Operands []Operand
}

// OperandKind classifies a parsed operand before it is matched against an
// ISA instruction's field kinds.
type OperandKind string

const (
	OperandRegister OperandKind = "register"
	OperandImmediate OperandKind = "immediate"
	OperandMemory    OperandKind = "memory"
)

// Operand is one operand of an instruction. Exactly one of Register,
// Value (for Immediate), or Offset+Base (for Memory) is meaningful,
// selected by Kind.
type Operand struct {
	Kind     OperandKind
	Register string
	Value    Expr
	Offset   Expr
	Base     string
}
