// Package isa defines the in-memory shape of a declarative instruction set
// architecture description. Nothing in this package hard-codes a specific
// ISA; callers build (or Load) an ISA value and hand it, read-only, to the
// assemble and disassemble packages.
package isa

import (
	"github.com/pkg/errors"

	"github.com/nsarkis/isax/pkg/bitfield"
)

// Endianness selects the byte order used when an instruction word or
// directive-emitted data is serialized to bytes.
type Endianness string

const (
	Little Endianness = "little"
	Big    Endianness = "big"
)

// FieldKind classifies one bit-field of an instruction word.
type FieldKind string

const (
	FieldFixed     FieldKind = "fixed"
	FieldRegister  FieldKind = "register"
	FieldImmediate FieldKind = "immediate"
	FieldAddress   FieldKind = "address"
)

// Register is one entry in an ISA's register file: a canonical name, the
// index used to encode it, and zero or more alternate spellings that
// resolve to the same canonical name.
type Register struct {
	Name     string   `json:"name" yaml:"name"`
	Index    int      `json:"index" yaml:"index"`
	Aliases  []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Category string   `json:"category,omitempty" yaml:"category,omitempty"`
}

// FieldDef describes one bit-field of an instruction word.
type FieldDef struct {
	Name       string    `json:"name" yaml:"name"`
	BitRange   string    `json:"bit_range" yaml:"bit_range"`
	Kind       FieldKind `json:"kind" yaml:"kind"`
	FixedValue uint64    `json:"fixed_value,omitempty" yaml:"fixed_value,omitempty"`
	Signed     bool      `json:"signed,omitempty" yaml:"signed,omitempty"`
	ShiftType  string    `json:"shift_type,omitempty" yaml:"shift_type,omitempty"`
	PCRelative bool      `json:"pc_relative,omitempty" yaml:"pc_relative,omitempty"`

	// Ranges is the parsed form of BitRange, populated by Validate.
	Ranges []bitfield.Range `json:"-" yaml:"-"`
}

// Width returns the total bit width of the field, valid after Validate.
func (f FieldDef) Width() int {
	return bitfield.TotalWidth(f.Ranges)
}

// InstructionDef describes one real (non-pseudo) instruction.
type InstructionDef struct {
	Mnemonic       string     `json:"mnemonic" yaml:"mnemonic"`
	SyntaxTemplate string     `json:"syntax_template" yaml:"syntax_template"`
	Fields         []FieldDef `json:"fields" yaml:"fields"`
	Semantics      string     `json:"semantics,omitempty" yaml:"semantics,omitempty"`
	// Implementation is an opaque per-instruction simulation snippet
	// consumed by an external simulator. The core engine never evaluates
	// it; it is preserved verbatim for round-tripping ISA descriptions.
	Implementation string `json:"implementation,omitempty" yaml:"implementation,omitempty"`
	// LengthBits overrides the ISA's base instruction_size for
	// variable-length ISAs; zero means "use the ISA default".
	LengthBits int `json:"length_bits,omitempty" yaml:"length_bits,omitempty"`

	// Value and Mask are the opcode fingerprint, computed by Validate.
	Value uint64 `json:"-" yaml:"-"`
	Mask  uint64 `json:"-" yaml:"-"`
}

// FieldByName returns the field with the given name, or false if absent.
func (i InstructionDef) FieldByName(name string) (FieldDef, bool) {
	for _, f := range i.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// DisassemblyHintKind names how a pseudo-instruction should be treated
// during disassembly-side coalescing.
type DisassemblyHintKind string

const (
	HintSingle               DisassemblyHintKind = "single"
	HintMultiInstruction     DisassemblyHintKind = "multi_instruction"
	HintAddressReconstruction DisassemblyHintKind = "address_reconstruction"
	HintStackOp              DisassemblyHintKind = "stack_op"
	HintHideOperands         DisassemblyHintKind = "hide_operands"
)

// DisassemblyHint tells the disassembler's pseudo-coalescing pass how to
// recognize and reconstruct a pseudo-instruction from decoded real
// instructions.
type DisassemblyHint struct {
	Kind     DisassemblyHintKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	Disabled bool                `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// ExpansionStep is one real-instruction template within a pseudo
// instruction's expansion, e.g. "AUIPC $rd, $label[15:7]".
type ExpansionStep struct {
	Template string `json:"template" yaml:"template"`
}

// PseudoInstructionDef describes a source-level mnemonic that expands to
// one or more real instructions.
type PseudoInstructionDef struct {
	Mnemonic          string              `json:"mnemonic" yaml:"mnemonic"`
	SyntaxTemplate    string              `json:"syntax_template" yaml:"syntax_template"`
	ExpansionTemplate []ExpansionStep     `json:"expansion_template" yaml:"expansion_template"`
	DisassemblyHint   DisassemblyHint     `json:"disassembly_hint,omitempty" yaml:"disassembly_hint,omitempty"`
}

// DirectiveKind enumerates the directive actions the DirectiveEngine
// understands.
type DirectiveKind string

const (
	DirSetOrigin      DirectiveKind = "set_origin"
	DirEmitWords      DirectiveKind = "emit_words"
	DirEmitBytes      DirectiveKind = "emit_bytes"
	DirEmitString     DirectiveKind = "emit_string"
	DirEmitStringNul  DirectiveKind = "emit_string_nul"
	DirReserveSpace   DirectiveKind = "reserve_space"
	DirAlign          DirectiveKind = "align"
	DirDefineConstant DirectiveKind = "define_constant"
	DirSelectSection  DirectiveKind = "select_section"
	DirDeclareGlobal  DirectiveKind = "declare_global"
	DirFill           DirectiveKind = "fill"
)

// DirectiveDef describes one assembler directive.
type DirectiveDef struct {
	Name          string        `json:"name" yaml:"name"`
	Kind          DirectiveKind `json:"kind" yaml:"kind"`
	ArgumentTypes []string      `json:"argument_types,omitempty" yaml:"argument_types,omitempty"`
	Aliases       []string      `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// Syntax describes the lexical conventions of an ISA's assembly language.
type Syntax struct {
	CommentChars      []string `json:"comment_chars" yaml:"comment_chars"`
	LabelSuffix       string   `json:"label_suffix" yaml:"label_suffix"`
	RegisterPrefix    string   `json:"register_prefix" yaml:"register_prefix"`
	ImmediatePrefix   string   `json:"immediate_prefix" yaml:"immediate_prefix"`
	HexPrefix         string   `json:"hex_prefix" yaml:"hex_prefix"`
	BinPrefix         string   `json:"binary_prefix" yaml:"binary_prefix"`
	OperandSeparators []string `json:"operand_separators" yaml:"operand_separators"`
	CaseSensitive     bool     `json:"case_sensitive" yaml:"case_sensitive"`
	// MemoryShape is a template like "offset(base)" describing how a
	// memory operand's two components are written and parsed.
	MemoryShape string `json:"memory_shape" yaml:"memory_shape"`
}

// MemorySpan is an inclusive [Start, End] address range.
type MemorySpan struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Contains reports whether addr falls within the span.
func (s MemorySpan) Contains(addr int) bool {
	return addr >= s.Start && addr <= s.End
}

// MemoryMap partitions the address space into named spans. The
// ModeArbiter's DataRegions reads it; .section handling does not.
type MemoryMap struct {
	CodeSection      MemorySpan `json:"code_section" yaml:"code_section"`
	DataSection      MemorySpan `json:"data_section" yaml:"data_section"`
	InterruptVectors MemorySpan `json:"interrupt_vectors" yaml:"interrupt_vectors"`
	MMIO             MemorySpan `json:"mmio" yaml:"mmio"`
}

// PCBehavior names the base address the encoder/decoder use when computing
// PC-relative displacements. This must be identical on both sides; it is
// always read from the ISA, never hard-coded.
type PCBehavior struct {
	OffsetForJumps int `json:"offset_for_jumps" yaml:"offset_for_jumps"`
}

// DataDetection tunes the ModeArbiter's compact-binary heuristic.
type DataDetection struct {
	MinConsecutiveForCode int `json:"min_consecutive_for_code" yaml:"min_consecutive_for_code"`
	MaxNopsBeforeData     int `json:"max_nops_before_data" yaml:"max_nops_before_data"`
	UnknownRunThreshold   int `json:"unknown_run_threshold" yaml:"unknown_run_threshold"`
}

// VariableLength describes an ISA whose instruction length varies by
// opcode-field value.
type VariableLength struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// LengthBitsByOpcode maps a textual opcode-field value (as written in
	// the ISA description, e.g. "0b11" or "0x3") to an instruction length
	// in bits.
	LengthBitsByOpcode map[string]int `json:"length_bits_by_opcode,omitempty" yaml:"length_bits_by_opcode,omitempty"`
	// OpcodeField names the field (present in every instruction) whose
	// value selects the length.
	OpcodeField string `json:"opcode_field,omitempty" yaml:"opcode_field,omitempty"`
}

// Constant is an ISA-predefined named constant. It is carried in the
// description only: Assemble does not load these into its symbol table,
// so source expressions cannot refer to them.
type Constant struct {
	Name  string `json:"name" yaml:"name"`
	Value int64  `json:"value" yaml:"value"`
}

// RegisterFormatting and OperandFormatting carry per-ISA rendering rules.
// Format reads OperandFormatting.ImmediateBase; it does not read
// PreferAlias and always prints canonical register names.
type RegisterFormatting struct {
	PreferAlias bool `json:"prefer_alias,omitempty" yaml:"prefer_alias,omitempty"`
}

type OperandFormatting struct {
	ImmediateBase string `json:"immediate_base,omitempty" yaml:"immediate_base,omitempty"` // "hex" or "decimal"
}

// ISA is the complete, immutable description of an instruction set. Build
// one with Load or by hand, call Validate (Load does this automatically),
// then never mutate it again — it is read-only and safely shared across
// concurrent assemble/disassemble calls.
type ISA struct {
	Name              string                          `json:"name" yaml:"name"`
	Version           string                          `json:"version" yaml:"version"`
	WordSize          int                              `json:"word_size" yaml:"word_size"`
	InstructionSize   int                              `json:"instruction_size" yaml:"instruction_size"`
	Endianness        Endianness                       `json:"endianness" yaml:"endianness"`
	AddressBits       int                              `json:"address_bits" yaml:"address_bits"`
	VariableLength    VariableLength                   `json:"variable_length" yaml:"variable_length"`
	Registers         map[string][]Register            `json:"registers" yaml:"registers"`
	RegisterOrder     []string                         `json:"register_order,omitempty" yaml:"register_order,omitempty"`
	Instructions      []InstructionDef                 `json:"instructions" yaml:"instructions"`
	PseudoInstructions []PseudoInstructionDef          `json:"pseudo_instructions,omitempty" yaml:"pseudo_instructions,omitempty"`
	Directives        []DirectiveDef                   `json:"directives" yaml:"directives"`
	Syntax            Syntax                           `json:"syntax" yaml:"syntax"`
	MemoryMap         MemoryMap                        `json:"memory_map" yaml:"memory_map"`
	PCBehavior        PCBehavior                       `json:"pc_behavior" yaml:"pc_behavior"`
	ImmediateWidths   map[string]int                   `json:"immediate_widths,omitempty" yaml:"immediate_widths,omitempty"`
	DataDetection     DataDetection                     `json:"data_detection,omitempty" yaml:"data_detection,omitempty"`
	Constants         []Constant                        `json:"constants,omitempty" yaml:"constants,omitempty"`
	RegisterFormatting RegisterFormatting               `json:"register_formatting,omitempty" yaml:"register_formatting,omitempty"`
	OperandFormatting  OperandFormatting                `json:"operand_formatting,omitempty" yaml:"operand_formatting,omitempty"`
	DefaultCodeStart  int                               `json:"default_code_start,omitempty" yaml:"default_code_start,omitempty"`

	// Derived fields, populated by Validate.
	AddressMask uint64 `json:"-" yaml:"-"`

	aliasIndex map[string]Register
	instrIndex map[string]*InstructionDef
	pseudoIndex map[string]*PseudoInstructionDef
	directiveIndex map[string]*DirectiveDef
}

// InstructionByMnemonic looks up a real instruction definition by its
// mnemonic, honoring the ISA's case-sensitivity rule.
func (isa *ISA) InstructionByMnemonic(mnemonic string) (*InstructionDef, bool) {
	key := isa.normalizeMnemonic(mnemonic)
	d, ok := isa.instrIndex[key]
	return d, ok
}

// PseudoByMnemonic looks up a pseudo-instruction definition by mnemonic.
func (isa *ISA) PseudoByMnemonic(mnemonic string) (*PseudoInstructionDef, bool) {
	key := isa.normalizeMnemonic(mnemonic)
	d, ok := isa.pseudoIndex[key]
	return d, ok
}

// DirectiveByName looks up a directive definition by name (including
// aliases).
func (isa *ISA) DirectiveByName(name string) (*DirectiveDef, bool) {
	d, ok := isa.directiveIndex[name]
	return d, ok
}

// ResolveRegister maps an alias (or canonical name) to its canonical
// Register, honoring case-sensitivity.
func (isa *ISA) ResolveRegister(name string) (Register, bool) {
	key := name
	if !isa.Syntax.CaseSensitive {
		key = lower(name)
	}
	reg, ok := isa.aliasIndex[key]
	return reg, ok
}

func (isa *ISA) normalizeMnemonic(m string) string {
	if isa.Syntax.CaseSensitive {
		return m
	}
	return lower(m)
}

func lower(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// Errors returned by Validate.
var (
	ErrFieldCoverage      = errors.New("instruction fields do not exactly cover the instruction width")
	ErrFingerprintInvalid = errors.New("opcode fingerprint value escapes its own mask")
	ErrDuplicateMnemonic  = errors.New("duplicate mnemonic")
)
