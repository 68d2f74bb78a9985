package isa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testISA builds a tiny 16-bit ISA: ADDI rd, rs1, imm6 and a HALT.
func testISA(t *testing.T) *ISA {
	t.Helper()
	def := &ISA{
		Name:            "test16",
		WordSize:        16,
		InstructionSize: 16,
		Endianness:      Little,
		AddressBits:     16,
		Registers: map[string][]Register{
			"general": {
				{Name: "x0", Index: 0, Aliases: []string{"zero"}},
				{Name: "x1", Index: 1, Aliases: []string{"ra"}},
				{Name: "x2", Index: 2, Aliases: []string{"sp"}},
			},
		},
		Instructions: []InstructionDef{
			{
				Mnemonic:       "ADDI",
				SyntaxTemplate: "ADDI $rd, $rs1, $imm",
				Fields: []FieldDef{
					{Name: "opcode", BitRange: "15:12", Kind: FieldFixed, FixedValue: 0x1},
					{Name: "rd", BitRange: "11:9", Kind: FieldRegister},
					{Name: "rs1", BitRange: "8:6", Kind: FieldRegister},
					{Name: "imm", BitRange: "5:0", Kind: FieldImmediate, Signed: true},
				},
			},
			{
				Mnemonic:       "HALT",
				SyntaxTemplate: "HALT",
				Fields: []FieldDef{
					{Name: "opcode", BitRange: "15:0", Kind: FieldFixed, FixedValue: 0xFFFF},
				},
			},
		},
		Directives: []DirectiveDef{
			{Name: ".org", Kind: DirSetOrigin, ArgumentTypes: []string{"expr"}, Aliases: []string{".origin"}},
			{Name: ".word", Kind: DirEmitWords, ArgumentTypes: []string{"expr..."}},
		},
		Syntax: Syntax{
			CommentChars:      []string{";"},
			LabelSuffix:       ":",
			RegisterPrefix:    "",
			ImmediatePrefix:   "",
			HexPrefix:         "0x",
			BinPrefix:         "0b",
			OperandSeparators: []string{","},
			CaseSensitive:     false,
		},
		PCBehavior: PCBehavior{OffsetForJumps: 2},
	}
	require.NoError(t, def.Validate())
	return def
}

func TestValidateComputesFingerprints(t *testing.T) {
	def := testISA(t)
	addi, ok := def.InstructionByMnemonic("addi")
	require.True(t, ok, "case-insensitive lookup should find ADDI")
	assert.Equal(t, uint64(0x1000), addi.Value)
	assert.Equal(t, uint64(0xF000), addi.Mask)

	halt, ok := def.InstructionByMnemonic("HALT")
	require.True(t, ok)
	assert.Equal(t, uint64(0xFFFF), halt.Value)
	assert.Equal(t, uint64(0xFFFF), halt.Mask)
}

func TestValidateRejectsGapOrOverlap(t *testing.T) {
	base := testISA(t)
	_ = base

	gapped := &ISA{
		WordSize: 16, InstructionSize: 16, AddressBits: 16,
		Instructions: []InstructionDef{{
			Mnemonic: "BAD",
			Fields: []FieldDef{
				{Name: "opcode", BitRange: "15:12", Kind: FieldFixed},
				{Name: "rd", BitRange: "8:6", Kind: FieldRegister},
				// bits 11:9 and 5:0 are uncovered: gap.
			},
		}},
	}
	err := gapped.Validate()
	require.Error(t, err)

	overlapping := &ISA{
		WordSize: 16, InstructionSize: 16, AddressBits: 16,
		Instructions: []InstructionDef{{
			Mnemonic: "BAD",
			Fields: []FieldDef{
				{Name: "a", BitRange: "15:0", Kind: FieldFixed},
				{Name: "b", BitRange: "7:0", Kind: FieldRegister},
			},
		}},
	}
	err = overlapping.Validate()
	require.Error(t, err)
}

func TestValidateRejectsFixedValueOutOfWidth(t *testing.T) {
	bad := &ISA{
		WordSize: 16, InstructionSize: 16, AddressBits: 16,
		Instructions: []InstructionDef{{
			Mnemonic: "BAD",
			Fields: []FieldDef{
				{Name: "opcode", BitRange: "15:12", Kind: FieldFixed, FixedValue: 0x20}, // needs 6 bits, field is 4
			},
		}},
	}
	assert.Error(t, bad.Validate())
}

func TestValidateRejectsDuplicateMnemonic(t *testing.T) {
	dup := &ISA{
		WordSize: 16, InstructionSize: 16, AddressBits: 16,
		Instructions: []InstructionDef{
			{Mnemonic: "NOP", Fields: []FieldDef{{Name: "op", BitRange: "15:0", Kind: FieldFixed}}},
			{Mnemonic: "nop", Fields: []FieldDef{{Name: "op", BitRange: "15:0", Kind: FieldFixed, FixedValue: 1}}},
		},
	}
	assert.ErrorIs(t, dup.Validate(), ErrDuplicateMnemonic)
}

func TestResolveRegisterAliasesCaseInsensitive(t *testing.T) {
	def := testISA(t)
	r, ok := def.ResolveRegister("RA")
	require.True(t, ok)
	assert.Equal(t, "x1", r.Name)
	assert.Equal(t, 1, r.Index)

	r, ok = def.ResolveRegister("zero")
	require.True(t, ok)
	assert.Equal(t, "x0", r.Name)

	_, ok = def.ResolveRegister("x9")
	assert.False(t, ok)
}

func TestDirectiveByNameAndAliases(t *testing.T) {
	def := testISA(t)
	d, ok := def.DirectiveByName(".org")
	require.True(t, ok)
	assert.Equal(t, DirSetOrigin, d.Kind)

	d, ok = def.DirectiveByName(".origin")
	require.True(t, ok)
	assert.Equal(t, ".org", d.Name)

	_, ok = def.DirectiveByName(".nonexistent")
	assert.False(t, ok)
}

func TestFieldByName(t *testing.T) {
	def := testISA(t)
	addi, _ := def.InstructionByMnemonic("ADDI")
	f, ok := addi.FieldByName("imm")
	require.True(t, ok)
	assert.Equal(t, 6, f.Width())
	assert.True(t, f.Signed)

	_, ok = addi.FieldByName("nope")
	assert.False(t, ok)
}
