package disassemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsarkis/isax/pkg/isa"
)

// fixtureISA mirrors pkg/assemble's fullISA fixture: AUIPC/ADDI/BEQ real
// instructions plus an LA pseudo that expands to AUIPC+ADDI, with a
// disassembly hint telling Coalesce to reconstruct it.
func fixtureISA(t *testing.T) *isa.ISA {
	t.Helper()
	def := &isa.ISA{
		WordSize: 32, InstructionSize: 32, AddressBits: 16, Endianness: isa.Little,
		Syntax: isa.Syntax{
			RegisterPrefix: "x",
			HexPrefix:      "0x",
		},
		Registers: map[string][]isa.Register{
			"general": {
				{Name: "x0", Index: 0},
				{Name: "x1", Index: 1},
				{Name: "x2", Index: 2},
			},
		},
		Instructions: []isa.InstructionDef{
			{
				Mnemonic: "AUIPC",
				Fields: []isa.FieldDef{
					{Name: "opcode", BitRange: "31:28", Kind: isa.FieldFixed, FixedValue: 1},
					{Name: "rd", BitRange: "27:25", Kind: isa.FieldRegister},
					{Name: "imm", BitRange: "24:5", Kind: isa.FieldImmediate, Signed: false},
					{Name: "pad", BitRange: "4:0", Kind: isa.FieldFixed, FixedValue: 0},
				},
			},
			{
				Mnemonic: "ADDI",
				Fields: []isa.FieldDef{
					{Name: "opcode", BitRange: "31:28", Kind: isa.FieldFixed, FixedValue: 2},
					{Name: "rd", BitRange: "27:25", Kind: isa.FieldRegister},
					{Name: "rs1", BitRange: "24:22", Kind: isa.FieldRegister},
					{Name: "imm", BitRange: "21:10", Kind: isa.FieldImmediate, Signed: true},
					{Name: "pad", BitRange: "9:0", Kind: isa.FieldFixed, FixedValue: 0},
				},
			},
			{
				Mnemonic: "BEQ",
				Fields: []isa.FieldDef{
					{Name: "opcode", BitRange: "31:28", Kind: isa.FieldFixed, FixedValue: 3},
					{Name: "rs1", BitRange: "27:25", Kind: isa.FieldRegister},
					{Name: "rs2", BitRange: "24:22", Kind: isa.FieldRegister},
					{Name: "imm", BitRange: "21:2", Kind: isa.FieldAddress, Signed: true, PCRelative: true},
					{Name: "pad", BitRange: "1:0", Kind: isa.FieldFixed, FixedValue: 0},
				},
			},
		},
		PseudoInstructions: []isa.PseudoInstructionDef{
			{
				Mnemonic:       "LA",
				SyntaxTemplate: "LA $rd, $label",
				ExpansionTemplate: []isa.ExpansionStep{
					{Template: "AUIPC $rd, $label[31:12]"},
					{Template: "ADDI $rd, $rd, $label[11:0]"},
				},
				DisassemblyHint: isa.DisassemblyHint{Kind: isa.HintAddressReconstruction},
			},
		},
		PCBehavior: isa.PCBehavior{OffsetForJumps: 0},
	}
	require.NoError(t, def.Validate())
	return def
}

func encodeAUIPC(rd uint32, imm20 uint32) []byte {
	word := uint32(1)<<28 | (rd&0x7)<<25 | (imm20&0xFFFFF)<<5
	return []byte{byte(word), byte(word >> 8), byte(word >> 16), byte(word >> 24)}
}

func encodeADDI(rd, rs1 uint32, imm12 uint32) []byte {
	word := uint32(2)<<28 | (rd&0x7)<<25 | (rs1&0x7)<<22 | (imm12&0xFFF)<<10
	return []byte{byte(word), byte(word >> 8), byte(word >> 16), byte(word >> 24)}
}

func TestDisassembleRealInstructionStream(t *testing.T) {
	def := fixtureISA(t)
	code := append(encodeAUIPC(1, 10), encodeADDI(1, 1, 5)...)

	result, err := Disassemble(def, code, 0, nil, true, nil)
	require.NoError(t, err)
	require.Len(t, result.Instructions, 1) // folded into LA by Coalesce
	assert.Equal(t, "LA", result.Instructions[0].Mnemonic)
	assert.True(t, result.Instructions[0].Pseudo)
}

func TestDisassembleWithoutCoalescingReportsRealInstructionsOnly(t *testing.T) {
	def := fixtureISA(t)
	code := append(encodeAUIPC(1, 10), encodeADDI(1, 1, 5)...)

	result, err := Disassemble(def, code, 0, nil, false, nil)
	require.NoError(t, err)
	require.Len(t, result.Instructions, 2)
	assert.Equal(t, "AUIPC", result.Instructions[0].Mnemonic)
	assert.Equal(t, "ADDI", result.Instructions[1].Mnemonic)
	assert.False(t, result.Instructions[0].Pseudo)
}

func TestDisassembleReportsNOPWithoutSwitchingToData(t *testing.T) {
	def := fixtureISA(t)
	code := append([]byte{0, 0, 0, 0}, encodeADDI(1, 0, 3)...)

	result, err := Disassemble(def, code, 0, nil, true, nil)
	require.NoError(t, err)
	require.Len(t, result.Instructions, 2)
	assert.Equal(t, "NOP", result.Instructions[0].Mnemonic)
	assert.Equal(t, "ADDI", result.Instructions[1].Mnemonic)
	assert.Empty(t, result.DataBlocks)
}

func TestDisassembleSwitchesToDataAfterUnknownRun(t *testing.T) {
	def := fixtureISA(t)
	def.DataDetection.UnknownRunThreshold = 2
	garbage := []byte{0x55, 0x55, 0x55, 0x55}
	code := append(append(encodeADDI(1, 0, 1), garbage...), garbage...)
	code = append(code, encodeADDI(2, 0, 1)...) // should now be swallowed as data too

	result, err := Disassemble(def, code, 0, nil, true, nil)
	require.NoError(t, err)
	require.Len(t, result.Instructions, 1)
	assert.Equal(t, "ADDI", result.Instructions[0].Mnemonic)
	require.Len(t, result.DataBlocks, 1)
	assert.Equal(t, 4, result.DataBlocks[0].Address)
	assert.Equal(t, 12, len(result.DataBlocks[0].Bytes))
}

func TestDisassembleSwitchesBackToCodeAfterConsecutiveGoodDecodes(t *testing.T) {
	def := fixtureISA(t)
	def.DataDetection.UnknownRunThreshold = 2
	def.DataDetection.MinConsecutiveForCode = 2
	garbage := []byte{0x55, 0x55, 0x55, 0x55}

	// Two garbage words trip data mode; two consecutive real ADDI words
	// then meet MinConsecutiveForCode and restore code mode, so a third
	// ADDI word after them is decoded as ordinary code too.
	code := append(append(garbage, garbage...), encodeADDI(1, 0, 1)...)
	code = append(code, encodeADDI(1, 1, 1)...)
	code = append(code, encodeADDI(1, 1, 1)...)

	result, err := Disassemble(def, code, 0, nil, true, nil)
	require.NoError(t, err)

	require.Len(t, result.DataBlocks, 1)
	assert.Equal(t, 0, result.DataBlocks[0].Address)
	assert.Equal(t, 8, len(result.DataBlocks[0].Bytes)) // the two garbage words only

	require.Len(t, result.Instructions, 3)
	for idx, addr := range []int{8, 12, 16} {
		assert.Equal(t, "ADDI", result.Instructions[idx].Mnemonic)
		assert.Equal(t, addr, result.Instructions[idx].Address)
	}
}

func TestDisassembleSwitchesToDataAfterNopRun(t *testing.T) {
	def := fixtureISA(t)
	def.DataDetection.MaxNopsBeforeData = 2
	zero := []byte{0, 0, 0, 0}

	code := append(encodeADDI(1, 0, 1), zero...)
	code = append(code, zero...)
	code = append(code, zero...) // third consecutive NOP word exceeds the threshold
	code = append(code, encodeADDI(2, 0, 2)...)

	result, err := Disassemble(def, code, 0, nil, true, nil)
	require.NoError(t, err)

	require.Len(t, result.Instructions, 1)
	assert.Equal(t, "ADDI", result.Instructions[0].Mnemonic)
	assert.Equal(t, 0, result.Instructions[0].Address)

	require.Len(t, result.DataBlocks, 1)
	assert.Equal(t, 4, result.DataBlocks[0].Address)
	assert.Equal(t, 16, len(result.DataBlocks[0].Bytes)) // 3 zero words + the trailing ADDI, never confirmed back to code
}

func TestDisassembleHonorsUserDataRegion(t *testing.T) {
	def := fixtureISA(t)
	code := append(encodeADDI(1, 0, 1), encodeADDI(2, 0, 2)...)

	result, err := Disassemble(def, code, 0, []isa.MemorySpan{{Start: 4, End: 7}}, true, nil)
	require.NoError(t, err)
	require.Len(t, result.Instructions, 1)
	require.Len(t, result.DataBlocks, 1)
	assert.Equal(t, 4, result.DataBlocks[0].Address)
	assert.Equal(t, encodeADDI(2, 0, 2), result.DataBlocks[0].Bytes)
}
