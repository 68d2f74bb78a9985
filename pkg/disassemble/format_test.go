package disassemble

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatRendersMnemonicRegistersAndLabel(t *testing.T) {
	def := fixtureISA(t)
	instrs := []Instruction{
		{
			Address:  0,
			Mnemonic: "beq",
			Operands: []Operand{
				{Kind: OperandRegister, Register: 1},
				{Kind: OperandRegister, Register: 2},
				{Kind: OperandAddress, Value: 0x20},
			},
		},
	}
	out := Format(def, instrs, FormatOptions{Labels: map[int64]string{0x20: "loop_start"}})
	assert.Contains(t, out, "BEQ")
	assert.Contains(t, out, "x1, x2, loop_start")
}

func TestFormatFallsBackToHexAddressWithoutLabel(t *testing.T) {
	def := fixtureISA(t)
	instrs := []Instruction{
		{Address: 0, Mnemonic: "beq", Operands: []Operand{{Kind: OperandAddress, Value: 0x20}}},
	}
	out := Format(def, instrs, FormatOptions{})
	assert.True(t, strings.Contains(out, "0x20"))
}
