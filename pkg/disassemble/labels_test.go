package disassemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReconstructLabelsKeepsKnownNamesAndSynthesizesRest(t *testing.T) {
	instrs := []Instruction{
		{Address: 0, Mnemonic: "BEQ", Operands: []Operand{{Kind: OperandAddress, Value: 0x20}}},
		{Address: 4, Mnemonic: "BEQ", Operands: []Operand{{Kind: OperandAddress, Value: 0x30}}},
	}
	known := map[string]int64{"loop_start": 0x20}

	labels := ReconstructLabels(instrs, known)
	assert.Equal(t, "loop_start", labels[0x20])
	assert.Equal(t, "L0030", labels[0x30])
}

func TestReconstructLabelsIgnoresNonAddressOperands(t *testing.T) {
	instrs := []Instruction{
		{Address: 0, Mnemonic: "ADDI", Operands: []Operand{{Kind: OperandRegister, Register: 1}, {Kind: OperandImmediate, Value: 99}}},
	}
	labels := ReconstructLabels(instrs, nil)
	assert.Empty(t, labels)
}
