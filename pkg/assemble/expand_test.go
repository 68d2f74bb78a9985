package assemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsarkis/isax/pkg/asmsyntax"
)

func TestSyntaxOperandNames(t *testing.T) {
	assert.Equal(t, []string{"rd", "label"}, syntaxOperandNames("LA $rd, $label"))
}

func TestExpandProducesRealInstructionsWithRedistribution(t *testing.T) {
	def := laISA(t)
	pseudo, _ := def.PseudoByMnemonic("LA")

	operands := []asmsyntax.Operand{
		{Kind: asmsyntax.OperandRegister, Register: "x1"},
		{Kind: asmsyntax.OperandImmediate, Value: constExpr{int64(3000)*(1<<20) + 500}},
	}

	expanded, err := Expand(def, pseudo, operands, func(string) (int64, bool) { return 0, false }, 0, 4)
	require.NoError(t, err)
	require.Len(t, expanded, 2)

	// AUIPC takes the literal high-order slice (target>>12), ADDI the
	// literal low-order slice (target&0xFFF) — both fit their declared
	// fields here, so no overflow redistribution is triggered.
	assert.Equal(t, "AUIPC", expanded[0].Instruction.Mnemonic)
	assert.Equal(t, int64(1), expanded[0].Values["rd"])
	assert.Equal(t, int64(768000), expanded[0].Values["imm"])

	assert.Equal(t, "ADDI", expanded[1].Instruction.Mnemonic)
	assert.Equal(t, int64(1), expanded[1].Values["rd"])
	assert.Equal(t, int64(1), expanded[1].Values["rs1"])
	assert.Equal(t, int64(500), expanded[1].Values["imm"])
}

func TestExpandOverflowPushesExcessOntoEarlierStep(t *testing.T) {
	def := laISA(t)
	pseudo, _ := def.PseudoByMnemonic("LA")

	operands := []asmsyntax.Operand{
		{Kind: asmsyntax.OperandRegister, Register: "x1"},
		{Kind: asmsyntax.OperandImmediate, Value: constExpr{int64(3000)}},
	}

	expanded, err := Expand(def, pseudo, operands, func(string) (int64, bool) { return 0, false }, 0, 4)
	require.NoError(t, err)
	require.Len(t, expanded, 2)

	// target=3000: ADDI's literal low-order slice overflows its signed
	// 12-bit field (max 2047); the excess is pushed onto AUIPC.
	assert.Equal(t, int64(953), expanded[0].Values["imm"])
	assert.Equal(t, int64(2047), expanded[1].Values["imm"])
}

// TestExpandPCRelativeSplitComputesOffsetOnceBeforeSlicing mirrors a
// PC-relative LA: the offset from the pseudo-instruction's own address to
// the target is computed once, before AUIPC/ADDI's literal slices are
// taken, not subtracted afterward from an already-sliced chunk.
func TestExpandPCRelativeSplitComputesOffsetOnceBeforeSlicing(t *testing.T) {
	def := laPCRelativeISA(t)
	pseudo, _ := def.PseudoByMnemonic("LA")

	const pc = 0x100
	const target = 0x200
	operands := []asmsyntax.Operand{
		{Kind: asmsyntax.OperandRegister, Register: "x1"},
		{Kind: asmsyntax.OperandImmediate, Value: constExpr{int64(target)}},
	}

	expanded, err := Expand(def, pseudo, operands, func(string) (int64, bool) { return 0, false }, pc, 4)
	require.NoError(t, err)
	require.Len(t, expanded, 2)

	offset := int64(target - pc)
	assert.Equal(t, offset>>12, expanded[0].Values["imm"])
	assert.Equal(t, offset&0xFFF, expanded[1].Values["imm"])

	// Reconstructing PC + (AUIPC_imm<<12) + ADDI_imm must recover target.
	reconstructed := int64(pc) + expanded[0].Values["imm"]<<12 + expanded[1].Values["imm"]
	assert.Equal(t, int64(target), reconstructed)
}

func TestExpandWrongOperandCount(t *testing.T) {
	def := laISA(t)
	pseudo, _ := def.PseudoByMnemonic("LA")
	operands := []asmsyntax.Operand{{Kind: asmsyntax.OperandRegister, Register: "x1"}}
	_, err := Expand(def, pseudo, operands, func(string) (int64, bool) { return 0, false }, 0, 4)
	assert.ErrorIs(t, err, ErrOperandArity)
}

// constExpr is a trivial asmsyntax.Expr used in tests to hand Expand an
// already-known value without round-tripping through the parser.
type constExpr struct{ v int64 }

func (c constExpr) Eval(asmsyntax.Resolver) (int64, error) { return c.v, nil }
