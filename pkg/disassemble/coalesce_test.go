package disassemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeBEQ(rs1, rs2 uint32, displacement int32) []byte {
	word := uint32(3)<<28 | (rs1&0x7)<<25 | (rs2&0x7)<<22 | (uint32(displacement)&0xFFFFF)<<2
	return []byte{byte(word), byte(word >> 8), byte(word >> 16), byte(word >> 24)}
}

func TestCoalescePassesThroughRealInstructionUnchanged(t *testing.T) {
	def := fixtureISA(t)
	raw := encodeADDI(1, 2, 7)
	d, err := Decode(def, wordOf(raw), 0, raw)
	require.NoError(t, err)

	out, err := Coalesce(def, []Decoded{*d})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ADDI", out[0].Mnemonic)
	assert.False(t, out[0].Pseudo)
	require.Len(t, out[0].Operands, 3)
	assert.Equal(t, OperandRegister, out[0].Operands[0].Kind)
	assert.Equal(t, int64(1), out[0].Operands[0].Register)
}

func TestCoalesceResolvesPCRelativeAddressField(t *testing.T) {
	def := fixtureISA(t)
	raw := encodeBEQ(1, 2, 8)
	d, err := Decode(def, wordOf(raw), 0x10, raw)
	require.NoError(t, err)

	out, err := Coalesce(def, []Decoded{*d})
	require.NoError(t, err)
	require.Len(t, out, 1)
	last := out[0].Operands[len(out[0].Operands)-1]
	assert.Equal(t, OperandAddress, last.Kind)
	assert.Equal(t, int64(0x18), last.Value) // 0x10 + 8 displacement
}

func TestCoalesceRejectsMismatchedSharedPlaceholder(t *testing.T) {
	def := fixtureISA(t)
	auipc := encodeAUIPC(1, 10)
	addi := encodeADDI(2, 1, 5) // rd=2 != AUIPC's rd=1, breaks the LA constraint
	dA, err := Decode(def, wordOf(auipc), 0, auipc)
	require.NoError(t, err)
	dB, err := Decode(def, wordOf(addi), 4, addi)
	require.NoError(t, err)

	out, err := Coalesce(def, []Decoded{*dA, *dB})
	require.NoError(t, err)
	require.Len(t, out, 2) // falls back to two real instructions, not one LA
	assert.Equal(t, "AUIPC", out[0].Mnemonic)
	assert.Equal(t, "ADDI", out[1].Mnemonic)
}
