package disassemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsarkis/isax/pkg/assemble"
	"github.com/nsarkis/isax/pkg/container"
	"github.com/nsarkis/isax/pkg/isa"
)

// roundTripISA is fixtureISA with the syntax fields pkg/assemble's parser
// needs (label suffix, operand separators) filled in, so the same ISA can
// drive both halves of an assemble -> container -> disassemble round trip.
func roundTripISA(t *testing.T) *isa.ISA {
	t.Helper()
	def := fixtureISA(t)
	def.Syntax.LabelSuffix = ":"
	def.Syntax.OperandSeparators = []string{","}
	def.Syntax.CommentChars = []string{";"}
	require.NoError(t, def.Validate())
	return def
}

// TestAssembleContainerDisassembleRoundTripRecoversLabel assembles a tiny
// program with one forward-referenced label, wraps it in a v2 ISAX
// container, disassembles the container back, and confirms the branch
// target prints as the original label name rather than a bare address —
// exercising pkg/assemble, pkg/container, and pkg/disassemble together.
func TestAssembleContainerDisassembleRoundTripRecoversLabel(t *testing.T) {
	def := roundTripISA(t)
	source := `
loop_start:
    ADDI x1, x1, 1
    BEQ x1, x0, loop_start
`
	asmResult, err := assemble.Assemble(def, source, 0, nil)
	require.NoError(t, err)

	img := container.Image{
		EntryPoint: asmResult.Origin,
		CodeStart:  asmResult.Origin,
		Code:       asmResult.Code,
		DataStart:  asmResult.Origin + len(asmResult.Code),
		Symbols:    asmResult.Symbols,
	}
	raw, err := container.Write(img)
	require.NoError(t, err)

	got, err := container.Read(raw)
	require.NoError(t, err)
	require.Equal(t, asmResult.Code, got.Code)

	result, err := Disassemble(def, got.Code, got.CodeStart, nil, true, nil)
	require.NoError(t, err)

	known := make(map[string]int64, len(got.Symbols))
	for _, s := range got.Symbols {
		known[s.Name] = s.Value
	}
	labels := ReconstructLabels(result.Instructions, known)

	text := Format(def, result.Instructions, FormatOptions{Labels: labels})
	assert.Contains(t, text, "loop_start")
	assert.NotContains(t, text, "0x0") // the target prints as a name, not the hex literal
}
