package assemble

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/nsarkis/isax/pkg/bitfield"
	"github.com/nsarkis/isax/pkg/isa"
)

// expansionStep is one parsed step of a pseudo-instruction's expansion
// template, e.g. "AUIPC $rd, $label[31:12]" parses to
// {Instruction: "AUIPC", Operands: [{Name:"rd"}, {Name:"label", HasSlice:true, High:31, Low:12}]}.
type expansionStep struct {
	Instruction string
	Operands    []expansionOperand
}

type expansionOperand struct {
	Name     string // operand placeholder name, without the leading '$'
	HasSlice bool
	High, Low int
	Literal  string // set instead of Name when the token is not a placeholder
}

var stepOperandPattern = regexp.MustCompile(`^\$(\w+)(?:\[(\d+):(\d+)\])?$`)

// parseExpansionTemplate parses every step of a pseudo-instruction's
// expansion, e.g. "AUIPC $rd, $label[31:12]; ADDI $rd, $rd, $label[11:0]".
func parseExpansionTemplate(steps []isa.ExpansionStep) ([]expansionStep, error) {
	out := make([]expansionStep, 0, len(steps))
	for _, raw := range steps {
		fields := strings.Fields(raw.Template)
		if len(fields) == 0 {
			continue
		}
		step := expansionStep{Instruction: fields[0]}
		rest := strings.TrimSpace(strings.TrimPrefix(raw.Template, fields[0]))
		for _, tok := range strings.Split(rest, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			if m := stepOperandPattern.FindStringSubmatch(tok); m != nil {
				op := expansionOperand{Name: m[1]}
				if m[2] != "" {
					high, err := strconv.Atoi(m[2])
					if err != nil {
						return nil, errors.Wrapf(ErrPseudoExpansionInexact, "bad bit-slice in %q", raw.Template)
					}
					low, err := strconv.Atoi(m[3])
					if err != nil {
						return nil, errors.Wrapf(ErrPseudoExpansionInexact, "bad bit-slice in %q", raw.Template)
					}
					op.HasSlice = true
					op.High, op.Low = high, low
				}
				step.Operands = append(step.Operands, op)
			} else {
				step.Operands = append(step.Operands, expansionOperand{Literal: tok})
			}
		}
		out = append(out, step)
	}
	return out, nil
}

// fieldConstraint captures the width/signedness of one real instruction's
// field, used to detect and resolve pseudo-expansion overflow.
type fieldConstraint struct {
	width  int
	signed bool
}

func fieldConstraintFor(def *isa.ISA, instruction, field string) (fieldConstraint, bool) {
	instr, ok := def.InstructionByMnemonic(instruction)
	if !ok {
		return fieldConstraint{}, false
	}
	f, ok := instr.FieldByName(field)
	if !ok {
		return fieldConstraint{}, false
	}
	return fieldConstraint{width: f.Width(), signed: f.Signed}, true
}

func (c fieldConstraint) bounds() (min, max int64) {
	if c.signed {
		max = int64(1)<<uint(c.width-1) - 1
		min = -(int64(1) << uint(c.width-1))
		return
	}
	max = int64(1)<<uint(c.width) - 1
	return 0, max
}

func (c fieldConstraint) overflows(v int64) bool {
	min, max := c.bounds()
	return v < min || v > max
}

// splitOperandName returns the operand name shared by two or more steps
// via a bit-slice reference, if exactly one such name exists. This is the
// operand smart expansion redistributes across steps — typically an
// address or immediate too wide for any single step's field.
func splitOperandName(steps []expansionStep) (string, bool) {
	counts := make(map[string]int)
	for _, step := range steps {
		for _, op := range step.Operands {
			if op.HasSlice {
				counts[op.Name]++
			}
		}
	}
	var found string
	n := 0
	for name, c := range counts {
		if c >= 2 {
			found = name
			n++
		}
	}
	if n == 1 {
		return found, true
	}
	return "", false
}

// redistributeBits ports the ISA-agnostic overflow-redistribution
// algorithm: slice target literally at each step's declared bit-range
// position (the first-listed step gets target's high-order bits, a later
// step the low-order bits, per the template's own `[high:low]` notation);
// if a chunk overflows its target instruction field's range, clamp it and
// push the excess onto earlier steps in the list, widening their share.
func redistributeBits(target int64, steps []expansionStep, splitName string, def *isa.ISA) ([]int64, error) {
	var sliceSteps []int
	for i, step := range steps {
		for _, op := range step.Operands {
			if op.HasSlice && op.Name == splitName {
				sliceSteps = append(sliceSteps, i)
				break
			}
		}
	}

	rangeOf := func(stepIdx int) (high, low int) {
		for _, op := range steps[stepIdx].Operands {
			if op.HasSlice && op.Name == splitName {
				return op.High, op.Low
			}
		}
		return 0, 0
	}

	values := make([]int64, len(sliceSteps))
	for i, stepIdx := range sliceSteps {
		high, low := rangeOf(stepIdx)
		values[i] = bitSlice(target, high, low)
	}

	constraintFor := func(i int) (fieldConstraint, bool) {
		stepIdx := sliceSteps[i]
		step := steps[stepIdx]
		for pos, op := range step.Operands {
			if op.HasSlice && op.Name == splitName {
				fieldName, ok := nonFixedFieldAt(def, step.Instruction, pos)
				if !ok {
					return fieldConstraint{}, false
				}
				return fieldConstraintFor(def, step.Instruction, fieldName)
			}
		}
		return fieldConstraint{}, false
	}

	for i := range sliceSteps {
		c, ok := constraintFor(i)
		if !ok || !c.overflows(values[i]) {
			continue
		}
		min, max := c.bounds()
		var excess int64
		if values[i] > max {
			excess = values[i] - max
			values[i] = max
		} else {
			excess = min - values[i]
			values[i] = min
		}
		for j := i - 1; j >= 0 && excess > 0; j-- {
			cj, ok := constraintFor(j)
			if !ok {
				continue
			}
			_, maxJ := cj.bounds()
			room := maxJ - values[j]
			if room <= 0 {
				continue
			}
			increase := excess
			if increase > room {
				increase = room
			}
			values[j] += increase
			excess -= increase
		}
		if excess > 0 {
			return nil, errors.Wrapf(ErrPseudoExpansionOverflow, "value %d could not be redistributed across %d expansion steps", target, len(sliceSteps))
		}
	}

	// Scatter back into a per-step slice (non-slice steps get 0, unused).
	out := make([]int64, len(steps))
	for i, stepIdx := range sliceSteps {
		out[stepIdx] = values[i]
	}
	return out, nil
}

// nonFixedFieldAt returns the name of the Nth non-fixed field (0-based)
// of the named real instruction. Expansion template operands bind to a
// target instruction's fields by position, the same convention
// pkg/assemble uses for ordinary instruction operands.
func nonFixedFieldAt(def *isa.ISA, instruction string, pos int) (string, bool) {
	instr, ok := def.InstructionByMnemonic(instruction)
	if !ok {
		return "", false
	}
	n := 0
	for _, f := range instr.Fields {
		if f.Kind == isa.FieldFixed {
			continue
		}
		if n == pos {
			return f.Name, true
		}
		n++
	}
	return "", false
}

// bitSlice extracts bits [high:low] of v, matching bitfield's extraction
// semantics for a single contiguous range.
func bitSlice(v int64, high, low int) int64 {
	r := bitfield.Range{High: high, Low: low}
	return int64(bitfield.Extract(uint64(v), []bitfield.Range{r}))
}

// ExpansionStepView is the exported shape of one parsed expansion step,
// letting pkg/disassemble recognize and reassemble a pseudo-instruction's
// real-instruction sequence without re-parsing expansion templates itself.
type ExpansionStepView struct {
	Instruction string
	// FieldNames are the instruction fields bound by this step's operands,
	// in the same order as the template's operand list; SliceWidths gives
	// the declared bit-slice width for operands that carry one (0 for a
	// plain register/literal operand). PlaceholderNames is the original
	// "$name" token each operand came from (without the leading '$'; a
	// literal token is recorded as itself) — two operands sharing a
	// PlaceholderName, whether in the same step or across steps, must
	// resolve to the same source value, which is how pkg/disassemble's
	// Coalesce recognizes a multi-step pseudo-instruction without any
	// ISA-specific logic. Coalesce does not fold single-step pseudos (such
	// as "CLR rd" written as "XOR rd, rd, rd").
	FieldNames       []string
	SliceWidths      []int
	PlaceholderNames []string
}

// ParseExpansion resolves a pseudo-instruction's expansion template into
// its real-instruction steps and the fields each step's operands bind to.
func ParseExpansion(def *isa.ISA, pseudo *isa.PseudoInstructionDef) ([]ExpansionStepView, error) {
	steps, err := parseExpansionTemplate(pseudo.ExpansionTemplate)
	if err != nil {
		return nil, err
	}
	out := make([]ExpansionStepView, len(steps))
	for i, step := range steps {
		names := make([]string, len(step.Operands))
		widths := make([]int, len(step.Operands))
		placeholders := make([]string, len(step.Operands))
		for pos, op := range step.Operands {
			name, _ := nonFixedFieldAt(def, step.Instruction, pos)
			names[pos] = name
			if op.HasSlice {
				widths[pos] = op.High - op.Low + 1
			}
			if op.Literal != "" {
				placeholders[pos] = op.Literal
			} else {
				placeholders[pos] = op.Name
			}
		}
		out[i] = ExpansionStepView{Instruction: step.Instruction, FieldNames: names, SliceWidths: widths, PlaceholderNames: placeholders}
	}
	return out, nil
}
