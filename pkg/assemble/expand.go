package assemble

import (
	"regexp"
	"strconv"

	"github.com/pkg/errors"

	"github.com/nsarkis/isax/pkg/asmsyntax"
	"github.com/nsarkis/isax/pkg/isa"
)

// ExpandedInstruction is one real instruction produced by expanding a
// pseudo-instruction, ready for EncodeInstruction.
type ExpandedInstruction struct {
	Instruction *isa.InstructionDef
	Values      OperandValues
}

var syntaxOperandPattern = regexp.MustCompile(`\$(\w+)`)

// syntaxOperandNames extracts the ordered $-prefixed placeholder names
// from a pseudo-instruction's syntax template, e.g. "LA $rd, $label"
// yields ["rd", "label"].
func syntaxOperandNames(template string) []string {
	matches := syntaxOperandPattern.FindAllStringSubmatch(template, -1)
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m[1]
	}
	return names
}

// Expand resolves a pseudo-instruction invocation into the sequence of
// real instructions its expansion template describes, substituting the
// actual source operands and redistributing bits across steps if the
// target value overflows a single step's field after a standard split.
//
// pc is the address of the pseudo-instruction itself. A PC-relative field
// is always adjusted against this one address, never a per-step address:
// the expansion as a whole sits at pc, and any offset slicing operates in
// offset space computed from pc before the split, not after it.
func Expand(def *isa.ISA, pseudo *isa.PseudoInstructionDef, operands []asmsyntax.Operand, resolve asmsyntax.Resolver, pc int, instrSizeBytes int) ([]ExpandedInstruction, error) {
	names := syntaxOperandNames(pseudo.SyntaxTemplate)
	if len(names) != len(operands) {
		return nil, errors.Wrapf(ErrOperandArity, "pseudo-instruction %s: expected %d operands, got %d", pseudo.Mnemonic, len(names), len(operands))
	}

	regEnv := make(map[string]string)
	valEnv := make(map[string]int64)
	for i, name := range names {
		op := operands[i]
		switch op.Kind {
		case asmsyntax.OperandRegister:
			regEnv[name] = op.Register
		case asmsyntax.OperandImmediate:
			v, err := op.Value.Eval(resolve)
			if err != nil {
				return nil, errors.Wrapf(err, "pseudo-instruction %s operand %q", pseudo.Mnemonic, name)
			}
			valEnv[name] = v
		default:
			return nil, errors.Wrapf(ErrOperandType, "pseudo-instruction %s operand %q: memory operands are not supported in expansion templates", pseudo.Mnemonic, name)
		}
	}

	steps, err := parseExpansionTemplate(pseudo.ExpansionTemplate)
	if err != nil {
		return nil, err
	}

	var redistributed []int64
	splitName, needsSplit := splitOperandName(steps)
	splitIsPCRelative := false
	if needsSplit {
		target, ok := valEnv[splitName]
		if !ok {
			return nil, errors.Wrapf(ErrPseudoExpansionInexact, "pseudo-instruction %s: %q is not a resolvable operand", pseudo.Mnemonic, splitName)
		}
		splitIsPCRelative = splitOperandIsPCRelative(def, steps, splitName)
		if splitIsPCRelative {
			// Offset is computed once, from the pseudo-instruction's own
			// address, before any positional slicing — the split then
			// operates entirely in offset space, matching a plain
			// PC-relative field's own encoding.
			target -= int64(pc + def.PCBehavior.OffsetForJumps)
		}
		redistributed, err = redistributeBits(target, steps, splitName, def)
		if err != nil {
			return nil, errors.Wrapf(err, "pseudo-instruction %s", pseudo.Mnemonic)
		}
	}

	out := make([]ExpandedInstruction, 0, len(steps))
	for stepIdx, step := range steps {
		instr, ok := def.InstructionByMnemonic(step.Instruction)
		if !ok {
			return nil, errors.Wrapf(ErrUnknownMnemonic, "pseudo-instruction %s expansion references %q", pseudo.Mnemonic, step.Instruction)
		}

		values := OperandValues{}
		for pos, op := range step.Operands {
			fieldName, ok := nonFixedFieldAt(def, step.Instruction, pos)
			if !ok {
				return nil, errors.Wrapf(ErrPseudoExpansionInexact, "pseudo-instruction %s: %s has no operand field at position %d", pseudo.Mnemonic, step.Instruction, pos)
			}

			raw, err := resolveExpansionOperand(op, regEnv, valEnv, def, needsSplit, splitName, redistributed, stepIdx)
			if err != nil {
				return nil, errors.Wrapf(err, "pseudo-instruction %s", pseudo.Mnemonic)
			}

			isSplitOperand := needsSplit && op.HasSlice && op.Name == splitName
			if field, ok := instr.FieldByName(fieldName); ok && field.PCRelative && !(isSplitOperand && splitIsPCRelative) {
				// A split PC-relative operand already had its offset baked
				// in above, before slicing; any other PC-relative operand
				// (single-occurrence, not redistributed) is adjusted here
				// against the pseudo-instruction's own address.
				raw -= int64(pc + def.PCBehavior.OffsetForJumps)
			}
			values[fieldName] = raw
		}
		out = append(out, ExpandedInstruction{Instruction: instr, Values: values})
	}
	return out, nil
}

// splitOperandIsPCRelative reports whether the real-instruction field a
// redistributed operand binds to is declared PC-relative. All of a split
// operand's occurrences are expected to agree; the first match decides.
func splitOperandIsPCRelative(def *isa.ISA, steps []expansionStep, splitName string) bool {
	for _, step := range steps {
		for pos, op := range step.Operands {
			if !op.HasSlice || op.Name != splitName {
				continue
			}
			fieldName, ok := nonFixedFieldAt(def, step.Instruction, pos)
			if !ok {
				continue
			}
			instr, ok := def.InstructionByMnemonic(step.Instruction)
			if !ok {
				continue
			}
			if field, ok := instr.FieldByName(fieldName); ok {
				return field.PCRelative
			}
		}
	}
	return false
}

func resolveExpansionOperand(op expansionOperand, regEnv map[string]string, valEnv map[string]int64, def *isa.ISA, needsSplit bool, splitName string, redistributed []int64, stepIdx int) (int64, error) {
	if op.Literal != "" {
		if reg, ok := def.ResolveRegister(op.Literal); ok {
			return int64(reg.Index), nil
		}
		n, err := strconv.ParseInt(op.Literal, 0, 64)
		if err != nil {
			return 0, errors.Wrapf(ErrOperandType, "%q is neither a known register nor a literal number", op.Literal)
		}
		return n, nil
	}
	if op.HasSlice {
		if needsSplit && op.Name == splitName {
			return redistributed[stepIdx], nil
		}
		val, ok := valEnv[op.Name]
		if !ok {
			return 0, errors.Wrapf(ErrPseudoExpansionInexact, "%q is not a resolvable operand", op.Name)
		}
		return bitSlice(val, op.High, op.Low), nil
	}
	if regName, ok := regEnv[op.Name]; ok {
		reg, ok := def.ResolveRegister(regName)
		if !ok {
			return 0, errors.Wrapf(ErrRegisterUnknown, "%q", regName)
		}
		return int64(reg.Index), nil
	}
	if val, ok := valEnv[op.Name]; ok {
		return val, nil
	}
	return 0, errors.Wrapf(ErrPseudoExpansionInexact, "%q is not a bound operand", op.Name)
}
