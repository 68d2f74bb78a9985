package disassemble

import (
	"strings"

	"github.com/nsarkis/isax/pkg/assemble"
	"github.com/nsarkis/isax/pkg/isa"
)

// OperandKind classifies one formatted operand of a coalesced instruction.
type OperandKind int

const (
	OperandRegister OperandKind = iota
	OperandImmediate
	OperandAddress
)

// Operand is one operand of a coalesced Instruction, already resolved to a
// concrete value — a register index, a plain immediate, or an absolute
// address (for a PC-relative field, or a multi-step pseudo's reconstructed
// target).
type Operand struct {
	Kind     OperandKind
	Register int64
	Value    int64
}

// Instruction is the final, user-facing unit the Formatter renders: either
// a real decoded instruction or a pseudo-instruction reconstructed from one
// or more real instructions.
type Instruction struct {
	Address  int
	Bytes    []byte
	Mnemonic string
	Operands []Operand
	Pseudo   bool
}

// Coalesce folds runs of real decoded instructions back into the pseudo-
// instructions they were expanded from, where the ISA declares a
// disassembly hint for doing so. Real instructions that don't match any
// pseudo pattern pass through unchanged.
func Coalesce(def *isa.ISA, decoded []Decoded) ([]Instruction, error) {
	out := make([]Instruction, 0, len(decoded))
	i := 0
	for i < len(decoded) {
		if inst, consumed, err := tryMultiStepPseudo(def, decoded, i); err != nil {
			return nil, err
		} else if consumed > 0 {
			out = append(out, inst)
			i += consumed
			continue
		}
		out = append(out, realInstruction(def, decoded[i]))
		i++
	}
	return out, nil
}

func realInstruction(def *isa.ISA, d Decoded) Instruction {
	inst := Instruction{Address: d.Address, Bytes: d.Bytes, Mnemonic: d.Instruction.Mnemonic}
	for _, f := range d.Instruction.Fields {
		if f.Kind == isa.FieldFixed {
			continue
		}
		v := d.Fields[f.Name]
		switch f.Kind {
		case isa.FieldRegister:
			inst.Operands = append(inst.Operands, Operand{Kind: OperandRegister, Register: v})
		case isa.FieldAddress:
			value := v
			if f.PCRelative {
				value = TargetAddress(def, d.Address, v)
			}
			inst.Operands = append(inst.Operands, Operand{Kind: OperandAddress, Value: value})
		default:
			inst.Operands = append(inst.Operands, Operand{Kind: OperandImmediate, Value: v})
		}
	}
	return inst
}

// tryMultiStepPseudo checks every pseudo-instruction whose disassembly hint
// asks for multi-instruction or address-reconstruction coalescing against
// the window of decoded instructions starting at i. A pseudo matches when
// its expansion steps' real mnemonics line up one-to-one with consecutive
// decoded instructions and every placeholder shared across steps (most
// commonly the destination register) resolves to the same field value in
// each step — the same structural test a hand-written "is this really a
// CLR" check performs for one specific ISA, generalized to read the
// sharing directly off the expansion template instead of hard-coding it.
func tryMultiStepPseudo(def *isa.ISA, decoded []Decoded, i int) (Instruction, int, error) {
	for pIdx := range def.PseudoInstructions {
		pseudo := &def.PseudoInstructions[pIdx]
		hint := pseudo.DisassemblyHint
		if hint.Disabled {
			continue
		}
		if hint.Kind != isa.HintMultiInstruction && hint.Kind != isa.HintAddressReconstruction {
			continue
		}

		steps, err := assemble.ParseExpansion(def, pseudo)
		if err != nil {
			return Instruction{}, 0, err
		}
		if len(steps) < 1 || i+len(steps) > len(decoded) {
			continue
		}

		shared := map[string]int64{}
		matched := true
		for stepIdx, step := range steps {
			d := decoded[i+stepIdx]
			if !strings.EqualFold(d.Instruction.Mnemonic, step.Instruction) {
				matched = false
				break
			}
			for opIdx, placeholder := range step.PlaceholderNames {
				if step.SliceWidths[opIdx] > 0 {
					continue // reconstructed separately below, not a sharing constraint
				}
				fieldName := step.FieldNames[opIdx]
				if fieldName == "" {
					continue
				}
				v, ok := d.Fields[fieldName]
				if !ok {
					matched = false
					break
				}
				if prev, seen := shared[placeholder]; seen {
					if prev != v {
						matched = false
						break
					}
				} else {
					shared[placeholder] = v
				}
			}
			if !matched {
				break
			}
		}
		if !matched {
			continue
		}
		if len(steps) == 1 {
			// A single-step "pseudo" is just a display alias (e.g. CLR for
			// XOR rd, rd); it is never folded, so the real instruction is
			// reported as decoded.
			continue
		}

		reconstructed, splitName := reconstructSplitValue(steps, decoded, i)

		inst := Instruction{Address: decoded[i].Address, Mnemonic: pseudo.Mnemonic}
		for _, bytes := range decoded[i : i+len(steps)] {
			inst.Bytes = append(inst.Bytes, bytes.Bytes...)
		}
		inst.Pseudo = true

		seenPlaceholder := map[string]bool{}
		for stepIdx, step := range steps {
			for opIdx, placeholder := range step.PlaceholderNames {
				if placeholder == splitName || step.SliceWidths[opIdx] > 0 {
					continue
				}
				if seenPlaceholder[placeholder] {
					continue
				}
				seenPlaceholder[placeholder] = true
				fieldName := step.FieldNames[opIdx]
				field, _ := decoded[i+stepIdx].Instruction.FieldByName(fieldName)
				if field.Kind == isa.FieldRegister {
					inst.Operands = append(inst.Operands, Operand{Kind: OperandRegister, Register: decoded[i+stepIdx].Fields[fieldName]})
				}
			}
		}
		if splitName != "" {
			value := reconstructed
			if hint.Kind == isa.HintAddressReconstruction {
				inst.Operands = append(inst.Operands, Operand{Kind: OperandAddress, Value: TargetAddress(def, decoded[i].Address, value)})
			} else {
				inst.Operands = append(inst.Operands, Operand{Kind: OperandImmediate, Value: value})
			}
		}

		return inst, len(steps), nil
	}
	return Instruction{}, 0, nil
}

// reconstructSplitValue reverses the smart-expansion split for the common
// case where no overflow redistribution occurred: it concatenates each
// step's slice-bound field value, taken as an unsigned chunk of the
// declared slice width, in step order with the first step's chunk most
// significant (the same order pkg/assemble's redistributeBits slices them,
// e.g. AUIPC taking [31:12] and ADDI [11:0]). A target value that did
// overflow during assembly — and had bits pushed onto an earlier step —
// cannot be distinguished from one that never did by inspecting the
// decoded bytes alone, so this reconstruction is exact only in the
// non-overflowing case; that is the overwhelming majority of real
// addresses and immediates.
func reconstructSplitValue(steps []assemble.ExpansionStepView, decoded []Decoded, base int) (int64, string) {
	var splitName string
	for _, step := range steps {
		for opIdx, w := range step.SliceWidths {
			if w > 0 {
				splitName = step.PlaceholderNames[opIdx]
			}
		}
	}
	if splitName == "" {
		return 0, ""
	}

	var value int64
	for stepIdx, step := range steps {
		for opIdx, w := range step.SliceWidths {
			if w == 0 || step.PlaceholderNames[opIdx] != splitName {
				continue
			}
			fieldName := step.FieldNames[opIdx]
			raw := decoded[base+stepIdx].Fields[fieldName]
			mask := int64(1)<<uint(w) - 1
			value = value<<uint(w) | (raw & mask)
		}
	}
	return value, splitName
}
