// Package disassemble turns machine code back into assembly text: pattern
// matching by opcode fingerprint, code/data partitioning, pseudo-instruction
// coalescing, label reconstruction, and text formatting, all driven purely
// by an isa.ISA description.
package disassemble

import (
	"strconv"

	"github.com/nsarkis/isax/pkg/bitfield"
	"github.com/nsarkis/isax/pkg/isa"
)

// Decoded is one real instruction decoded from a single instruction-sized
// word: the matched definition plus every non-fixed field's value, already
// sign-extended where the field is signed.
type Decoded struct {
	Address     int
	Bytes       []byte
	Instruction *isa.InstructionDef
	Fields      map[string]int64
}

// Decode matches word's opcode fingerprint against every instruction in
// def, in declaration order, picking the most specific match — the
// candidate(s) whose mask has the most set bits. When more than one
// candidate ties on specificity (e.g. a family of shift instructions
// sharing every fixed bit, distinguished only by a shift-type sub-field
// living inside an otherwise-immediate range), disambiguateByShiftType
// reads that sub-field from word and picks the candidate whose declared
// shift_type matches; failing that, the first declared candidate wins,
// mirroring how a hand-written decoder would list narrower sub-opcodes
// before the broader opcode they nest inside.
func Decode(def *isa.ISA, word uint64, address int, raw []byte) (*Decoded, error) {
	var candidates []*isa.InstructionDef
	bestBits := -1
	for i := range def.Instructions {
		instr := &def.Instructions[i]
		if word&instr.Mask != instr.Value {
			continue
		}
		bits := popcount(instr.Mask)
		switch {
		case bits > bestBits:
			bestBits = bits
			candidates = []*isa.InstructionDef{instr}
		case bits == bestBits:
			candidates = append(candidates, instr)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoMatch
	}
	best := candidates[0]
	if len(candidates) > 1 {
		if chosen := disambiguateByShiftType(word, candidates); chosen != nil {
			best = chosen
		}
	}

	fields := make(map[string]int64, len(best.Fields))
	for _, f := range best.Fields {
		if f.Kind == isa.FieldFixed {
			continue
		}
		bits := bitfield.Extract(word, f.Ranges)
		if f.Signed {
			v, err := bitfield.SignExtend(bits, f.Width(), f.Width())
			if err != nil {
				return nil, err
			}
			fields[f.Name] = v
		} else {
			fields[f.Name] = int64(bits)
		}
	}

	return &Decoded{Address: address, Bytes: raw, Instruction: best, Fields: fields}, nil
}

// disambiguateByShiftType picks, among equally specific candidates, the
// one whose declared shift_type (a binary string, e.g. "1") matches the
// bits of its own shift-type sub-field as read from word. Returns nil if
// no candidate declares a shift_type field or none matches, leaving the
// caller's first-declared fallback in place.
func disambiguateByShiftType(word uint64, candidates []*isa.InstructionDef) *isa.InstructionDef {
	for _, instr := range candidates {
		for _, f := range instr.Fields {
			if f.ShiftType == "" {
				continue
			}
			expected, err := strconv.ParseUint(f.ShiftType, 2, 64)
			if err != nil {
				continue
			}
			if bitfield.Extract(word, f.Ranges) == expected {
				return instr
			}
		}
	}
	return nil
}

func popcount(v uint64) int {
	n := 0
	for v != 0 {
		n += int(v & 1)
		v >>= 1
	}
	return n
}

// TargetAddress resolves a PC-relative field's stored displacement back to
// an absolute address, applying the same base offset the encoder
// subtracted — isa.PCBehavior.OffsetForJumps — so assembly and
// disassembly agree on what "PC-relative" means.
func TargetAddress(def *isa.ISA, address int, displacement int64) int64 {
	return (int64(address+def.PCBehavior.OffsetForJumps) + displacement) & int64(def.AddressMask)
}
