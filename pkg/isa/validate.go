package isa

import (
	"github.com/pkg/errors"

	"github.com/nsarkis/isax/pkg/bitfield"
)

// Validate checks structural invariants and populates every derived field
// (parsed bit ranges, opcode fingerprints, lookup indices). Callers must
// call Validate exactly once after building or loading an ISA and before
// passing it to pkg/assemble or pkg/disassemble.
func (isa *ISA) Validate() error {
	if isa.InstructionSize <= 0 {
		return errors.New("instruction_size must be positive")
	}
	if isa.WordSize <= 0 {
		return errors.New("word_size must be positive")
	}
	mask, err := bitfield.CreateMask(isa.AddressBits)
	if err != nil {
		return errors.Wrap(err, "address_bits")
	}
	isa.AddressMask = mask

	isa.instrIndex = make(map[string]*InstructionDef, len(isa.Instructions))
	for i := range isa.Instructions {
		def := &isa.Instructions[i]
		width := isa.InstructionSize
		if isa.VariableLength.Enabled && def.LengthBits > 0 {
			width = def.LengthBits
		}
		if err := validateFields(def, width); err != nil {
			return errors.Wrapf(err, "instruction %q", def.Mnemonic)
		}
		if err := computeFingerprint(def); err != nil {
			return errors.Wrapf(err, "instruction %q", def.Mnemonic)
		}
		key := isa.normalizeMnemonic(def.Mnemonic)
		if _, dup := isa.instrIndex[key]; dup {
			return errors.Wrapf(ErrDuplicateMnemonic, "instruction %q", def.Mnemonic)
		}
		isa.instrIndex[key] = def
	}

	isa.pseudoIndex = make(map[string]*PseudoInstructionDef, len(isa.PseudoInstructions))
	for i := range isa.PseudoInstructions {
		def := &isa.PseudoInstructions[i]
		key := isa.normalizeMnemonic(def.Mnemonic)
		if _, dup := isa.instrIndex[key]; dup {
			return errors.Wrapf(ErrDuplicateMnemonic, "pseudo-instruction %q collides with a real instruction", def.Mnemonic)
		}
		if _, dup := isa.pseudoIndex[key]; dup {
			return errors.Wrapf(ErrDuplicateMnemonic, "pseudo-instruction %q", def.Mnemonic)
		}
		isa.pseudoIndex[key] = def
	}

	isa.directiveIndex = make(map[string]*DirectiveDef)
	for i := range isa.Directives {
		def := &isa.Directives[i]
		isa.directiveIndex[def.Name] = def
		for _, alias := range def.Aliases {
			isa.directiveIndex[alias] = def
		}
	}

	isa.aliasIndex = make(map[string]Register)
	for category, regs := range isa.Registers {
		for _, r := range regs {
			r.Category = category
			isa.indexRegisterAliases(r)
		}
	}

	return nil
}

func (isa *ISA) indexRegisterAliases(r Register) {
	add := func(name string) {
		key := name
		if !isa.Syntax.CaseSensitive {
			key = lower(name)
		}
		isa.aliasIndex[key] = r
	}
	add(r.Name)
	for _, alias := range r.Aliases {
		add(alias)
	}
}

// validateFields checks that a field's bit ranges, taken together across
// the instruction, partition [0, width) exactly once with no gaps and no
// overlaps, and parses each field's BitRange into Ranges.
func validateFields(def *InstructionDef, width int) error {
	covered := make([]bool, width)
	for i := range def.Fields {
		f := &def.Fields[i]
		ranges, err := bitfield.ParseRange(f.BitRange)
		if err != nil {
			return errors.Wrapf(err, "field %q", f.Name)
		}
		f.Ranges = ranges
		for _, r := range ranges {
			if r.High >= width {
				return errors.Wrapf(ErrFieldCoverage, "field %q bit %d exceeds instruction width %d", f.Name, r.High, width)
			}
			for b := r.Low; b <= r.High; b++ {
				if covered[b] {
					return errors.Wrapf(ErrFieldCoverage, "bit %d covered by more than one field (field %q)", b, f.Name)
				}
				covered[b] = true
			}
		}
		if f.Kind == FieldFixed {
			fw := bitfield.TotalWidth(ranges)
			if fw < 64 && f.FixedValue >= uint64(1)<<uint(fw) {
				return errors.Wrapf(ErrFingerprintInvalid, "field %q fixed_value %d does not fit in %d bits", f.Name, f.FixedValue, fw)
			}
		}
	}
	for b, ok := range covered {
		if !ok {
			return errors.Wrapf(ErrFieldCoverage, "bit %d is not covered by any field", b)
		}
	}
	return nil
}

// computeFingerprint derives (Value, Mask) from an instruction's fixed
// fields: Mask has a 1 in every bit position belonging to a fixed field,
// Value holds the fixed field contents at those positions and zero
// elsewhere. Two instructions with overlapping fingerprints under the
// intersection of their masks would be ambiguous; the decoder's
// specificity tie-break (widest mask wins) resolves legitimate overlaps
// such as a shift-immediate sub-opcode nested inside a broader opcode.
func computeFingerprint(def *InstructionDef) error {
	var value, mask uint64
	for _, f := range def.Fields {
		if f.Kind != FieldFixed {
			continue
		}
		fullOnes, err := bitfield.CreateMask(bitfield.TotalWidth(f.Ranges))
		if err != nil {
			return err
		}
		fieldMask, err := bitfield.Insert(0, f.Ranges, fullOnes)
		if err != nil {
			return err
		}
		fieldValue, err := bitfield.Insert(0, f.Ranges, f.FixedValue)
		if err != nil {
			return err
		}
		mask |= fieldMask
		value |= fieldValue
	}
	if value&^mask != 0 {
		return errors.Wrapf(ErrFingerprintInvalid, "instruction %q", def.Mnemonic)
	}
	def.Value = value
	def.Mask = mask
	return nil
}
