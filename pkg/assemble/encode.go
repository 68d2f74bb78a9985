package assemble

import (
	"github.com/pkg/errors"

	"github.com/nsarkis/isax/pkg/bitfield"
	"github.com/nsarkis/isax/pkg/isa"
)

// OperandValues maps a real instruction's non-fixed field names to their
// resolved integer value: a register index for FieldRegister, a signed
// or unsigned quantity for FieldImmediate/FieldAddress.
type OperandValues map[string]int64

// EncodeInstruction packs one real instruction into its raw word bytes.
// Fixed fields take their declared constant; every other field must have
// an entry in values.
func EncodeInstruction(def *isa.ISA, instr *isa.InstructionDef, values OperandValues) ([]byte, error) {
	var word uint64
	for i := range instr.Fields {
		f := &instr.Fields[i]
		var raw uint64
		var err error
		switch f.Kind {
		case isa.FieldFixed:
			raw = f.FixedValue
		case isa.FieldRegister:
			v, ok := values[f.Name]
			if !ok {
				return nil, errors.Wrapf(ErrOperandArity, "instruction %s: missing value for field %q", instr.Mnemonic, f.Name)
			}
			raw, err = bitfield.EncodeField(v, f.Width(), false)
			if err != nil {
				return nil, errors.Wrapf(ErrRegisterUnknown, "instruction %s field %q: %v", instr.Mnemonic, f.Name, err)
			}
		case isa.FieldImmediate, isa.FieldAddress:
			v, ok := values[f.Name]
			if !ok {
				return nil, errors.Wrapf(ErrOperandArity, "instruction %s: missing value for field %q", instr.Mnemonic, f.Name)
			}
			raw, err = bitfield.EncodeField(v, f.Width(), f.Signed)
			if err != nil {
				sentinel := ErrImmediateOutOfRange
				if f.Kind == isa.FieldAddress {
					sentinel = ErrAddressOutOfRange
				}
				return nil, errors.Wrapf(sentinel, "instruction %s field %q: %v", instr.Mnemonic, f.Name, err)
			}
		}
		word, err = bitfield.Insert(word, f.Ranges, raw)
		if err != nil {
			return nil, errors.Wrapf(err, "instruction %s field %q", instr.Mnemonic, f.Name)
		}
	}

	width := def.InstructionSize
	if def.VariableLength.Enabled && instr.LengthBits > 0 {
		width = instr.LengthBits
	}
	return wordToBytes(word, width, def.Endianness), nil
}

// wordToBytes serializes the low bitWidth bits of word into
// ceil(bitWidth/8) bytes in the given endianness.
func wordToBytes(word uint64, bitWidth int, endian isa.Endianness) []byte {
	n := (bitWidth + 7) / 8
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		shift := uint(i * 8)
		b := byte(word >> shift)
		if endian == isa.Big {
			out[n-1-i] = b
		} else {
			out[i] = b
		}
	}
	return out
}
