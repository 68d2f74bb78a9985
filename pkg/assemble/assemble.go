// Package assemble implements the two-pass assembly driver: directive
// execution, pseudo-instruction expansion, and instruction encoding,
// combined over an already-parsed asmsyntax.Program.
package assemble

import (
	"github.com/pkg/errors"

	"github.com/nsarkis/isax/pkg/asmsyntax"
	"github.com/nsarkis/isax/pkg/isa"
	"github.com/nsarkis/isax/pkg/symtab"
)

// span is one contiguous run of bytes emitted while a.section held a
// particular name, in source order. The final Result splits these back
// into code and data by section name.
type span struct {
	section string
	bytes   []byte
}

type assembler struct {
	isa        *isa.ISA
	table      *symtab.Table
	pc         int
	origin     int
	haveOrigin bool
	section    string
	globals    []string
	lineNo     int
	spans      []span
	trace      func(format string, args ...interface{})
}

func (a *assembler) tracef(format string, args ...interface{}) {
	if a.trace != nil {
		a.trace(format, args...)
	}
}

// Result is the output of a successful assembly: the code and data
// images (split by section name) plus the symbol table for
// --list-symbols and container symbol-table serialization.
type Result struct {
	Origin  int
	Code    []byte
	Data    []byte
	Symbols []symtab.Symbol
	Globals []string
}

// Assemble runs the two-pass assembly driver over source text: pass one
// assigns addresses and evaluates directives that produce no bytes
// (.equ, .global, .org, .section), pass two resolves every expression
// and emits the final bytes. trace is nil-safe and, when non-nil, is
// called with progress lines a caller can surface under --verbose; pass
// nil to run silently.
func Assemble(def *isa.ISA, source string, origin int, trace func(format string, args ...interface{})) (*Result, error) {
	parser := asmsyntax.NewParser(def)
	prog, err := parser.Parse(source)
	if err != nil {
		return nil, err
	}

	a := &assembler{
		isa:     def,
		table:   symtab.New(),
		pc:      origin,
		origin:  origin,
		section: "text",
		trace:   trace,
	}

	a.tracef("pass one: %d source line(s)", len(prog.Lines))
	if err := a.passOne(prog); err != nil {
		return nil, errors.Wrap(err, "pass one")
	}

	a.pc = a.origin
	a.section = "text"
	a.spans = nil
	a.tracef("pass two: origin=0x%x", a.origin)
	if err := a.passTwo(prog); err != nil {
		return nil, errors.Wrap(err, "pass two")
	}

	if unresolved := a.table.Unresolved(); len(unresolved) > 0 {
		return nil, errors.Wrapf(symtab.ErrUndefinedSymbol, "%d unresolved reference(s), starting with %q", len(unresolved), unresolved[0])
	}

	result := &Result{Origin: a.origin, Symbols: a.table.All(), Globals: a.globals}
	for _, s := range a.spans {
		if s.section == "text" || s.section == "" {
			result.Code = append(result.Code, s.bytes...)
		} else {
			result.Data = append(result.Data, s.bytes...)
		}
	}
	a.tracef("assembled %d code byte(s), %d data byte(s), %d symbol(s)", len(result.Code), len(result.Data), len(result.Symbols))
	return result, nil
}

// passOne walks every line, defining labels and constants and advancing
// the program counter by each directive/instruction's static size,
// without requiring every symbol to already be defined.
func (a *assembler) passOne(prog *asmsyntax.Program) error {
	resolve := a.passOneResolver()
	for _, line := range prog.Lines {
		a.lineNo = line.Number
		if line.Label != "" {
			if err := a.table.Define(line.Label, symtab.KindLabel, int64(a.pc), line.Number); err != nil {
				return errors.Wrapf(err, "line %d", line.Number)
			}
		}
		switch {
		case line.Directive != nil:
			size, err := a.sizeDirective(line.Directive, resolve)
			if err != nil {
				return errors.Wrapf(err, "line %d", line.Number)
			}
			a.pc += size
		case line.Instruction != nil:
			size, err := a.sizeInstruction(line.Instruction)
			if err != nil {
				return errors.Wrapf(err, "line %d", line.Number)
			}
			a.pc += size
		}
	}
	return nil
}

// passOneResolver resolves a name from whatever the symbol table knows
// so far, recording the reference as a potential forward reference.
func (a *assembler) passOneResolver() asmsyntax.Resolver {
	return func(name string) (int64, bool) {
		return a.table.Reference(name, a.lineNo)
	}
}

// sizeDirective returns the byte size of a directive for pass one,
// additionally applying .org/.section/.equ/.global side effects.
func (a *assembler) sizeDirective(dir *asmsyntax.Directive, resolve asmsyntax.Resolver) (int, error) {
	def, ok := a.isa.DirectiveByName(dir.Name)
	if !ok {
		return 0, errors.Wrapf(ErrUnknownDirective, "%s", dir.Name)
	}
	bytes, err := a.runDirective(dir, def, resolve, true)
	if err != nil {
		return 0, err
	}
	return len(bytes), nil
}

// sizeInstruction returns the static byte size of a (possibly pseudo)
// instruction: one instruction width for a real mnemonic, or the number
// of expansion steps times the instruction width for a pseudo mnemonic.
func (a *assembler) sizeInstruction(inst *asmsyntax.Instruction) (int, error) {
	if real, ok := a.isa.InstructionByMnemonic(inst.Mnemonic); ok {
		width := a.isa.InstructionSize
		if a.isa.VariableLength.Enabled && real.LengthBits > 0 {
			width = real.LengthBits
		}
		return (width + 7) / 8, nil
	}
	if pseudo, ok := a.isa.PseudoByMnemonic(inst.Mnemonic); ok {
		steps, err := parseExpansionTemplate(pseudo.ExpansionTemplate)
		if err != nil {
			return 0, err
		}
		return len(steps) * a.instructionSizeBytes(), nil
	}
	return 0, errors.Wrapf(ErrUnknownMnemonic, "%s", inst.Mnemonic)
}

func (a *assembler) instructionSizeBytes() int {
	return (a.isa.InstructionSize + 7) / 8
}

// passTwo re-walks the program with every symbol now defined, this time
// evaluating every expression for real and emitting the final bytes.
func (a *assembler) passTwo(prog *asmsyntax.Program) error {
	resolve := a.passTwoResolver()
	for _, line := range prog.Lines {
		a.lineNo = line.Number
		switch {
		case line.Directive != nil:
			def, ok := a.isa.DirectiveByName(line.Directive.Name)
			if !ok {
				return errors.Wrapf(ErrUnknownDirective, "line %d: %s", line.Number, line.Directive.Name)
			}
			bytes, err := a.runDirective(line.Directive, def, resolve, false)
			if err != nil {
				return errors.Wrapf(err, "line %d", line.Number)
			}
			a.emit(bytes)
			a.pc += len(bytes)
		case line.Instruction != nil:
			bytes, err := a.encodeLine(line.Instruction, resolve)
			if err != nil {
				return errors.Wrapf(err, "line %d", line.Number)
			}
			a.emit(bytes)
			a.pc += len(bytes)
		}
	}
	return nil
}

func (a *assembler) passTwoResolver() asmsyntax.Resolver {
	return func(name string) (int64, bool) {
		v, err := a.table.Resolve(name)
		if err != nil {
			return 0, false
		}
		return v, true
	}
}

func (a *assembler) emit(bytes []byte) {
	if len(bytes) == 0 {
		return
	}
	if n := len(a.spans); n > 0 && a.spans[n-1].section == a.section {
		a.spans[n-1].bytes = append(a.spans[n-1].bytes, bytes...)
		return
	}
	a.spans = append(a.spans, span{section: a.section, bytes: append([]byte(nil), bytes...)})
}

// encodeLine produces the final bytes for one instruction line, whether
// it names a real instruction or a pseudo-instruction requiring
// expansion.
func (a *assembler) encodeLine(inst *asmsyntax.Instruction, resolve asmsyntax.Resolver) ([]byte, error) {
	if real, ok := a.isa.InstructionByMnemonic(inst.Mnemonic); ok {
		values, err := a.bindOperands(real, inst.Operands, resolve)
		if err != nil {
			return nil, err
		}
		return EncodeInstruction(a.isa, real, values)
	}
	if pseudo, ok := a.isa.PseudoByMnemonic(inst.Mnemonic); ok {
		expanded, err := Expand(a.isa, pseudo, inst.Operands, resolve, a.pc, a.instructionSizeBytes())
		if err != nil {
			return nil, err
		}
		var out []byte
		for _, step := range expanded {
			bytes, err := EncodeInstruction(a.isa, step.Instruction, step.Values)
			if err != nil {
				return nil, err
			}
			out = append(out, bytes...)
		}
		return out, nil
	}
	return nil, errors.Wrapf(ErrUnknownMnemonic, "%s", inst.Mnemonic)
}

// bindOperands matches a real instruction's operands to its non-fixed
// fields by position: an ordinary operand consumes the next field, while
// a memory operand ("offset(base)") consumes two — a register field for
// its base and an immediate/address field for its offset — since the
// source wrote one syntactic operand where the instruction declares two.
// PC-relative fields have their declared base address subtracted here.
func (a *assembler) bindOperands(instr *isa.InstructionDef, operands []asmsyntax.Operand, resolve asmsyntax.Resolver) (OperandValues, error) {
	var nonFixed []isa.FieldDef
	for _, f := range instr.Fields {
		if f.Kind != isa.FieldFixed {
			nonFixed = append(nonFixed, f)
		}
	}

	values := OperandValues{}
	fieldIdx := 0
	nextField := func() (isa.FieldDef, error) {
		if fieldIdx >= len(nonFixed) {
			return isa.FieldDef{}, errors.Wrapf(ErrOperandArity, "instruction %s: too many operands", instr.Mnemonic)
		}
		f := nonFixed[fieldIdx]
		fieldIdx++
		return f, nil
	}

	for opIdx, op := range operands {
		if op.Kind == asmsyntax.OperandMemory {
			baseField, err := nextField()
			if err != nil {
				return nil, err
			}
			offsetField, err := nextField()
			if err != nil {
				return nil, err
			}
			if baseField.Kind != isa.FieldRegister {
				baseField, offsetField = offsetField, baseField
			}
			reg, ok := a.isa.ResolveRegister(op.Base)
			if !ok {
				return nil, errors.Wrapf(ErrRegisterUnknown, "%q", op.Base)
			}
			values[baseField.Name] = int64(reg.Index)

			v, err := op.Offset.Eval(resolve)
			if err != nil {
				return nil, errors.Wrapf(err, "instruction %s operand %d", instr.Mnemonic, opIdx+1)
			}
			if offsetField.PCRelative {
				v -= int64(a.pc + a.isa.PCBehavior.OffsetForJumps)
			}
			values[offsetField.Name] = v
			continue
		}

		field, err := nextField()
		if err != nil {
			return nil, err
		}
		var raw int64
		switch field.Kind {
		case isa.FieldRegister:
			if op.Kind != asmsyntax.OperandRegister {
				return nil, errors.Wrapf(ErrOperandType, "instruction %s operand %d: expected a register", instr.Mnemonic, opIdx+1)
			}
			reg, ok := a.isa.ResolveRegister(op.Register)
			if !ok {
				return nil, errors.Wrapf(ErrRegisterUnknown, "%q", op.Register)
			}
			raw = int64(reg.Index)

		case isa.FieldImmediate, isa.FieldAddress:
			if op.Kind != asmsyntax.OperandImmediate {
				return nil, errors.Wrapf(ErrOperandType, "instruction %s operand %d: expected an immediate", instr.Mnemonic, opIdx+1)
			}
			v, err := op.Value.Eval(resolve)
			if err != nil {
				return nil, errors.Wrapf(err, "instruction %s operand %d", instr.Mnemonic, opIdx+1)
			}
			raw = v
			if field.PCRelative {
				raw -= int64(a.pc + a.isa.PCBehavior.OffsetForJumps)
			}
		}
		values[field.Name] = raw
	}

	if fieldIdx != len(nonFixed) {
		return nil, errors.Wrapf(ErrOperandArity, "instruction %s: expected %d operands, got %d", instr.Mnemonic, len(nonFixed), len(operands))
	}
	return values, nil
}
