package assemble

import (
	"github.com/pkg/errors"

	"github.com/nsarkis/isax/pkg/asmsyntax"
	"github.com/nsarkis/isax/pkg/bitfield"
	"github.com/nsarkis/isax/pkg/isa"
	"github.com/nsarkis/isax/pkg/symtab"
)

// runDirective evaluates one directive and returns the bytes it
// contributes at the current program counter. It is called identically
// during both passes; during pass one the driver only needs the byte
// count to advance the program counter, while pass two also keeps the
// bytes. Directives that define new symbols (.equ, .global) only take
// effect when definePass is true, since the symbol table must not see
// the same definition twice.
func (a *assembler) runDirective(dir *asmsyntax.Directive, def *isa.DirectiveDef, resolve asmsyntax.Resolver, definePass bool) ([]byte, error) {
	switch def.Kind {
	case isa.DirSetOrigin:
		if len(dir.Args) < 1 {
			return nil, errors.Wrapf(ErrDirectiveArgument, "%s requires an address", dir.Name)
		}
		addr, err := dir.Args[0].Eval(resolve)
		if err != nil {
			return nil, errors.Wrapf(err, "%s argument", dir.Name)
		}
		a.pc = int(addr)
		if !a.haveOrigin {
			a.origin = int(addr)
			a.haveOrigin = true
		}
		return nil, nil

	case isa.DirSelectSection:
		if len(dir.Args) >= 1 {
			if name, ok := asmsyntax.Identifier(dir.Args[0]); ok {
				a.section = name
			}
		}
		return nil, nil

	case isa.DirDeclareGlobal:
		if definePass {
			for _, arg := range dir.Args {
				if name, ok := asmsyntax.Identifier(arg); ok {
					a.globals = append(a.globals, name)
				}
			}
		}
		return nil, nil

	case isa.DirDefineConstant:
		if len(dir.Args) < 2 {
			return nil, errors.Wrapf(ErrDirectiveArgument, "%s requires a name and a value", dir.Name)
		}
		name, ok := asmsyntax.Identifier(dir.Args[0])
		if !ok {
			return nil, errors.Wrapf(ErrDirectiveArgument, "%s: first argument must be a name", dir.Name)
		}
		if definePass {
			value, err := dir.Args[1].Eval(resolve)
			if err != nil {
				return nil, errors.Wrapf(err, "%s %s", dir.Name, name)
			}
			if err := a.table.Define(name, symtab.KindConstant, value, a.lineNo); err != nil {
				return nil, errors.Wrapf(err, "%s", dir.Name)
			}
		}
		return nil, nil

	case isa.DirEmitWords:
		out := make([]byte, 0, len(dir.Args)*(a.isa.WordSize/8))
		for _, arg := range dir.Args {
			v, err := arg.Eval(resolve)
			if err != nil {
				return nil, errors.Wrapf(err, "%s argument", dir.Name)
			}
			out = append(out, wordToBytes(uint64(v), a.isa.WordSize, a.isa.Endianness)...)
		}
		return out, nil

	case isa.DirEmitBytes:
		out := make([]byte, 0, len(dir.Args))
		for _, arg := range dir.Args {
			v, err := arg.Eval(resolve)
			if err != nil {
				return nil, errors.Wrapf(err, "%s argument", dir.Name)
			}
			out = append(out, byte(v))
		}
		return out, nil

	case isa.DirEmitString:
		var out []byte
		for _, s := range dir.Strings {
			out = append(out, []byte(s)...)
		}
		return out, nil

	case isa.DirEmitStringNul:
		var out []byte
		for _, s := range dir.Strings {
			out = append(out, []byte(s)...)
			out = append(out, 0)
		}
		return out, nil

	case isa.DirReserveSpace:
		if len(dir.Args) < 1 {
			return nil, errors.Wrapf(ErrDirectiveArgument, "%s requires a byte count", dir.Name)
		}
		count, err := dir.Args[0].Eval(resolve)
		if err != nil {
			return nil, errors.Wrapf(err, "%s argument", dir.Name)
		}
		fill := byte(0)
		if len(dir.Args) >= 2 {
			v, err := dir.Args[1].Eval(resolve)
			if err != nil {
				return nil, errors.Wrapf(err, "%s fill value", dir.Name)
			}
			fill = byte(v)
		}
		out := make([]byte, count)
		for i := range out {
			out[i] = fill
		}
		return out, nil

	case isa.DirAlign:
		if len(dir.Args) < 1 {
			return nil, errors.Wrapf(ErrDirectiveArgument, "%s requires an alignment", dir.Name)
		}
		align, err := dir.Args[0].Eval(resolve)
		if err != nil {
			return nil, errors.Wrapf(err, "%s argument", dir.Name)
		}
		if !bitfield.IsPowerOfTwo(int(align)) {
			return nil, errors.Wrapf(ErrDirectiveArgument, "%s alignment must be a positive power of two", dir.Name)
		}
		pad := (int(align) - (a.pc % int(align))) % int(align)
		return make([]byte, pad), nil

	case isa.DirFill:
		if len(dir.Args) < 1 {
			return nil, errors.Wrapf(ErrDirectiveArgument, "%s requires a count", dir.Name)
		}
		count, err := dir.Args[0].Eval(resolve)
		if err != nil {
			return nil, errors.Wrapf(err, "%s count", dir.Name)
		}
		value := int64(0)
		if len(dir.Args) >= 2 {
			value, err = dir.Args[1].Eval(resolve)
			if err != nil {
				return nil, errors.Wrapf(err, "%s value", dir.Name)
			}
		}
		width := 1
		if len(dir.Args) >= 3 {
			w, err := dir.Args[2].Eval(resolve)
			if err != nil {
				return nil, errors.Wrapf(err, "%s width", dir.Name)
			}
			width = int(w)
		}
		unit := wordToBytes(uint64(value), width*8, a.isa.Endianness)
		out := make([]byte, 0, int(count)*width)
		for i := int64(0); i < count; i++ {
			out = append(out, unit...)
		}
		return out, nil

	default:
		return nil, errors.Wrapf(ErrUnknownDirective, "%s", dir.Name)
	}
}
