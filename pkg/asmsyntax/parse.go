package asmsyntax

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/nsarkis/isax/pkg/isa"
)

// ErrParseSyntax is the sentinel wrapped by every syntax error this
// package returns, so callers can distinguish lexical/grammar failures
// from the semantic errors pkg/assemble raises later.
var ErrParseSyntax = errors.New("assembly syntax error")

// Parser tokenizes and parses source text according to one ISA's
// declared syntax rules.
type Parser struct {
	isa  *isa.ISA
	expr exprParser
}

// NewParser builds a Parser bound to def's syntax rules.
func NewParser(def *isa.ISA) *Parser {
	return &Parser{isa: def, expr: exprParser{syntax: def.Syntax}}
}

// Parse tokenizes and parses every line of source, returning a Program.
// Parse never resolves symbols; expressions are returned unevaluated for
// pkg/assemble's two-pass driver to evaluate once enough is known.
func (p *Parser) Parse(source string) (*Program, error) {
	prog := &Program{}
	for i, raw := range strings.Split(source, "\n") {
		lineNo := i + 1
		line, err := p.parseLine(raw, lineNo)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNo)
		}
		if line != nil {
			prog.Lines = append(prog.Lines, line)
		}
	}
	return prog, nil
}

func (p *Parser) parseLine(raw string, lineNo int) (*Line, error) {
	stripped := p.stripComment(raw)
	s := newScanner(stripped)
	s.skipSpaces()
	if s.atEnd() {
		return nil, nil
	}

	line := &Line{Number: lineNo, Raw: raw}

	if label, ok := p.tryParseLabel(s); ok {
		line.Label = label
		s.skipSpaces()
	}
	if s.atEnd() {
		if line.Label == "" {
			return nil, nil
		}
		return line, nil
	}

	word := peekWord(s)
	if def, ok := p.isa.DirectiveByName(p.normalize(word)); ok {
		s.consumeWhile(isIdentCont)
		dir, err := p.parseDirectiveArgs(def.Name, s)
		if err != nil {
			return nil, err
		}
		line.Directive = dir
		return line, nil
	}

	inst, err := p.parseInstruction(s)
	if err != nil {
		return nil, err
	}
	line.Instruction = inst
	return line, nil
}

func peekWord(s *scanner) string {
	save := s.pos
	word := s.consumeWhile(isIdentCont)
	s.pos = save
	return word
}

func (p *Parser) normalize(s string) string {
	if p.isa.Syntax.CaseSensitive {
		return s
	}
	return lowerASCII(s)
}

// stripComment removes everything from the first comment character to
// the end of the line, honoring every comment character the ISA
// declares (";", "//", "#", ...).
func (p *Parser) stripComment(line string) string {
	best := -1
	for _, marker := range p.isa.Syntax.CommentChars {
		if marker == "" {
			continue
		}
		if idx := strings.Index(line, marker); idx != -1 && (best == -1 || idx < best) {
			best = idx
		}
	}
	if best == -1 {
		return line
	}
	return line[:best]
}

// tryParseLabel recognizes a name followed by the ISA's declared label
// suffix (e.g. "name:") at the start of the line. An ISA that declares no
// label suffix has no labels.
func (p *Parser) tryParseLabel(s *scanner) (string, bool) {
	save := s.pos
	if !isIdentStart(s.peek()) {
		return "", false
	}
	name := s.consumeWhile(isIdentCont)
	suffix := p.isa.Syntax.LabelSuffix
	if suffix == "" {
		s.pos = save
		return "", false
	}
	if !s.consumePrefix(suffix) {
		s.pos = save
		return "", false
	}
	return p.normalizeIdentForLabel(name), true
}

func (p *Parser) normalizeIdentForLabel(name string) string {
	if p.isa.Syntax.CaseSensitive {
		return name
	}
	return lowerASCII(name)
}

func (p *Parser) parseDirectiveArgs(name string, s *scanner) (*Directive, error) {
	dir := &Directive{Name: name}
	s.skipSpaces()
	if s.atEnd() {
		return dir, nil
	}
	for {
		s.skipSpaces()
		if s.peek() == '"' {
			str, err := p.parseStringLiteral(s)
			if err != nil {
				return nil, err
			}
			dir.Strings = append(dir.Strings, str)
		} else {
			e, err := p.expr.parse(s)
			if err != nil {
				return nil, errors.Wrapf(ErrParseSyntax, "directive %s: %v", name, err)
			}
			dir.Args = append(dir.Args, e)
		}
		s.skipSpaces()
		if !p.consumeSeparator(s) {
			break
		}
	}
	return dir, nil
}

func (p *Parser) parseStringLiteral(s *scanner) (string, error) {
	s.advance() // opening quote
	var b strings.Builder
	for {
		if s.atEnd() {
			return "", errors.Wrap(ErrParseSyntax, "unterminated string literal")
		}
		c := s.advance()
		if c == '"' {
			break
		}
		if c == '\\' && !s.atEnd() {
			b.WriteByte(unescape(s.advance()))
			continue
		}
		b.WriteByte(c)
	}
	return b.String(), nil
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case '0':
		return 0
	default:
		return c
	}
}

func (p *Parser) consumeSeparator(s *scanner) bool {
	for _, sep := range p.isa.Syntax.OperandSeparators {
		if sep != "" && s.consumePrefix(sep) {
			return true
		}
	}
	return false
}

func (p *Parser) parseInstruction(s *scanner) (*Instruction, error) {
	if !isIdentStart(s.peek()) {
		return nil, errors.Wrapf(ErrParseSyntax, "expected mnemonic, found %q", s.remainder())
	}
	mnemonic := s.consumeWhile(isIdentCont)
	inst := &Instruction{Mnemonic: mnemonic}
	s.skipSpaces()
	if s.atEnd() {
		return inst, nil
	}
	for {
		s.skipSpaces()
		if s.atEnd() {
			break
		}
		op, err := p.parseOperand(s)
		if err != nil {
			return nil, errors.Wrapf(err, "instruction %s", mnemonic)
		}
		inst.Operands = append(inst.Operands, op)
		s.skipSpaces()
		if !p.consumeSeparator(s) {
			break
		}
	}
	return inst, nil
}

// parseOperand classifies one operand using the ISA's memory-operand
// shape ("offset(base)"), register prefix, and immediate prefix.
func (p *Parser) parseOperand(s *scanner) (Operand, error) {
	if p.isa.Syntax.ImmediatePrefix != "" && s.consumePrefix(p.isa.Syntax.ImmediatePrefix) {
		e, err := p.expr.parse(s)
		if err != nil {
			return Operand{}, errors.Wrap(ErrParseSyntax, err.Error())
		}
		return Operand{Kind: OperandImmediate, Value: e}, nil
	}

	if looksLikeMemoryOperand(p.isa.Syntax.MemoryShape) {
		if op, ok, err := p.tryParseMemoryOperand(s); err != nil {
			return Operand{}, err
		} else if ok {
			return op, nil
		}
	}

	if p.isa.Syntax.RegisterPrefix != "" {
		if s.startsWith(p.isa.Syntax.RegisterPrefix) {
			save := s.pos
			s.consumePrefix(p.isa.Syntax.RegisterPrefix)
			name := s.consumeWhile(isIdentCont)
			if _, ok := p.isa.ResolveRegister(p.isa.Syntax.RegisterPrefix + name); ok {
				return Operand{Kind: OperandRegister, Register: p.isa.Syntax.RegisterPrefix + name}, nil
			}
			if _, ok := p.isa.ResolveRegister(name); ok {
				return Operand{Kind: OperandRegister, Register: name}, nil
			}
			s.pos = save
		}
	} else if isIdentStart(s.peek()) {
		save := s.pos
		name := s.consumeWhile(isIdentCont)
		if _, ok := p.isa.ResolveRegister(name); ok {
			return Operand{Kind: OperandRegister, Register: name}, nil
		}
		s.pos = save
	}

	e, err := p.expr.parse(s)
	if err != nil {
		return Operand{}, errors.Wrap(ErrParseSyntax, err.Error())
	}
	return Operand{Kind: OperandImmediate, Value: e}, nil
}

func looksLikeMemoryOperand(shape string) bool {
	return strings.Contains(shape, "(")
}

// tryParseMemoryOperand recognizes "offset(base)": an expression
// followed by a parenthesized register name. It backtracks cleanly if the
// parenthesized part is not a known register, since a bare parenthesized
// expression like "(1+2)" is valid immediate syntax too.
func (p *Parser) tryParseMemoryOperand(s *scanner) (Operand, bool, error) {
	save := s.pos
	offset, err := p.expr.parse(s)
	if err != nil {
		s.pos = save
		return Operand{}, false, nil
	}
	s.skipSpaces()
	if s.peek() != '(' {
		s.pos = save
		return Operand{}, false, nil
	}
	s.advance()
	base := s.consumeWhile(isIdentCont)
	s.skipSpaces()
	if s.peek() != ')' {
		s.pos = save
		return Operand{}, false, nil
	}
	if _, ok := p.isa.ResolveRegister(base); !ok {
		s.pos = save
		return Operand{}, false, nil
	}
	s.advance()
	return Operand{Kind: OperandMemory, Offset: offset, Base: base}, true, nil
}
