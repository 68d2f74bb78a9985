// Package symtab implements the assembler's two-pass symbol table (its
// Symbol type is also what pkg/container stores in a v2 image): labels and
// constants defined during pass one, resolved against forward references
// recorded during the same pass, and read back during pass two.
package symtab

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Kind classifies what a symbol stands for.
type Kind string

const (
	KindLabel    Kind = "label"
	KindConstant Kind = "constant"
)

// Symbol is one defined name: a label bound to an address or a constant
// bound to a value.
type Symbol struct {
	Name       string
	Kind       Kind
	Value      int64
	Defined    bool
	Global     bool
	ReferencedAt []int // source line numbers of references made once the symbol was already defined
}

var (
	// ErrUndefinedSymbol is returned when pass two cannot resolve a
	// symbol referenced during pass one.
	ErrUndefinedSymbol = errors.New("undefined symbol")
	// ErrSymbolRedefinition is returned when Define is called twice for
	// the same name within the same scope.
	ErrSymbolRedefinition = errors.New("symbol redefined")
)

// Table is a two-pass symbol table. A label written as ".loop" inside a
// scope named by the most recently defined global label "main" is stored
// internally as "main.loop", mirroring the dotted local-label convention
// widely used in two-pass assemblers.
type Table struct {
	symbols      map[string]*Symbol
	currentScope string
	forwardRefs  map[string][]int
}

// New returns an empty symbol table.
func New() *Table {
	return &Table{
		symbols:     make(map[string]*Symbol),
		forwardRefs: make(map[string][]int),
	}
}

// Reset clears all definitions and references, readying the table for a
// fresh pass one. Pass two reads definitions made during pass one, so it
// must not call Reset between passes.
func (t *Table) Reset() {
	t.symbols = make(map[string]*Symbol)
	t.forwardRefs = make(map[string][]int)
	t.currentScope = ""
}

// qualify expands a locally-scoped name (one beginning with ".") to its
// scope-qualified form. Global names pass through unchanged; Define, not
// qualify, makes a newly defined global name the scope for later locals.
func (t *Table) qualify(name string) string {
	if strings.HasPrefix(name, ".") && t.currentScope != "" {
		return t.currentScope + name
	}
	return name
}

// Define binds name to value as the given kind at the current source
// line. Defining the same name twice is an error; defining a global
// (non-dotted) label also opens a new local-label scope for subsequent
// dotted labels.
func (t *Table) Define(name string, kind Kind, value int64, line int) error {
	qualified := t.qualify(name)
	if existing, ok := t.symbols[qualified]; ok && existing.Defined {
		return errors.Wrapf(ErrSymbolRedefinition, "%q at line %d (first defined for %q)", name, line, existing.Name)
	}
	sym, ok := t.symbols[qualified]
	if !ok {
		sym = &Symbol{Name: qualified, Kind: kind}
		t.symbols[qualified] = sym
	}
	sym.Kind = kind
	sym.Value = value
	sym.Defined = true
	sym.Global = !strings.HasPrefix(name, ".")

	if !strings.HasPrefix(name, ".") {
		t.currentScope = name
	}
	return nil
}

// Reference records that name was used at line, returning its current
// value (which may later prove to be a forward reference the caller must
// re-resolve once pass one completes). ok is false if name is not yet
// defined.
func (t *Table) Reference(name string, line int) (value int64, ok bool) {
	qualified := t.qualify(name)
	t.forwardRefs[qualified] = append(t.forwardRefs[qualified], line)
	sym, exists := t.symbols[qualified]
	if !exists || !sym.Defined {
		return 0, false
	}
	sym.ReferencedAt = append(sym.ReferencedAt, line)
	return sym.Value, true
}

// Resolve looks up a symbol's value without recording a reference. It is
// used by pass two, once every definition is known.
func (t *Table) Resolve(name string) (int64, error) {
	qualified := t.qualify(name)
	sym, ok := t.symbols[qualified]
	if !ok || !sym.Defined {
		return 0, errors.Wrapf(ErrUndefinedSymbol, "%q", name)
	}
	return sym.Value, nil
}

// Lookup returns the full Symbol record for name, if defined.
func (t *Table) Lookup(name string) (Symbol, bool) {
	qualified := t.qualify(name)
	sym, ok := t.symbols[qualified]
	if !ok {
		return Symbol{}, false
	}
	return *sym, true
}

// Unresolved returns the names referenced but never defined, in the
// order their first reference occurred. Used to report every forward
// reference that pass two failed to close, instead of stopping at the
// first.
func (t *Table) Unresolved() []string {
	var names []string
	for name, lines := range t.forwardRefs {
		if len(lines) == 0 {
			continue
		}
		sym, ok := t.symbols[name]
		if !ok || !sym.Defined {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		li, lj := t.forwardRefs[names[i]][0], t.forwardRefs[names[j]][0]
		return li < lj || (li == lj && names[i] < names[j])
	})
	return names
}

// All returns every defined symbol, for container symbol-table
// serialization and --list-symbols output.
func (t *Table) All() []Symbol {
	out := make([]Symbol, 0, len(t.symbols))
	for _, sym := range t.symbols {
		if sym.Defined {
			out = append(out, *sym)
		}
	}
	return out
}
