package container

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"

	"github.com/nsarkis/isax/pkg/symtab"
)

// symbolEntry is the JSON shape of one symbol table entry in the
// name → {value, type} map; the symbol's kind is stored under "type".
type symbolEntry struct {
	Value int64  `json:"value"`
	Type  string `json:"type"`
}

func encodeSymbols(symbols []symtab.Symbol) ([]byte, error) {
	out := make(map[string]symbolEntry, len(symbols))
	for _, s := range symbols {
		if !s.Defined || s.Kind == symtab.KindConstant {
			continue
		}
		out[s.Name] = symbolEntry{Value: s.Value, Type: string(s.Kind)}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return json.Marshal(out)
}

func decodeSymbols(raw []byte) ([]symtab.Symbol, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var in map[string]symbolEntry
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, errors.Wrap(ErrContainerMalformed, err.Error())
	}
	symbols := make([]symtab.Symbol, 0, len(in))
	for name, entry := range in {
		symbols = append(symbols, symtab.Symbol{
			Name:    name,
			Kind:    symtab.Kind(entry.Type),
			Value:   entry.Value,
			Defined: true,
		})
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i].Name < symbols[j].Name })
	return symbols, nil
}
