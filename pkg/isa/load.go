package isa

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Load reads an ISA description from path, dispatching on its extension
// (.json vs .yaml/.yml), and validates it before returning. The returned
// ISA is ready to hand to pkg/assemble and pkg/disassemble.
func Load(path string) (*ISA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading ISA file %s", path)
	}

	var def ISA
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, errors.Wrapf(err, "parsing ISA JSON %s", path)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, errors.Wrapf(err, "parsing ISA YAML %s", path)
		}
	default:
		return nil, errors.Errorf("unrecognized ISA file extension %q (want .json, .yaml, or .yml)", ext)
	}

	if err := def.Validate(); err != nil {
		return nil, errors.Wrapf(err, "validating ISA %s", path)
	}
	return &def, nil
}
