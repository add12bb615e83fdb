package hierarchy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/robert-at-pretension-io/vhdl-netres/internal/validator"
)

// Load reads a hierarchy export (JSON, or YAML for .yaml/.yml files),
// checks it against the hierarchy contract and returns a Tree over it.
func Load(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hierarchy export: %w", err)
	}
	doc, err := Decode(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}

	v, err := validator.NewHierarchyValidator()
	if err != nil {
		return nil, fmt.Errorf("init hierarchy validator: %w", err)
	}
	if err := v.Validate(doc); err != nil {
		return nil, fmt.Errorf("hierarchy export %s: %w", path, err)
	}
	return NewTree(doc), nil
}

// Decode parses export bytes. ext selects the format (".yaml"/".yml" for
// YAML, anything else for JSON).
func Decode(data []byte, ext string) (*Document, error) {
	var doc Document
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing hierarchy yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing hierarchy json: %w", err)
		}
	}
	return &doc, nil
}
