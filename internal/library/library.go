// Package library loads template libraries from disk.
//
// A library is a document with a top-level "templates" array, written either as JSON or as
// YAML. The format is chosen by file extension: .yaml and .yml are YAML, anything else is JSON.
package library

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dyluth/microbundle/pkg/gep"
	"gopkg.in/yaml.v3"
)

// Library is a parsed template library.
type Library struct {
	Templates []gep.Template `json:"templates" yaml:"templates"`
}

// Load reads the library at path.
func Load(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template library: %w", err)
	}

	var lib *Library
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		lib, err = ParseYAML(data)
	default:
		lib, err = ParseJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return lib, nil
}

// ParseJSON decodes a JSON library. A document without a templates array yields an empty library.
func ParseJSON(data []byte) (*Library, error) {
	var lib Library
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&lib); err != nil {
		return nil, err
	}
	return &lib, lib.checkDuplicates()
}

// ParseYAML decodes a YAML library.
func ParseYAML(data []byte) (*Library, error) {
	var lib Library
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return nil, err
	}
	return &lib, lib.checkDuplicates()
}

// checkDuplicates rejects two templates sharing a non-empty id, since both would
// write the same output files.
func (l *Library) checkDuplicates() error {
	seen := make(map[string]int, len(l.Templates))
	for i, t := range l.Templates {
		if t.ID == "" {
			continue
		}
		if first, ok := seen[t.ID]; ok {
			return fmt.Errorf("duplicate template id %q at positions %d and %d", t.ID, first, i)
		}
		seen[t.ID] = i
	}
	return nil
}
