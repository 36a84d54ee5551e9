package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RulesetExtensions are the file extensions recognised as ruleset documents
var RulesetExtensions = []string{".yaml", ".yml", ".json"}

// IsRulesetFile reports whether path has a ruleset document extension
func IsRulesetFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range RulesetExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// LoadRulesetFile reads a ruleset from a YAML or JSON file. When the document
// has no id, the file name without extension is used.
func LoadRulesetFile(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ruleset file: %w", err)
	}

	rs, err := ParseRuleset(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if rs.ID == "" {
		rs.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return rs, nil
}

// ParseRuleset decodes a ruleset document. ext selects the format; anything
// other than ".json" is read as YAML, which also accepts JSON.
func ParseRuleset(data []byte, ext string) (*Ruleset, error) {
	var rs Ruleset
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, &rs); err != nil {
			return nil, fmt.Errorf("invalid ruleset JSON: %w", err)
		}
		return &rs, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&rs); err != nil {
		return nil, fmt.Errorf("invalid ruleset YAML: %w", err)
	}
	return &rs, nil
}
