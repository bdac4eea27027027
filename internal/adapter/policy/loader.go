package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aituberkit/mcp-proxy/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// LoadFromFile reads a YAML policy file and returns the override it describes.
func LoadFromFile(path string) (domain.Override, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Override{}, fmt.Errorf("reading policy file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a policy document strictly: unknown keys are an error so a
// misspelt field cannot silently fall back to the default.
func Parse(data []byte) (domain.Override, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return domain.Override{}, fmt.Errorf("parsing policy YAML: %w", err)
	}

	o, err := f.Override()
	if err != nil {
		return domain.Override{}, fmt.Errorf("validating policy: %w", err)
	}
	return o, nil
}

// Override converts the file into a domain override, checking table, column
// and mask entries along the way.
func (f File) Override() (domain.Override, error) {
	o := domain.Override{
		AllowedOperations: f.AllowedOperations,
		ForbiddenKeywords: f.ForbiddenKeywords,
		AllowAllTables:    f.AllowAllTables,
		MaxResultRows:     f.MaxResultRows,
	}

	if f.MaxResultRows != nil && *f.MaxResultRows <= 0 {
		return domain.Override{}, fmt.Errorf("max_result_rows must be positive, got %d", *f.MaxResultRows)
	}
	for _, op := range f.AllowedOperations {
		if strings.TrimSpace(op) == "" {
			return domain.Override{}, fmt.Errorf("allowed_operations contains an empty entry")
		}
	}

	var masks map[string]domain.MaskType
	addMask := func(where, col, raw string) error {
		if strings.TrimSpace(col) == "" {
			return fmt.Errorf("%s contains an empty key", where)
		}
		m, err := domain.ParseMaskType(raw)
		if err != nil {
			return fmt.Errorf("%s[%q]: %w", where, col, err)
		}
		key := strings.ToLower(strings.TrimSpace(col))
		if masks == nil {
			masks = make(map[string]domain.MaskType)
		}
		if prev, ok := masks[key]; ok && prev != m {
			return fmt.Errorf("conflicting masks for column %q: %s and %s", col, prev, m)
		}
		masks[key] = m
		return nil
	}

	if f.Tables != nil {
		o.AllowedColumns = make(map[string][]string, len(f.Tables))
		for table, rule := range f.Tables {
			if strings.TrimSpace(table) == "" {
				return domain.Override{}, fmt.Errorf("tables contains an empty key")
			}
			cols := make([]string, 0, len(rule.Columns))
			for _, c := range rule.Columns {
				if strings.TrimSpace(c) == "" {
					return domain.Override{}, fmt.Errorf("tables[%q].columns contains an empty entry", table)
				}
				cols = append(cols, c)
			}
			o.AllowedColumns[table] = cols

			for col, raw := range rule.Masks {
				if err := addMask(fmt.Sprintf("tables[%q].masks", table), col, raw); err != nil {
					return domain.Override{}, err
				}
			}
		}
	}

	for col, raw := range f.Masks {
		if err := addMask("masks", col, raw); err != nil {
			return domain.Override{}, err
		}
	}
	if masks != nil {
		o.Masks = masks
	}

	return o, nil
}

// Load builds the effective policy: the built-in default with the file at path
// applied on top. An empty path yields the default.
func Load(path string) (domain.Policy, error) {
	base := domain.DefaultPolicy()
	if path == "" {
		return base, nil
	}
	o, err := LoadFromFile(path)
	if err != nil {
		return domain.Policy{}, err
	}
	return domain.Merge(base, o), nil
}
