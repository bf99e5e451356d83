package patterns

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of a custom pattern file:
//
//	patterns:
//	  - name: employeeId
//	    pattern: 'EMP-\d{6}'
//	    description: Internal employee identifiers
//	    class: medium
type File struct {
	Patterns []Definition `yaml:"patterns"`
}

// LoadFile reads pattern definitions from a YAML file
func LoadFile(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse pattern file %s: %w", path, err)
	}

	return file.Patterns, nil
}

// LoadFiles registers the definitions of every file into r. Failures are
// aggregated; one bad file or entry does not block the others.
func (r *Registry) LoadFiles(paths ...string) (int, error) {
	var errs []error
	total := 0
	for _, path := range paths {
		defs, err := LoadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		n, err := r.RegisterAll(defs)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}
	return total, errors.Join(errs...)
}

// SaveFile writes definitions to path in the layout LoadFile reads
func SaveFile(path string, defs []Definition) error {
	data, err := yaml.Marshal(File{Patterns: defs})
	if err != nil {
		return fmt.Errorf("failed to encode pattern file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write pattern file: %w", err)
	}
	return nil
}
