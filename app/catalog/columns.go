package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type columnsFile struct {
	Columns Columns `yaml:"columns"`
}

// LoadColumns reads the column mapping from a YAML file. An empty path yields
// the default mapping; fields missing from the file keep their default.
func LoadColumns(path string) (Columns, error) {
	columns := DefaultColumns()
	if path == "" {
		return columns, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Columns{}, fmt.Errorf("failed to read file: %w", err)
	}

	var parsed columnsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return Columns{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if parsed.Columns.Title != "" {
		columns.Title = parsed.Columns.Title
	}
	if parsed.Columns.Year != "" {
		columns.Year = parsed.Columns.Year
	}
	if parsed.Columns.Release != "" {
		columns.Release = parsed.Columns.Release
	}

	if err := columns.validate(); err != nil {
		return Columns{}, fmt.Errorf("invalid columns %s: %w", path, err)
	}

	return columns, nil
}

func (c Columns) validate() error {
	names := map[string]string{
		"title":   c.Title,
		"year":    c.Year,
		"release": c.Release,
	}

	seen := make(map[string]string, len(names))
	for field, name := range names {
		if other, ok := seen[name]; ok {
			return fmt.Errorf("column '%s' is mapped to both %s and %s", name, other, field)
		}
		seen[name] = field
	}

	return nil
}
