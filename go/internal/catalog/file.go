package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileFormat is the layout of a catalog file:
//
//	tests:
//	  - id: jee-main-mock-1
//	    name: JEE Main Mock 1
//	    duration_seconds: 10800
type fileFormat struct {
	Tests []MockTest `yaml:"tests"`
}

// FileCatalog is an immutable catalog loaded from YAML
type FileCatalog struct {
	tests map[string]MockTest
}

// NewFileCatalog builds a catalog from tests, rejecting duplicates and
// negative durations
func NewFileCatalog(tests []MockTest) (*FileCatalog, error) {
	byID := make(map[string]MockTest, len(tests))
	for _, t := range tests {
		id := strings.TrimSpace(t.ID)
		if id == "" {
			return nil, fmt.Errorf("mock test %q has no id", t.Name)
		}
		if t.DurationSeconds < 0 {
			return nil, fmt.Errorf("mock test %s has negative duration %d", id, t.DurationSeconds)
		}
		if _, dup := byID[id]; dup {
			return nil, fmt.Errorf("duplicate mock test id %s", id)
		}
		t.ID = id
		byID[id] = t
	}
	return &FileCatalog{tests: byID}, nil
}

// LoadFile reads a YAML catalog file
func LoadFile(path string) (*FileCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML catalog content
func Parse(data []byte) (*FileCatalog, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return NewFileCatalog(f.Tests)
}

// Duration implements Catalog
func (c *FileCatalog) Duration(_ context.Context, testID string) (int, error) {
	t, ok := c.tests[testID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrTestNotFound, testID)
	}
	return t.DurationSeconds, nil
}

// Tests returns every mock test in the catalog
func (c *FileCatalog) Tests() []MockTest {
	out := make([]MockTest, 0, len(c.tests))
	for _, t := range c.tests {
		out = append(out, t)
	}
	return out
}
