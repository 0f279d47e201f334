// Package catalog lists the analysts and symbols known to hedgewatch.
package catalog

import (
	_ "embed"
	"fmt"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed analysts.yaml
var defaultData []byte

// Analyst is one agent the upstream service can run.
type Analyst struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	LocalName   string `yaml:"localName" json:"localName,omitempty"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// Catalog is the parsed analyst and symbol list.
type Catalog struct {
	Analysts []Analyst `yaml:"analysts"`
	Symbols  []string  `yaml:"symbols"`
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the embedded catalog. The embedded file is validated
// by tests, so a parse failure here is a build defect.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(defaultData)
		if err != nil {
			panic(fmt.Sprintf("catalog: embedded analysts.yaml: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	seen := make(map[string]bool, len(c.Analysts))
	for i, a := range c.Analysts {
		if a.ID == "" {
			return nil, fmt.Errorf("analyst %d has no id", i)
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("duplicate analyst id %q", a.ID)
		}
		seen[a.ID] = true
		if a.Name == "" {
			c.Analysts[i].Name = a.ID
		}
	}
	return &c, nil
}

// Analyst looks up an analyst by ID.
func (c *Catalog) Analyst(id string) (Analyst, bool) {
	for _, a := range c.Analysts {
		if a.ID == id {
			return a, true
		}
	}
	return Analyst{}, false
}

// DisplayName returns the analyst's name, or id itself when unknown.
func (c *Catalog) DisplayName(id string) string {
	if a, ok := c.Analyst(id); ok {
		return a.Name
	}
	return id
}

// Unknown returns the IDs in ids that are not in the catalog.
func (c *Catalog) Unknown(ids []string) []string {
	var out []string
	for _, id := range ids {
		if _, ok := c.Analyst(id); !ok {
			out = append(out, id)
		}
	}
	return out
}

// HasSymbol reports whether symbol is in the default symbol list.
func (c *Catalog) HasSymbol(symbol string) bool {
	return slices.Contains(c.Symbols, symbol)
}
