package analyzer

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type Category struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

// Catalog is the set of known recurring categories offered to the model.
type Catalog struct {
	Categories []Category `yaml:"categories"`

	byID map[string]Category
}

// LoadCatalog reads the catalog at path, or the embedded default when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read category catalog: %w", err)
		}
		data = raw
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse category catalog: %w", err)
	}

	c.byID = make(map[string]Category, len(c.Categories))
	for i, cat := range c.Categories {
		cat.ID = strings.TrimSpace(cat.ID)
		cat.Title = strings.TrimSpace(cat.Title)
		if cat.ID == "" || cat.Title == "" {
			return nil, fmt.Errorf("category %d: id and title are required", i)
		}
		if _, dup := c.byID[cat.ID]; dup {
			return nil, fmt.Errorf("duplicate category id %q", cat.ID)
		}
		c.Categories[i] = cat
		c.byID[cat.ID] = cat
	}
	return &c, nil
}

func (c *Catalog) Lookup(id string) (Category, bool) {
	if c == nil {
		return Category{}, false
	}
	cat, ok := c.byID[id]
	return cat, ok
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Categories)
}
