package report

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Category struct {
	Name     string   `yaml:"name"`
	Subtypes []string `yaml:"subtypes"`
}

// Ordered set of report categories, each with its allowed subtypes. Prompts list them in this order.
type Taxonomy struct {
	Categories []Category `yaml:"categories"`
}

func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		Categories: []Category{
			{Name: "spam", Subtypes: []string{"scam", "phishing", "advertising", "bot_activity"}},
			{Name: "harassment", Subtypes: []string{"bullying", "hate_speech", "threats", "doxxing"}},
			{Name: "misinformation", Subtypes: []string{"deepfake", "impersonation", "political", "health"}},
			{Name: "offensive", Subtypes: []string{"sexual", "violent", "graphic"}},
			{Name: "danger", Subtypes: []string{"self_harm", "credible_threat"}},
		},
	}
}

func (t Taxonomy) Category(name string) (Category, bool) {
	name = normalize(name)
	for _, c := range t.Categories {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

func (c Category) HasSubtype(name string) bool {
	name = normalize(name)
	for _, s := range c.Subtypes {
		if s == name {
			return true
		}
	}
	return false
}

func (t Taxonomy) CategoryNames() []string {
	out := make([]string, 0, len(t.Categories))
	for _, c := range t.Categories {
		out = append(out, c.Name)
	}
	return out
}

// Checks that names are unique, lower-case, and every category has at least one subtype.
func (t Taxonomy) Validate() error {
	if len(t.Categories) == 0 {
		return fmt.Errorf("taxonomy has no categories")
	}
	seen := make(map[string]bool, len(t.Categories))
	for _, c := range t.Categories {
		if c.Name == "" || c.Name != normalize(c.Name) {
			return fmt.Errorf("invalid category name: %q", c.Name)
		}
		if c.Name == CategoryAutomated {
			return fmt.Errorf("category name is reserved: %s", c.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate category: %s", c.Name)
		}
		seen[c.Name] = true
		if len(c.Subtypes) == 0 {
			return fmt.Errorf("category %s has no subtypes", c.Name)
		}
		for _, s := range c.Subtypes {
			if s == "" || s != normalize(s) {
				return fmt.Errorf("invalid subtype name in category %s: %q", c.Name, s)
			}
		}
	}
	return nil
}

func LoadTaxonomyFile(p string) (*Taxonomy, error) {
	raw, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	var t Taxonomy
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parsing taxonomy YAML: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
