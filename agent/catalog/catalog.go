package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	statex "github.com/tanpawarit/chative-commerce/agent/state"
)

//go:embed menu.yaml
var defaultMenu []byte

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidCatalog  = errors.New("invalid catalog")
)

type Product struct {
	Name        string   `yaml:"name" json:"name"`
	Aliases     []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Category    string   `yaml:"category" json:"category"`
	Price       float64  `yaml:"price" json:"price"`
	Available   *bool    `yaml:"available,omitempty" json:"-"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
}

// InStock defaults to true when the menu does not say otherwise.
func (p Product) InStock() bool {
	return p.Available == nil || *p.Available
}

type FAQ struct {
	Question string   `yaml:"question" json:"question"`
	Answer   string   `yaml:"answer" json:"answer"`
	Keywords []string `yaml:"keywords,omitempty" json:"-"`
}

type Config struct {
	Path string `envconfig:"PATH"`
}

// Catalog is the read-only menu. Prices here are authoritative.
type Catalog struct {
	Currency string              `yaml:"currency"`
	MenuURL  string              `yaml:"menu_url"`
	Products []Product           `yaml:"products"`
	Addons   map[string][]string `yaml:"addons"`
	FAQ      []FAQ               `yaml:"faq"`

	index map[string]int
}

// Default returns the embedded menu.
func Default() (*Catalog, error) {
	return Parse(defaultMenu)
}

// Load reads the menu from path, or the embedded menu when path is empty.
func Load(cfg Config) (*Catalog, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := c.buildIndex(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) buildIndex() error {
	c.index = make(map[string]int, len(c.Products)*2)
	for i, p := range c.Products {
		key := statex.IdentityKey(p.Name)
		if key == "" {
			return fmt.Errorf("%w: product %d has no name", ErrInvalidCatalog, i)
		}
		if p.Price < 0 {
			return fmt.Errorf("%w: product %q has a negative price", ErrInvalidCatalog, p.Name)
		}
		if _, dup := c.index[key]; dup {
			return fmt.Errorf("%w: duplicate product %q", ErrInvalidCatalog, p.Name)
		}
		c.index[key] = i
	}
	for i, p := range c.Products {
		for _, alias := range p.Aliases {
			key := statex.IdentityKey(alias)
			if _, taken := c.index[key]; key == "" || taken {
				continue
			}
			c.index[key] = i
		}
	}
	return nil
}

// Lookup resolves a customer-supplied name by identity key, alias, or a trailing plural "s".
func (c *Catalog) Lookup(name string) (Product, error) {
	key := statex.IdentityKey(name)
	if key == "" {
		return Product{}, fmt.Errorf("%w: empty name", ErrProductNotFound)
	}
	candidates := []string{key}
	if trimmed, ok := strings.CutSuffix(key, "es"); ok {
		candidates = append(candidates, trimmed)
	}
	if trimmed, ok := strings.CutSuffix(key, "s"); ok {
		candidates = append(candidates, trimmed)
	}
	for _, k := range candidates {
		if idx, ok := c.index[k]; ok {
			return c.Products[idx], nil
		}
	}
	return Product{}, fmt.Errorf("%w: %q", ErrProductNotFound, name)
}

func (c *Catalog) Categories() []string {
	var out []string
	for _, p := range c.Products {
		if !slices.Contains(out, p.Category) {
			out = append(out, p.Category)
		}
	}
	return out
}

// ByCategory returns the products in category, or every product when category is empty.
func (c *Catalog) ByCategory(category string) []Product {
	want := statex.IdentityKey(category)
	var out []Product
	for _, p := range c.Products {
		if want == "" || statex.IdentityKey(p.Category) == want {
			out = append(out, p)
		}
	}
	return out
}

// SearchFAQ ranks entries by keyword hits in query. Zero hits returns nothing.
func (c *Catalog) SearchFAQ(query string, limit int) []FAQ {
	words := strings.Fields(statex.IdentityKey(strings.Map(func(r rune) rune {
		if strings.ContainsRune("?!.,;:", r) {
			return ' '
		}
		return r
	}, query)))
	type scored struct {
		faq   FAQ
		score int
	}
	var hits []scored
	for _, f := range c.FAQ {
		score := 0
		for _, kw := range f.Keywords {
			if slices.Contains(words, statex.IdentityKey(kw)) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{faq: f, score: score})
		}
	}
	slices.SortStableFunc(hits, func(a, b scored) int { return b.score - a.score })

	out := make([]FAQ, 0, len(hits))
	for _, h := range hits {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, h.faq)
	}
	return out
}

// AddonSuggestions lists in-stock add-ons for the cart's categories that are not already in the cart.
func (c *Catalog) AddonSuggestions(cart statex.Cart) []Product {
	var out []Product
	seen := map[string]bool{}
	for _, item := range cart {
		p, err := c.Lookup(item.ProductName)
		if err != nil {
			continue
		}
		for _, name := range c.Addons[p.Category] {
			addon, err := c.Lookup(name)
			if err != nil || !addon.InStock() || seen[addon.Name] {
				continue
			}
			if _, inCart := cart.Find(addon.Name); inCart {
				continue
			}
			seen[addon.Name] = true
			out = append(out, addon)
		}
	}
	return out
}
