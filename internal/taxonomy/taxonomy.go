// Package taxonomy loads the category and product rule sets used to
// classify customer turns.
package taxonomy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Category is one node of the category taxonomy. Declaration order is
// match priority.
type Category struct {
	Name      string   `yaml:"name"`
	Macro     string   `yaml:"macro"`
	MinLength int      `yaml:"min_length"`
	Triggers  []string `yaml:"triggers"`
}

// Product is one node of the product taxonomy.
type Product struct {
	Name     string   `yaml:"name"`
	Macro    string   `yaml:"macro"`
	Aliases  []string `yaml:"aliases"`
	Triggers []string `yaml:"triggers"`
}

type categoriesDoc struct {
	Categories []Category `yaml:"categories"`
}

type productsDoc struct {
	Products []Product `yaml:"products"`
}

// trigger is a compiled keyword. Anchored triggers carry a case-insensitive
// regexp over the lowercased text; the rest match by substring on normalized
// text.
type trigger struct {
	raw        string
	normalized string
	re         *regexp.Regexp
}

func (t trigger) match(lower, normalized string) bool {
	if t.re != nil {
		return t.re.MatchString(lower)
	}
	return t.normalized != "" && strings.Contains(normalized, t.normalized)
}

type compiledCategory struct {
	Category
	triggers []trigger
}

type compiledProduct struct {
	Product
	triggers []trigger
}

// Taxonomy is the validated, compiled form of both documents. It is
// read-only after construction and safe for concurrent use.
type Taxonomy struct {
	categories []compiledCategory
	products   []compiledProduct
	aliases    map[string]int
}

// Empty returns a taxonomy with no categories and no products. Every
// human turn classified against it ends up in the review queue.
func Empty() *Taxonomy {
	return &Taxonomy{aliases: map[string]int{}}
}

// Load reads both taxonomy documents. A missing file is not an error: it
// contributes nothing and a warning is logged.
func Load(categoriesPath, productsPath string, logger *zap.Logger) (*Taxonomy, error) {
	catData, err := readOptional(categoriesPath, logger)
	if err != nil {
		return nil, err
	}
	prodData, err := readOptional(productsPath, logger)
	if err != nil {
		return nil, err
	}

	t, err := Parse(catData, prodData)
	if err != nil {
		return nil, err
	}
	logger.Info("taxonomy loaded",
		zap.Int("categories", len(t.categories)),
		zap.Int("products", len(t.products)),
		zap.Int("aliases", len(t.aliases)),
	)
	return t, nil
}

func readOptional(path string, logger *zap.Logger) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("taxonomy document not found, using empty taxonomy", zap.String("path", path))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// Parse decodes and validates raw category and product documents. Either
// may be empty.
func Parse(categoriesYAML, productsYAML []byte) (*Taxonomy, error) {
	var cats categoriesDoc
	if len(categoriesYAML) > 0 {
		if err := yaml.Unmarshal(categoriesYAML, &cats); err != nil {
			return nil, fmt.Errorf("parsing categories: %w", err)
		}
	}
	var prods productsDoc
	if len(productsYAML) > 0 {
		if err := yaml.Unmarshal(productsYAML, &prods); err != nil {
			return nil, fmt.Errorf("parsing products: %w", err)
		}
	}

	t := Empty()
	for i, c := range cats.Categories {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return nil, fmt.Errorf("category #%d: missing name", i+1)
		}
		if c.Macro == "" {
			c.Macro = c.Name
		}
		triggers, err := compileTriggers(c.Triggers)
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", c.Name, err)
		}
		t.categories = append(t.categories, compiledCategory{Category: c, triggers: triggers})
	}

	for i, p := range prods.Products {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return nil, fmt.Errorf("product #%d: missing name", i+1)
		}
		if p.Macro == "" {
			p.Macro = p.Name
		}
		triggers, err := compileTriggers(p.Triggers)
		if err != nil {
			return nil, fmt.Errorf("product %q: %w", p.Name, err)
		}
		idx := len(t.products)
		t.products = append(t.products, compiledProduct{Product: p, triggers: triggers})

		for _, alias := range append([]string{p.Name}, p.Aliases...) {
			key := Normalize(alias)
			if key == "" {
				continue
			}
			// First declaration wins on alias collisions.
			if _, taken := t.aliases[key]; !taken {
				t.aliases[key] = idx
			}
		}
	}
	return t, nil
}

func compileTriggers(raw []string) ([]trigger, error) {
	out := make([]trigger, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		if isAnchored(r) {
			// Case is folded on the text side, so escape classes such as
			// \D or \W keep their meaning.
			re, err := regexp.Compile("(?i)" + r)
			if err != nil {
				return nil, fmt.Errorf("invalid trigger %q: %w", r, err)
			}
			out = append(out, trigger{raw: r, re: re})
			continue
		}
		out = append(out, trigger{raw: r, normalized: Normalize(r)})
	}
	return out, nil
}

func isAnchored(s string) bool {
	return strings.ContainsAny(s, "^$")
}

// MatchCategory returns the first category with a trigger matching text.
// Categories whose minimum length exceeds the trimmed text length are
// skipped.
func (t *Taxonomy) MatchCategory(text string) (Category, bool) {
	trimmed := strings.TrimSpace(text)
	length := len([]rune(trimmed))
	lower := strings.ToLower(trimmed)
	normalized := Normalize(trimmed)

	for _, c := range t.categories {
		if length < c.MinLength {
			continue
		}
		for _, tr := range c.triggers {
			if tr.match(lower, normalized) {
				return c.Category, true
			}
		}
	}
	return Category{}, false
}

// MatchProduct returns the first product with a trigger matching text.
func (t *Taxonomy) MatchProduct(text string) (Product, bool) {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	normalized := Normalize(trimmed)

	for _, p := range t.products {
		for _, tr := range p.triggers {
			if tr.match(lower, normalized) {
				return p.Product, true
			}
		}
	}
	return Product{}, false
}

// LookupProductAlias maps a raw upstream product label to a canonical
// product via the alias table. Canonical names are aliases of themselves.
func (t *Taxonomy) LookupProductAlias(raw string) (Product, bool) {
	idx, ok := t.aliases[Normalize(raw)]
	if !ok {
		return Product{}, false
	}
	return t.products[idx].Product, true
}

// CategoryNames lists categories in priority order.
func (t *Taxonomy) CategoryNames() []string {
	names := make([]string, len(t.categories))
	for i, c := range t.categories {
		names[i] = c.Name
	}
	return names
}

// ProductNames lists products in declaration order.
func (t *Taxonomy) ProductNames() []string {
	names := make([]string, len(t.products))
	for i, p := range t.products {
		names[i] = p.Name
	}
	return names
}

// MacroFor returns the macro group of a category, or the name itself when
// the category is unknown.
func (t *Taxonomy) MacroFor(category string) string {
	for _, c := range t.categories {
		if c.Name == category {
			return c.Macro
		}
	}
	return category
}

// ProductMacroFor returns the macro group of a product, or the name itself
// when the product is unknown.
func (t *Taxonomy) ProductMacroFor(product string) string {
	for _, p := range t.products {
		if p.Name == product {
			return p.Macro
		}
	}
	return product
}
