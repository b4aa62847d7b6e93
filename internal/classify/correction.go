package classify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/TobiSchelling/chatlens/internal/database"
	"github.com/TobiSchelling/chatlens/internal/ingest"
	"github.com/TobiSchelling/chatlens/internal/taxonomy"
)

var (
	ErrMissingCategory  = errors.New("category is required")
	ErrUnknownSentiment = errors.New("unknown sentiment")
)

// CorrectionInput is a reviewer's classification as typed. Empty fields
// are left for the taxonomy to fill or not applied at all.
type CorrectionInput struct {
	MessageID     string
	Category      string
	CategoryMacro string
	Sentiment     string
	Product       string
	ProductMacro  string
}

// BuildCorrection turns reviewer input into a stored correction. Omitted
// macros come from tax; an unknown name is its own macro.
func BuildCorrection(tax *taxonomy.Taxonomy, in CorrectionInput) (database.Correction, error) {
	c := database.Correction{
		MessageID:     strings.TrimSpace(in.MessageID),
		Category:      strings.TrimSpace(in.Category),
		CategoryMacro: strings.TrimSpace(in.CategoryMacro),
	}
	if c.Category == "" {
		return database.Correction{}, ErrMissingCategory
	}
	if c.CategoryMacro == "" {
		c.CategoryMacro = tax.MacroFor(c.Category)
	}

	if strings.TrimSpace(in.Sentiment) != "" {
		s := ingest.CanonicalSentiment(in.Sentiment)
		if s == "" {
			return database.Correction{}, fmt.Errorf("%w: %s", ErrUnknownSentiment, in.Sentiment)
		}
		c.Sentiment = &s
	}

	if product := strings.TrimSpace(in.Product); product != "" {
		macro := strings.TrimSpace(in.ProductMacro)
		if macro == "" {
			macro = tax.ProductMacroFor(product)
		}
		c.Product, c.ProductMacro = &product, &macro
	}
	return c, nil
}
