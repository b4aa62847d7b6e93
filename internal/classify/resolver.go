package classify

import (
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/chatlens/internal/conversation"
	"github.com/TobiSchelling/chatlens/internal/database"
	"github.com/TobiSchelling/chatlens/internal/ingest"
	"github.com/TobiSchelling/chatlens/internal/taxonomy"
)

// SurveyMarker tags the satisfaction survey turns appended by the
// assistant platform.
const SurveyMarker = "[survey]"

// SurveyLabel is the fixed category given to survey turns.
var SurveyLabel = Label{Name: "Encuesta", Macro: "Encuesta"}

// IsSurvey reports whether text carries the survey marker.
func IsSurvey(text string) bool {
	return strings.Contains(strings.ToLower(text), SurveyMarker)
}

// Summary counts how each message was resolved.
type Summary struct {
	Survey         int
	Manual         int
	Homologation   int
	Keyword        int
	NeedsReview    int
	Products       int
	ProductAliases int
}

// Resolver assigns categories and products to messages. It holds no
// mutable state; the same input always yields the same output.
type Resolver struct {
	tax          *taxonomy.Taxonomy
	corrections  map[string]database.Correction
	homologation Homologation
	logger       *zap.Logger
}

// NewResolver creates a resolver over a taxonomy and the stored manual
// corrections, keyed by message id.
func NewResolver(tax *taxonomy.Taxonomy, corrections map[string]database.Correction, logger *zap.Logger) *Resolver {
	if tax == nil {
		tax = taxonomy.Empty()
	}
	return &Resolver{
		tax:          tax,
		corrections:  corrections,
		homologation: DefaultHomologation,
		logger:       logger,
	}
}

// WithHomologation replaces the legacy intent table.
func (r *Resolver) WithHomologation(h Homologation) *Resolver {
	r.homologation = h
	return r
}

// Resolve classifies every message in place. Per message the first stage
// that applies wins: survey marker, manual correction, homologation of the
// legacy intent, taxonomy keywords. Human turns left unresolved are flagged
// for review. Products resolve separately and never flag review.
func (r *Resolver) Resolve(msgs []database.Message) Summary {
	var s Summary

	for i := range msgs {
		r.resolveCategory(&msgs[i], &s)
	}

	order, groups := conversation.GroupIndices(msgs)
	for _, threadID := range order {
		r.resolveThreadProducts(msgs, groups[threadID], &s)
	}

	r.logger.Info("classification resolved",
		zap.Int("survey", s.Survey),
		zap.Int("manual", s.Manual),
		zap.Int("homologation", s.Homologation),
		zap.Int("keyword", s.Keyword),
		zap.Int("needs_review", s.NeedsReview),
		zap.Int("products", s.Products),
	)
	return s
}

func (r *Resolver) resolveCategory(m *database.Message, s *Summary) {
	m.Category, m.CategoryMacro = nil, nil
	m.RequiresReview = false
	m.ResolvedBy = ""

	if IsSurvey(m.Text) {
		setCategory(m, SurveyLabel, database.ResolvedBySurvey)
		s.Survey++
		return
	}

	if c, ok := r.corrections[m.ID]; ok {
		setCategory(m, Label{Name: c.Category, Macro: c.CategoryMacro}, database.ResolvedByManual)
		if c.Sentiment != nil && *c.Sentiment != "" {
			m.Sentiment = *c.Sentiment
		}
		s.Manual++
		return
	}

	if !m.IsHuman() {
		return
	}

	if l, ok := r.homologation.Lookup(m.LegacyIntent); ok {
		setCategory(m, l, database.ResolvedByHomologation)
		s.Homologation++
		return
	}

	if c, ok := r.tax.MatchCategory(m.Text); ok {
		setCategory(m, Label{Name: c.Name, Macro: c.Macro}, database.ResolvedByKeyword)
		s.Keyword++
		return
	}

	m.RequiresReview = true
	s.NeedsReview++
}

func setCategory(m *database.Message, l Label, source string) {
	name, macro := l.Name, l.Macro
	m.Category = &name
	m.CategoryMacro = &macro
	m.ResolvedBy = source
}

func setProduct(m *database.Message, l Label) {
	name, macro := l.Name, l.Macro
	m.Product = &name
	m.ProductMacro = &macro
}

// resolveThreadProducts maps the thread's dominant raw product label
// through the alias table onto its human turns, then falls back to product
// keywords in each turn's own text. Manual corrections take precedence.
func (r *Resolver) resolveThreadProducts(msgs []database.Message, idx []int, s *Summary) {
	threadProduct, hasThreadProduct := r.threadAlias(msgs, idx)
	if hasThreadProduct {
		s.ProductAliases++
	}

	for _, i := range idx {
		m := &msgs[i]
		m.Product, m.ProductMacro = nil, nil

		if c, ok := r.corrections[m.ID]; ok && c.Product != nil && *c.Product != "" {
			macro := r.tax.ProductMacroFor(*c.Product)
			if c.ProductMacro != nil && *c.ProductMacro != "" {
				macro = *c.ProductMacro
			}
			setProduct(m, Label{Name: *c.Product, Macro: macro})
			s.Products++
			continue
		}

		if !m.IsHuman() {
			continue
		}
		if hasThreadProduct {
			setProduct(m, threadProduct)
			s.Products++
			continue
		}
		if p, ok := r.tax.MatchProduct(m.Text); ok {
			setProduct(m, Label{Name: p.Name, Macro: p.Macro})
			s.Products++
		}
	}
}

// threadAlias looks up the mode of the agents' raw product type, then of
// the raw product detail, in the alias table.
func (r *Resolver) threadAlias(msgs []database.Message, idx []int) (Label, bool) {
	fields := []func(*database.Message) string{
		func(m *database.Message) string { return m.ProductType },
		func(m *database.Message) string { return m.ProductDetail },
	}
	for _, field := range fields {
		var values []string
		for _, i := range idx {
			if v := field(&msgs[i]); msgs[i].IsAgent() && !ingest.IsPlaceholder(v) {
				values = append(values, v)
			}
		}
		raw, ok := conversation.Mode(values)
		if !ok {
			continue
		}
		if p, ok := r.tax.LookupProductAlias(raw); ok {
			return Label{Name: p.Name, Macro: p.Macro}, true
		}
	}
	return Label{}, false
}
