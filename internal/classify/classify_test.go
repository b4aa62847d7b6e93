package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TobiSchelling/chatlens/internal/database"
	"github.com/TobiSchelling/chatlens/internal/ingest"
	"github.com/TobiSchelling/chatlens/internal/taxonomy"
)

const categoriesYAML = `
categories:
  - name: Transferencias
    macro: Transacciones
    triggers: ["no me llega", "transferencia"]
  - name: Bloqueo de tarjeta
    macro: Seguridad
    triggers: ["bloquear", "bloqueada"]
`

const productsYAML = `
products:
  - name: Cuenta de Ahorros
    macro: Cuentas
    aliases: ["ahorros", "cuenta"]
    triggers: ["cuenta de ahorros"]
  - name: Tarjeta de Crédito
    macro: Tarjetas
    aliases: ["tc"]
    triggers: ["tarjeta"]
`

func testTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	tax, err := taxonomy.Parse([]byte(categoriesYAML), []byte(productsYAML))
	require.NoError(t, err)
	return tax
}

func strPtr(s string) *string { return &s }

func turn(id, thread, typ, text string, ordinal int64) database.Message {
	return database.Message{
		ID:            id,
		ThreadID:      thread,
		Type:          typ,
		Text:          text,
		Ordinal:       ordinal,
		LegacyIntent:  ingest.PlaceholderIntent,
		ProductType:   ingest.PlaceholderProduct,
		ProductDetail: ingest.PlaceholderProduct,
	}
}

func TestPropagateModeTieBreak(t *testing.T) {
	msgs := []database.Message{
		turn("h1", "t", database.TypeHuman, "hola", 1),
		turn("a1", "t", database.TypeAI, "respuesta", 2),
		turn("a2", "t", database.TypeAI, "respuesta", 3),
	}
	msgs[1].Sentiment = database.SentimentPositive
	msgs[2].Sentiment = database.SentimentNegative

	stats := Propagate(msgs)
	assert.Equal(t, database.SentimentPositive, msgs[0].Sentiment)
	assert.Equal(t, 1, stats.Sentiments)
}

func TestPropagateUsesOrdinalNotSliceOrder(t *testing.T) {
	msgs := []database.Message{
		turn("a2", "t", database.TypeAI, "x", 3),
		turn("a1", "t", database.TypeAI, "x", 2),
		turn("h1", "t", database.TypeHuman, "hola", 1),
	}
	msgs[0].Sentiment = database.SentimentNegative
	msgs[1].Sentiment = database.SentimentPositive

	Propagate(msgs)
	assert.Equal(t, database.SentimentPositive, msgs[2].Sentiment)
}

func TestPropagateKeepsOwnValuesAndSkipsPlaceholders(t *testing.T) {
	msgs := []database.Message{
		turn("h1", "t", database.TypeHuman, "hola", 1),
		turn("h2", "t", database.TypeHuman, "otra", 2),
		turn("a1", "t", database.TypeAI, "x", 3),
		turn("a2", "t", database.TypeAI, "x", 4),
		turn("a3", "t", database.TypeAI, "x", 5),
	}
	msgs[1].LegacyIntent = "Pagos"
	msgs[2].LegacyIntent = ingest.PlaceholderIntent
	msgs[3].LegacyIntent = ingest.PlaceholderIntent
	msgs[4].LegacyIntent = "Transferencias"
	msgs[4].ProductType = "ahorros"

	stats := Propagate(msgs)
	assert.Equal(t, "Transferencias", msgs[0].LegacyIntent)
	assert.Equal(t, "Pagos", msgs[1].LegacyIntent, "own value wins")
	assert.Equal(t, "ahorros", msgs[0].ProductType)
	assert.Equal(t, 1, stats.Intents)
	assert.Equal(t, 2, stats.Products)
}

func TestPropagateNoCrossThreadLeakage(t *testing.T) {
	msgs := []database.Message{
		turn("h1", "t1", database.TypeHuman, "hola", 1),
		turn("a1", "t2", database.TypeAI, "x", 2),
	}
	msgs[1].Sentiment = database.SentimentNegative

	Propagate(msgs)
	assert.Equal(t, "", msgs[0].Sentiment)

	FillDefaults(msgs)
	assert.Equal(t, database.SentimentNeutral, msgs[0].Sentiment)
	assert.Equal(t, database.SentimentNegative, msgs[1].Sentiment)
}

func TestResolveCascade(t *testing.T) {
	corrections := map[string]database.Correction{
		"manual": {MessageID: "manual", Category: "Reclamos", CategoryMacro: "Servicio al cliente",
			Sentiment: strPtr(database.SentimentNegative)},
		"survey": {MessageID: "survey", Category: "Reclamos", CategoryMacro: "Servicio al cliente"},
	}
	msgs := []database.Message{
		turn("survey", "t", database.TypeHuman, "[Survey] no me llega la respuesta, me fue útil", 1),
		turn("manual", "t", database.TypeHuman, "no me llega la transferencia", 2),
		turn("homo", "u", database.TypeHuman, "quiero bloquear", 3),
		turn("kw", "v", database.TypeHuman, "mi tarjeta está bloqueada", 4),
		turn("none", "v", database.TypeHuman, "buenas tardes", 5),
		turn("bot", "v", database.TypeAI, "no entiendo", 6),
	}
	msgs[2].LegacyIntent = "PAGOS "

	s := NewResolver(testTaxonomy(t), corrections, zap.NewNop()).Resolve(msgs)

	assert.Equal(t, "Encuesta", *msgs[0].Category)
	assert.Equal(t, database.ResolvedBySurvey, msgs[0].ResolvedBy)

	assert.Equal(t, "Reclamos", *msgs[1].Category, "manual correction beats keyword match")
	assert.Equal(t, database.ResolvedByManual, msgs[1].ResolvedBy)
	assert.Equal(t, database.SentimentNegative, msgs[1].Sentiment)

	assert.Equal(t, "Pagos", *msgs[2].Category, "homologation beats keyword match")
	assert.Equal(t, "Transacciones", *msgs[2].CategoryMacro)

	assert.Equal(t, "Bloqueo de tarjeta", *msgs[3].Category)
	assert.Equal(t, database.ResolvedByKeyword, msgs[3].ResolvedBy)

	assert.Nil(t, msgs[4].Category)
	assert.True(t, msgs[4].RequiresReview)

	assert.Nil(t, msgs[5].Category)
	assert.False(t, msgs[5].RequiresReview, "agent turns are never queued for review")

	assert.Equal(t, Summary{Survey: 1, Manual: 1, Homologation: 1, Keyword: 1, NeedsReview: 1, Products: 1}, s)
}

func TestResolveSurveyAppliesToAnyTurnType(t *testing.T) {
	msgs := []database.Message{turn("a", "t", database.TypeAI, "[survey] ¿te fue útil?", 1)}
	NewResolver(testTaxonomy(t), nil, zap.NewNop()).Resolve(msgs)
	require.NotNil(t, msgs[0].Category)
	assert.Equal(t, "Encuesta", *msgs[0].CategoryMacro)
}

func TestResolveNeverBothCategoryAndReview(t *testing.T) {
	msgs := []database.Message{
		turn("1", "t", database.TypeHuman, "transferencia", 1),
		turn("2", "t", database.TypeHuman, "???", 2),
		turn("3", "t", database.TypeTool, "{}", 3),
	}
	NewResolver(testTaxonomy(t), nil, zap.NewNop()).Resolve(msgs)
	for _, m := range msgs {
		assert.False(t, m.Category != nil && m.RequiresReview, "message %s", m.ID)
	}
}

func TestResolveDeterministic(t *testing.T) {
	build := func() []database.Message {
		msgs := []database.Message{
			turn("1", "t", database.TypeHuman, "no me llega la plata", 1),
			turn("2", "t", database.TypeAI, "revisemos", 2),
			turn("3", "u", database.TypeHuman, "tarjeta bloqueada", 3),
			turn("4", "u", database.TypeHuman, "gracias", 4),
		}
		msgs[1].ProductType = "ahorros"
		return msgs
	}
	r := NewResolver(testTaxonomy(t), nil, zap.NewNop())

	first, second := build(), build()
	r.Resolve(first)
	r.Resolve(second)
	r.Resolve(second)
	assert.Equal(t, first, second)
}

func TestResolveEmptyTaxonomyRoutesToReview(t *testing.T) {
	msgs := []database.Message{turn("1", "t", database.TypeHuman, "transferencia", 1)}
	s := NewResolver(nil, nil, zap.NewNop()).WithHomologation(Homologation{}).Resolve(msgs)
	assert.True(t, msgs[0].RequiresReview)
	assert.Equal(t, 1, s.NeedsReview)
}

func TestResolveProducts(t *testing.T) {
	corrections := map[string]database.Correction{
		"m": {MessageID: "m", Category: "X", CategoryMacro: "Y", Product: strPtr("Tarjeta de Crédito")},
	}
	msgs := []database.Message{
		turn("h1", "alias", database.TypeHuman, "hola", 1),
		turn("a1", "alias", database.TypeAI, "claro", 2),
		turn("h2", "kw", database.TypeHuman, "mi tarjeta", 3),
		turn("h3", "kw", database.TypeHuman, "nada", 4),
		turn("m", "kw", database.TypeHuman, "cuenta de ahorros", 5),
	}
	msgs[1].ProductType = "AHORROS"

	NewResolver(testTaxonomy(t), corrections, zap.NewNop()).Resolve(msgs)

	require.NotNil(t, msgs[0].Product)
	assert.Equal(t, "Cuenta de Ahorros", *msgs[0].Product)
	assert.Equal(t, "Cuentas", *msgs[0].ProductMacro)
	assert.Nil(t, msgs[1].Product, "agent turns keep no product")

	require.NotNil(t, msgs[2].Product)
	assert.Equal(t, "Tarjeta de Crédito", *msgs[2].Product)
	assert.Nil(t, msgs[3].Product)

	require.NotNil(t, msgs[4].Product)
	assert.Equal(t, "Tarjeta de Crédito", *msgs[4].Product, "manual product beats keyword")
	assert.Equal(t, "Tarjetas", *msgs[4].ProductMacro)
}

func TestHomologationLookup(t *testing.T) {
	l, ok := DefaultHomologation.Lookup("  Transferencias ")
	require.True(t, ok)
	assert.Equal(t, "Transacciones", l.Macro)

	_, ok = DefaultHomologation.Lookup("transferencias urgentes")
	assert.False(t, ok, "homologation is exact match")
}

func TestBuildCorrectionResolvesMacros(t *testing.T) {
	tax := testTaxonomy(t)

	c, err := BuildCorrection(tax, CorrectionInput{
		MessageID: " 42 ",
		Category:  "Transferencias",
		Sentiment: "Negativo",
		Product:   "Tarjeta de Crédito",
	})
	require.NoError(t, err)
	assert.Equal(t, "42", c.MessageID)
	assert.Equal(t, "Transacciones", c.CategoryMacro)
	require.NotNil(t, c.Sentiment)
	assert.Equal(t, database.SentimentNegative, *c.Sentiment)
	require.NotNil(t, c.ProductMacro)
	assert.Equal(t, "Tarjetas", *c.ProductMacro)

	c, err = BuildCorrection(tax, CorrectionInput{MessageID: "42", Category: "Nueva", CategoryMacro: "Otra"})
	require.NoError(t, err)
	assert.Equal(t, "Otra", c.CategoryMacro)
	assert.Nil(t, c.Sentiment)
	assert.Nil(t, c.Product)
	assert.Nil(t, c.ProductMacro)

	c, err = BuildCorrection(tax, CorrectionInput{MessageID: "42", Category: "Nueva", Product: "Leasing"})
	require.NoError(t, err)
	assert.Equal(t, "Nueva", c.CategoryMacro, "unknown category is its own macro")
	assert.Equal(t, "Leasing", *c.ProductMacro)
}

func TestBuildCorrectionRejectsBadInput(t *testing.T) {
	tax := testTaxonomy(t)

	_, err := BuildCorrection(tax, CorrectionInput{MessageID: "1", Category: "  "})
	assert.ErrorIs(t, err, ErrMissingCategory)

	_, err = BuildCorrection(tax, CorrectionInput{MessageID: "1", Category: "Transferencias", Sentiment: "furioso"})
	assert.ErrorIs(t, err, ErrUnknownSentiment)
}
