package ingest

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/chatlens/internal/database"
)

// Placeholder values written where the export has no label.
const (
	PlaceholderProduct = "ninguno"
	PlaceholderIntent  = "sin intencion clara"
	PlaceholderSegment = "desconocido"
)

var placeholders = map[string]bool{
	"":                    true,
	PlaceholderProduct:    true,
	PlaceholderIntent:     true,
	"sin intención clara": true,
	PlaceholderSegment:    true,
}

// IsPlaceholder reports whether v carries no real label.
func IsPlaceholder(v string) bool {
	return placeholders[strings.ToLower(strings.TrimSpace(v))]
}

var nullTokens = map[string]bool{"nan": true, "none": true, "null": true}

var sentimentVariants = map[string]string{
	"positive": database.SentimentPositive,
	"positivo": database.SentimentPositive,
	"positiva": database.SentimentPositive,
	"neutral":  database.SentimentNeutral,
	"neutro":   database.SentimentNeutral,
	"neutra":   database.SentimentNeutral,
	"negative": database.SentimentNegative,
	"negativo": database.SentimentNegative,
	"negativa": database.SentimentNegative,
}

// NormalizeStats counts what normalization had to drop or coerce.
type NormalizeStats struct {
	Malformed        int
	BadDates         int
	BadNumbers       int
	UnknownSentiment int
}

// cleanText trims s and maps null-like tokens to the empty string.
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	if nullTokens[strings.ToLower(s)] {
		return ""
	}
	return s
}

// CanonicalSentiment maps locale variants to the three-value enum. Unknown
// or blank values return "".
func CanonicalSentiment(s string) string {
	return sentimentVariants[strings.ToLower(cleanText(s))]
}

// CanonicalThreadID trims id and drops a zero fraction left by
// spreadsheet tools that store numeric ids as floats ("123.0" → "123").
func CanonicalThreadID(id string) string {
	id = cleanText(id)
	whole, frac, found := strings.Cut(id, ".")
	if !found || whole == "" || strings.Trim(frac, "0") != "" {
		return id
	}
	if _, err := strconv.ParseUint(strings.TrimPrefix(whole, "-"), 10, 64); err != nil {
		return id
	}
	return whole
}

func parseCount(s string) (int, bool) {
	s = cleanText(s)
	if s == "" {
		return 0, true
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

func withDefault(s, def string) string {
	if s = cleanText(s); s == "" {
		return def
	}
	return s
}

// Normalize cleans raw rows into messages. Rows without an id or thread id
// are dropped. Ordinals follow input order starting at 1. Sentiment is left
// empty when unknown so propagation can fill it.
func Normalize(rows []RawRow, logger *zap.Logger) ([]database.Message, NormalizeStats) {
	var stats NormalizeStats
	msgs := make([]database.Message, 0, len(rows))

	for i, r := range rows {
		id := cleanText(r.ID)
		threadID := CanonicalThreadID(r.ThreadID)
		if id == "" || threadID == "" {
			stats.Malformed++
			continue
		}

		m := database.Message{
			ID:            id,
			ThreadID:      threadID,
			Type:          strings.ToLower(cleanText(r.Type)),
			Text:          cleanText(r.Text),
			Sentiment:     CanonicalSentiment(r.Sentiment),
			LegacyIntent:  withDefault(r.Intent, PlaceholderIntent),
			ProductType:   withDefault(r.ProductType, PlaceholderProduct),
			ProductDetail: withDefault(r.ProductDetail, PlaceholderProduct),
			Segment:       withDefault(r.Segment, PlaceholderSegment),
			Ordinal:       int64(i + 1),
		}
		if m.Sentiment == "" && cleanText(r.Sentiment) != "" {
			stats.UnknownSentiment++
		}

		if raw := cleanText(r.Date); raw != "" {
			m.Date = database.ParseDate(raw)
			if m.Date == nil {
				stats.BadDates++
			}
		}

		var ok bool
		bad := false
		if m.Hour, ok = parseCount(r.Hour); !ok {
			bad = true
		}
		if m.InputTokens, ok = parseCount(r.InputTokens); !ok {
			bad = true
		}
		if m.OutputTokens, ok = parseCount(r.OutputTokens); !ok {
			bad = true
		}
		if bad {
			stats.BadNumbers++
		}

		msgs = append(msgs, m)
	}

	if stats.BadDates > 0 || stats.BadNumbers > 0 || stats.UnknownSentiment > 0 {
		logger.Debug("coerced unparseable fields",
			zap.Int("bad_dates", stats.BadDates),
			zap.Int("bad_numbers", stats.BadNumbers),
			zap.Int("unknown_sentiments", stats.UnknownSentiment),
		)
	}
	if stats.Malformed > 0 {
		logger.Warn("dropped rows without id or thread id", zap.Int("rows", stats.Malformed))
	}
	return msgs, stats
}
