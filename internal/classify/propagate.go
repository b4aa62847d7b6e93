// Package classify fills thread-level labels onto customer turns and
// resolves each turn to a taxonomy category and product.
package classify

import (
	"github.com/TobiSchelling/chatlens/internal/conversation"
	"github.com/TobiSchelling/chatlens/internal/database"
	"github.com/TobiSchelling/chatlens/internal/ingest"
)

// PropagateStats counts the human turns that received a thread label.
type PropagateStats struct {
	Intents    int
	Sentiments int
	Products   int
}

type label struct {
	get   func(*database.Message) string
	set   func(*database.Message, string)
	empty func(string) bool
	count *int
}

// Propagate copies each thread's dominant agent labels (legacy intent,
// sentiment, product type) onto the human turns of that thread that lack
// their own. Only real agent values count; the mode breaks ties by first
// appearance in ordinal order. msgs is modified in place.
func Propagate(msgs []database.Message) PropagateStats {
	var stats PropagateStats
	blankSentiment := func(v string) bool { return v == "" }

	labels := []label{
		{
			get:   func(m *database.Message) string { return m.LegacyIntent },
			set:   func(m *database.Message, v string) { m.LegacyIntent = v },
			empty: ingest.IsPlaceholder,
			count: &stats.Intents,
		},
		{
			get:   func(m *database.Message) string { return m.Sentiment },
			set:   func(m *database.Message, v string) { m.Sentiment = v },
			empty: blankSentiment,
			count: &stats.Sentiments,
		},
		{
			get:   func(m *database.Message) string { return m.ProductType },
			set:   func(m *database.Message, v string) { m.ProductType = v },
			empty: ingest.IsPlaceholder,
			count: &stats.Products,
		},
	}

	order, groups := conversation.GroupIndices(msgs)
	for _, threadID := range order {
		idx := groups[threadID]
		for _, l := range labels {
			var values []string
			for _, i := range idx {
				if msgs[i].IsAgent() && !l.empty(l.get(&msgs[i])) {
					values = append(values, l.get(&msgs[i]))
				}
			}
			mode, ok := conversation.Mode(values)
			if !ok {
				continue
			}
			for _, i := range idx {
				if msgs[i].IsHuman() && l.empty(l.get(&msgs[i])) {
					l.set(&msgs[i], mode)
					*l.count++
				}
			}
		}
	}
	return stats
}

// FillDefaults applies the defaults that must wait until after
// propagation: a turn with no sentiment is neutral.
func FillDefaults(msgs []database.Message) {
	for i := range msgs {
		if msgs[i].Sentiment == "" {
			msgs[i].Sentiment = database.SentimentNeutral
		}
		if msgs[i].LegacyIntent == "" {
			msgs[i].LegacyIntent = ingest.PlaceholderIntent
		}
		if msgs[i].ProductType == "" {
			msgs[i].ProductType = ingest.PlaceholderProduct
		}
	}
}
