package detect

import (
	"strings"

	"github.com/TobiSchelling/chatlens/internal/database"
)

// Failure criteria, listed in the order they are evaluated.
const (
	CriterionBotInability      = "bot_inability"
	CriterionUserRepetition    = "user_repetition"
	CriterionNegativeSentiment = "negative_sentiment"
)

var failurePhrases = []string{
	"no puedo",
	"no tengo información",
	"no estoy seguro",
	"te recomiendo comunicarte",
	"no me es posible",
	"fuera de mi alcance",
	"no cuento con",
	"lo siento, no",
	"no tengo acceso",
	"intenta más tarde",
	"error",
	"no disponible",
	"no entiendo",
}

const negativeShareThreshold = 0.5

// IsBotInability reports whether an agent text admits it cannot help.
func IsBotInability(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range failurePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// DetectFailures emits one row per thread showing at least one failure
// signal, with every signal that fired.
func DetectFailures(msgs []database.Message) ([]database.Failure, error) {
	grouped, err := threads(msgs)
	if err != nil {
		return nil, err
	}

	var out []database.Failure
	for _, t := range grouped {
		inability := false
		repeated := false
		negatives := 0
		lastUser := NotAvailable
		seen := make(map[string]int)

		for i := range t.Messages {
			m := &t.Messages[i]
			if m.IsAgent() && !inability && IsBotInability(m.Text) {
				inability = true
			}
			if m.IsHuman() {
				lastUser = m.Text
				if key := strings.ToLower(strings.TrimSpace(m.Text)); key != "" {
					seen[key]++
					if seen[key] >= 2 {
						repeated = true
					}
				}
			}
			if m.Sentiment == database.SentimentNegative {
				negatives++
			}
		}

		var criteria database.Criteria
		if inability {
			criteria = append(criteria, CriterionBotInability)
		}
		if repeated {
			criteria = append(criteria, CriterionUserRepetition)
		}
		if len(t.Messages) > 0 && float64(negatives)/float64(len(t.Messages)) > negativeShareThreshold {
			criteria = append(criteria, CriterionNegativeSentiment)
		}
		if len(criteria) == 0 {
			continue
		}

		s := summarize(t)
		out = append(out, database.Failure{
			ThreadID:        t.ID,
			Category:        s.category,
			Product:         s.product,
			Date:            s.date,
			MsgCount:        s.count,
			Sentiment:       s.sentiment,
			Criteria:        criteria,
			LastUserMessage: lastUser,
		})
	}
	return out, nil
}
