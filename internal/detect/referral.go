package detect

import (
	"regexp"
	"strings"

	"github.com/TobiSchelling/chatlens/internal/database"
)

// NoPrecedingRequest stands in for the customer request when the referral
// is the first thing in the thread.
const NoPrecedingRequest = "N/A (Inicio de conversación)"

var referralKeywords = []string{
	"servilínea",
	"servilinea",
	"línea de atención",
	"linea de atencion",
}

var phoneLink = regexp.MustCompile(`tel:\s*\+?\d`)

// IsReferral reports whether an agent text sends the customer to a
// human-staffed channel.
func IsReferral(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range referralKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return phoneLink.MatchString(lower)
}

// DetectReferrals emits one row per thread in which an agent turn refers
// the customer elsewhere. The row pairs the first such agent turn with the
// closest earlier human turn.
func DetectReferrals(msgs []database.Message) ([]database.Referral, error) {
	grouped, err := threads(msgs)
	if err != nil {
		return nil, err
	}

	var out []database.Referral
	for _, t := range grouped {
		refIdx := -1
		for i := range t.Messages {
			if t.Messages[i].IsAgent() && IsReferral(t.Messages[i].Text) {
				refIdx = i
				break
			}
		}
		if refIdx < 0 {
			continue
		}

		request := NoPrecedingRequest
		for i := refIdx - 1; i >= 0; i-- {
			if t.Messages[i].IsHuman() {
				request = t.Messages[i].Text
				break
			}
		}

		s := summarize(t)
		out = append(out, database.Referral{
			ThreadID:         t.ID,
			Category:         s.category,
			Product:          s.product,
			Date:             s.date,
			MsgCount:         s.count,
			Sentiment:        s.sentiment,
			CustomerRequest:  request,
			ReferralResponse: t.Messages[refIdx].Text,
		})
	}
	return out, nil
}

// ReferralThreads returns the ids of threads with a referral row.
func ReferralThreads(refs []database.Referral) map[string]struct{} {
	set := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		set[r.ThreadID] = struct{}{}
	}
	return set
}
