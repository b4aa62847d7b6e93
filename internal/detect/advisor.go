package detect

import (
	"strings"

	"github.com/TobiSchelling/chatlens/internal/conversation"
	"github.com/TobiSchelling/chatlens/internal/database"
)

// Advisor request kinds.
const (
	AdvisorImmediate   = "immediate"
	AdvisorAfterEffort = "after_effort"
)

// immediateWithin is the last 0-based position among a customer's own
// turns that still counts as asking for a person straight away.
const immediateWithin = 1

var advisorKeywords = []string{
	"asesor", "humano", "persona", "alguien", "contactar",
	"agente", "ejecutivo", "hablar con", "atención", "atencion",
}

// AdvisorRequest is the first request for a human advisor in a thread.
type AdvisorRequest struct {
	ThreadID   string  `json:"thread_id"`
	Date       *string `json:"date"`
	SampleText string  `json:"sample_text"`
	UserTurns  int     `json:"user_turns"`
	Position   int     `json:"position"`
	Kind       string  `json:"kind"`
}

// AdvisorReport aggregates advisor requests across threads.
type AdvisorReport struct {
	Total       int              `json:"total"`
	Immediate   int              `json:"immediate"`
	AfterEffort int              `json:"after_effort"`
	Requests    []AdvisorRequest `json:"requests"`
}

// IsAdvisorRequest reports whether a customer text asks for a person.
func IsAdvisorRequest(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range advisorKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DetectAdvisorRequests finds, per thread, the first customer turn asking
// for a human. The request is immediate when it is among the customer's
// first two turns by ordinal.
func DetectAdvisorRequests(msgs []database.Message) AdvisorReport {
	var r AdvisorReport
	for _, t := range conversation.Group(msgs) {
		var found *AdvisorRequest
		userTurns := 0
		for i := range t.Messages {
			m := &t.Messages[i]
			if !m.IsHuman() {
				continue
			}
			if found == nil && IsAdvisorRequest(m.Text) {
				found = &AdvisorRequest{
					ThreadID:   t.ID,
					Date:       m.Date,
					SampleText: m.Text,
					Position:   userTurns,
				}
			}
			userTurns++
		}
		if found == nil {
			continue
		}

		found.UserTurns = userTurns
		if found.Position <= immediateWithin {
			found.Kind = AdvisorImmediate
			r.Immediate++
		} else {
			found.Kind = AdvisorAfterEffort
			r.AfterEffort++
		}
		r.Requests = append(r.Requests, *found)
	}
	r.Total = len(r.Requests)
	return r
}
