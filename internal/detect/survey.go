package detect

import (
	"strings"

	"github.com/TobiSchelling/chatlens/internal/classify"
	"github.com/TobiSchelling/chatlens/internal/database"
)

// Survey response statuses.
const (
	SurveyUseful    = "useful"
	SurveyNotUseful = "not_useful"
	SurveyUnknown   = "unknown"
)

// SurveyResponse is one survey turn.
type SurveyResponse struct {
	ThreadID string  `json:"thread_id"`
	Date     *string `json:"date"`
	Feedback string  `json:"feedback"`
	Status   string  `json:"status"`
}

// SurveyReport aggregates satisfaction survey answers.
type SurveyReport struct {
	Total     int              `json:"total"`
	Useful    int              `json:"useful"`
	NotUseful int              `json:"not_useful"`
	Responses []SurveyResponse `json:"responses"`
}

// SurveyStats classifies every survey turn as useful, not useful or
// unknown, in input order.
func SurveyStats(msgs []database.Message) SurveyReport {
	var r SurveyReport
	for i := range msgs {
		m := &msgs[i]
		if !classify.IsSurvey(m.Text) {
			continue
		}
		lower := strings.ToLower(m.Text)
		status := SurveyUnknown
		switch {
		case strings.Contains(lower, "no me fue útil"):
			status = SurveyNotUseful
			r.NotUseful++
		case strings.Contains(lower, "me fue útil"):
			status = SurveyUseful
			r.Useful++
		}
		r.Responses = append(r.Responses, SurveyResponse{
			ThreadID: m.ThreadID,
			Date:     m.Date,
			Feedback: m.Text,
			Status:   status,
		})
	}
	r.Total = len(r.Responses)
	return r
}
