package ingest

import "github.com/TobiSchelling/chatlens/internal/database"

// DedupResult holds the surviving messages and how many each phase removed.
type DedupResult struct {
	Messages  []database.Message
	ByID      int
	ByContent int
}

type contentKey struct {
	threadID string
	text     string
	typ      string
	date     string
	hour     int
}

func keyOf(m *database.Message) contentKey {
	k := contentKey{threadID: m.ThreadID, text: m.Text, typ: m.Type, hour: m.Hour}
	if m.Date != nil {
		k.date = *m.Date
	}
	return k
}

// Dedup removes repeated records, keeping the first occurrence. It first
// drops messages sharing an id, then messages sharing
// (thread, text, type, date, hour). Input order is preserved.
func Dedup(msgs []database.Message) DedupResult {
	var res DedupResult

	seenIDs := make(map[string]struct{}, len(msgs))
	byID := make([]database.Message, 0, len(msgs))
	for _, m := range msgs {
		if _, dup := seenIDs[m.ID]; dup {
			res.ByID++
			continue
		}
		seenIDs[m.ID] = struct{}{}
		byID = append(byID, m)
	}

	seen := make(map[contentKey]struct{}, len(byID))
	res.Messages = make([]database.Message, 0, len(byID))
	for i := range byID {
		k := keyOf(&byID[i])
		if _, dup := seen[k]; dup {
			res.ByContent++
			continue
		}
		seen[k] = struct{}{}
		res.Messages = append(res.Messages, byID[i])
	}
	return res
}
