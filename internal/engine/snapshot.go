package engine

import (
	"strings"

	"github.com/TobiSchelling/chatlens/internal/database"
	"github.com/TobiSchelling/chatlens/internal/detect"
)

// snapshot is one immutable, fully built view of the store. Readers get a
// pointer to a complete snapshot or none at all; nothing in it is mutated
// after publish.
type snapshot struct {
	messages      []database.Message
	byID          map[string]int
	threadLengths map[string]int
	servilinea    map[string]struct{}
	emptyText     map[string]struct{}
	referrals     []database.Referral
	failures      []database.Failure
}

func newSnapshot(msgs []database.Message, refs []database.Referral, fails []database.Failure) *snapshot {
	s := &snapshot{
		messages:      msgs,
		byID:          make(map[string]int, len(msgs)),
		threadLengths: make(map[string]int),
		servilinea:    detect.ReferralThreads(refs),
		referrals:     refs,
		failures:      fails,
	}
	for i := range msgs {
		s.byID[msgs[i].ID] = i
		s.threadLengths[msgs[i].ThreadID]++
	}
	s.emptyText = emptyTextThreads(msgs)
	return s
}

func emptyTextThreads(msgs []database.Message) map[string]struct{} {
	set := make(map[string]struct{})
	for i := range msgs {
		if strings.TrimSpace(msgs[i].Text) == "" {
			set[msgs[i].ThreadID] = struct{}{}
		}
	}
	return set
}

// withMessage returns a copy of s in which message i is replaced by m.
// Indexes that cannot change are shared with s.
func (s *snapshot) withMessage(i int, m database.Message) *snapshot {
	next := *s
	next.messages = make([]database.Message, len(s.messages))
	copy(next.messages, s.messages)
	textChanged := next.messages[i].Text != m.Text
	next.messages[i] = m
	if textChanged {
		next.emptyText = emptyTextThreads(next.messages)
	}
	return &next
}
