// Package conversation groups turns into threads and computes
// thread-level aggregates with a stable tie-break.
package conversation

import (
	"sort"

	"github.com/TobiSchelling/chatlens/internal/database"
)

// Thread is the ordered set of turns sharing a thread id.
type Thread struct {
	ID       string
	Messages []database.Message
}

// GroupIndices returns, per thread, the indices into msgs of its turns
// sorted by ordinal. Threads appear in order of first appearance in msgs.
func GroupIndices(msgs []database.Message) (order []string, groups map[string][]int) {
	groups = make(map[string][]int)
	for i := range msgs {
		id := msgs[i].ThreadID
		if _, ok := groups[id]; !ok {
			order = append(order, id)
		}
		groups[id] = append(groups[id], i)
	}
	for _, idx := range groups {
		sort.SliceStable(idx, func(a, b int) bool {
			return msgs[idx[a]].Ordinal < msgs[idx[b]].Ordinal
		})
	}
	return order, groups
}

// Group copies msgs into threads, each sorted by ordinal, in order of
// first appearance.
func Group(msgs []database.Message) []Thread {
	order, groups := GroupIndices(msgs)
	threads := make([]Thread, 0, len(order))
	for _, id := range order {
		idx := groups[id]
		t := Thread{ID: id, Messages: make([]database.Message, len(idx))}
		for i, j := range idx {
			t.Messages[i] = msgs[j]
		}
		threads = append(threads, t)
	}
	return threads
}

// Mode returns the most frequent value. On ties the value seen first
// wins, so callers must pass values in ordinal order. Empty input
// reports false.
func Mode(values []string) (string, bool) {
	if len(values) == 0 {
		return "", false
	}
	counts := make(map[string]int, len(values))
	best, bestCount := "", 0
	for _, v := range values {
		counts[v]++
	}
	// Second pass in input order makes the first-seen value win ties.
	for _, v := range values {
		if c := counts[v]; c > bestCount {
			best, bestCount = v, c
		}
	}
	return best, true
}
