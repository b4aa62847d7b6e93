// Package detect derives thread-level event tables from the message set.
// Every detector is a pure function: the same messages always produce the
// same rows in the same order.
package detect

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/chatlens/internal/conversation"
	"github.com/TobiSchelling/chatlens/internal/database"
	"github.com/TobiSchelling/chatlens/internal/ingest"
)

// ErrMalformedThread is returned when the message set cannot be grouped
// into well-ordered threads.
var ErrMalformedThread = errors.New("malformed thread")

// NotAvailable fills event columns that have no value in the thread.
const NotAvailable = "N/A"

// threads groups msgs and checks the ordering every detector relies on.
func threads(msgs []database.Message) ([]conversation.Thread, error) {
	for i := range msgs {
		if msgs[i].ThreadID == "" {
			return nil, fmt.Errorf("%w: message %s has no thread id", ErrMalformedThread, msgs[i].ID)
		}
	}
	grouped := conversation.Group(msgs)
	for _, t := range grouped {
		for i := 1; i < len(t.Messages); i++ {
			if t.Messages[i].Ordinal == t.Messages[i-1].Ordinal {
				return nil, fmt.Errorf("%w: thread %s has duplicate ordinal %d",
					ErrMalformedThread, t.ID, t.Messages[i].Ordinal)
			}
		}
	}
	return grouped, nil
}

// summary holds the dominant values of one thread.
type summary struct {
	category  string
	product   string
	sentiment string
	date      *string
	count     int
}

func summarize(t conversation.Thread) summary {
	var cats, intents, prods, rawProds, sents []string
	for i := range t.Messages {
		m := &t.Messages[i]
		if m.Category != nil && *m.Category != "" {
			cats = append(cats, *m.Category)
		}
		if !ingest.IsPlaceholder(m.LegacyIntent) {
			intents = append(intents, m.LegacyIntent)
		}
		if m.Product != nil && *m.Product != "" {
			prods = append(prods, *m.Product)
		}
		if !ingest.IsPlaceholder(m.ProductType) {
			rawProds = append(rawProds, m.ProductType)
		}
		if m.Sentiment != "" {
			sents = append(sents, m.Sentiment)
		}
	}

	s := summary{
		category:  firstMode(NotAvailable, cats, intents),
		product:   firstMode(NotAvailable, prods, rawProds),
		sentiment: firstMode(database.SentimentNeutral, sents),
		count:     len(t.Messages),
	}
	if len(t.Messages) > 0 {
		s.date = t.Messages[0].Date
	}
	return s
}

// firstMode returns the mode of the first non-empty candidate list.
func firstMode(fallback string, candidates ...[]string) string {
	for _, c := range candidates {
		if v, ok := conversation.Mode(c); ok {
			return v
		}
	}
	return fallback
}

// DetectAll runs the referral and failure detectors concurrently. If
// either fails, both results are discarded.
func DetectAll(ctx context.Context, msgs []database.Message) ([]database.Referral, []database.Failure, error) {
	var (
		refs  []database.Referral
		fails []database.Failure
	)
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var g errgroup.Group
	g.Go(func() error {
		var err error
		refs, err = DetectReferrals(msgs)
		return err
	})
	g.Go(func() error {
		var err error
		fails, err = DetectFailures(msgs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return refs, fails, nil
}
