package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "failed to open test db")
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func sampleMessages() []Message {
	return []Message{
		{ID: "m1", ThreadID: "t1", Type: TypeHuman, Text: "no me llega la plata", Date: ptr("2025-03-01"), Hour: 9, Sentiment: SentimentNegative, Ordinal: 1, RequiresReview: true},
		{ID: "m2", ThreadID: "t1", Type: TypeAI, Text: "te comunico con servilínea", Date: ptr("2025-03-01"), Hour: 9, Sentiment: SentimentNeutral, Ordinal: 2},
		{ID: "m3", ThreadID: "t2", Type: TypeHuman, Text: "hola", Date: nil, Hour: 0, Sentiment: SentimentNeutral, Ordinal: 3,
			Category: ptr("Saludo"), CategoryMacro: ptr("General"), ResolvedBy: ResolvedByKeyword},
	}
}

func TestReplaceAndLoadMessages(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.ReplaceMessages(ctx, sampleMessages()))

	msgs, err := db.LoadMessages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	assert.Equal(t, "m1", msgs[0].ID)
	assert.True(t, msgs[0].RequiresReview)
	assert.Nil(t, msgs[0].Category)
	assert.Equal(t, "2025-03-01", *msgs[0].Date)
	assert.Nil(t, msgs[2].Date)
	assert.Equal(t, "Saludo", *msgs[2].Category)
	assert.Equal(t, ResolvedByKeyword, msgs[2].ResolvedBy)

	n, err := db.CountMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestLoadMessagesOrderedByOrdinal(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	msgs := sampleMessages()
	msgs[0].Ordinal, msgs[2].Ordinal = 30, 1
	require.NoError(t, db.ReplaceMessages(ctx, msgs))

	loaded, err := db.LoadMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"m3", "m2", "m1"}, []string{loaded[0].ID, loaded[1].ID, loaded[2].ID})
}

func TestReplaceMessagesClearsEvents(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	refs := []Referral{{ThreadID: "t1", Category: "N/A", Product: "N/A", MsgCount: 2, Sentiment: SentimentNeutral,
		CustomerRequest: "no me llega la plata", ReferralResponse: "te comunico con servilínea"}}
	fails := []Failure{{ThreadID: "t2", Category: "Saludo", Product: "N/A", MsgCount: 1, Sentiment: SentimentNeutral,
		Criteria: Criteria{"user_repetition"}, LastUserMessage: "hola"}}
	require.NoError(t, db.ReplaceAll(ctx, sampleMessages(), refs, fails))

	loadedRefs, err := db.LoadReferrals(ctx)
	require.NoError(t, err)
	require.Len(t, loadedRefs, 1)
	assert.Equal(t, "no me llega la plata", loadedRefs[0].CustomerRequest)

	loadedFails, err := db.LoadFailures(ctx)
	require.NoError(t, err)
	require.Len(t, loadedFails, 1)
	assert.Equal(t, Criteria{"user_repetition"}, loadedFails[0].Criteria)

	require.NoError(t, db.ReplaceMessages(ctx, sampleMessages()[:1]))

	loadedRefs, err = db.LoadReferrals(ctx)
	require.NoError(t, err)
	assert.Empty(t, loadedRefs)
	loadedFails, err = db.LoadFailures(ctx)
	require.NoError(t, err)
	assert.Empty(t, loadedFails)
}

func TestReplaceAllIsAtomic(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.ReplaceMessages(ctx, sampleMessages()))

	// Duplicate ordinal violates the UNIQUE constraint mid-transaction.
	bad := sampleMessages()
	bad[1].Ordinal = bad[0].Ordinal
	require.Error(t, db.ReplaceMessages(ctx, bad))

	msgs, err := db.LoadMessages(ctx)
	require.NoError(t, err)
	assert.Len(t, msgs, 3, "previous table must survive a failed replace")
}

func TestReplaceEventsKeepsMessages(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.ReplaceMessages(ctx, sampleMessages()))

	require.NoError(t, db.ReplaceEvents(ctx, []Referral{{ThreadID: "t1", Category: "x", Product: "y", Sentiment: "neutral"}}, nil))

	n, err := db.CountMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	refs, err := db.LoadReferrals(ctx)
	require.NoError(t, err)
	assert.Len(t, refs, 1)
}

func TestGetMessage(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.ReplaceMessages(ctx, sampleMessages()))

	m, err := db.GetMessage(ctx, "m2")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, TypeAI, m.Type)

	missing, err := db.GetMessage(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	thread, err := db.GetThreadMessages(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, thread, 2)
}

func TestSaveCorrection(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.ReplaceMessages(ctx, sampleMessages()))

	found, err := db.SaveCorrection(ctx, Correction{
		MessageID: "m1", Category: "Transferencias", CategoryMacro: "Transacciones",
		Sentiment: ptr(SentimentNeutral),
	})
	require.NoError(t, err)
	assert.True(t, found)

	m, err := db.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, m.RequiresReview)
	assert.Equal(t, "Transferencias", *m.Category)
	assert.Equal(t, ResolvedByManual, m.ResolvedBy)
	assert.Equal(t, SentimentNeutral, m.Sentiment)

	corrections, err := db.GetCorrections(ctx)
	require.NoError(t, err)
	require.Contains(t, corrections, "m1")
	assert.Equal(t, "Transacciones", corrections["m1"].CategoryMacro)
	assert.Nil(t, corrections["m1"].Product)
}

func TestSaveCorrectionUnknownMessage(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	found, err := db.SaveCorrection(ctx, Correction{MessageID: "ghost", Category: "A", CategoryMacro: "B"})
	require.NoError(t, err)
	assert.False(t, found)

	corrections, err := db.GetCorrections(ctx)
	require.NoError(t, err)
	assert.Contains(t, corrections, "ghost")

	require.NoError(t, db.DeleteCorrection(ctx, "ghost"))
	corrections, err = db.GetCorrections(ctx)
	require.NoError(t, err)
	assert.Empty(t, corrections)
}

func TestSaveCorrectionInvalidatesEvents(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	refs := []Referral{{ThreadID: "t1", Category: "N/A", Product: "N/A", MsgCount: 2, Sentiment: SentimentNegative,
		CustomerRequest: "no me llega la plata", ReferralResponse: "te comunico con servilínea"}}
	fails := []Failure{{ThreadID: "t1", Category: "N/A", Product: "N/A", MsgCount: 2, Sentiment: SentimentNegative,
		Criteria: Criteria{"negative_sentiment"}, LastUserMessage: "no me llega la plata"}}
	require.NoError(t, db.ReplaceAll(ctx, sampleMessages(), refs, fails))

	// A correction for an unknown message leaves the derived tables alone.
	found, err := db.SaveCorrection(ctx, Correction{MessageID: "ghost", Category: "A", CategoryMacro: "B"})
	require.NoError(t, err)
	require.False(t, found)
	loadedRefs, err := db.LoadReferrals(ctx)
	require.NoError(t, err)
	assert.Len(t, loadedRefs, 1)

	found, err = db.SaveCorrection(ctx, Correction{
		MessageID: "m1", Category: "Transferencias", CategoryMacro: "Transacciones",
		Sentiment: ptr(SentimentPositive),
	})
	require.NoError(t, err)
	require.True(t, found)

	loadedRefs, err = db.LoadReferrals(ctx)
	require.NoError(t, err)
	assert.Empty(t, loadedRefs)
	loadedFails, err := db.LoadFailures(ctx)
	require.NoError(t, err)
	assert.Empty(t, loadedFails)

	n, err := db.CountMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCorrectionsSurviveReplace(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.ReplaceMessages(ctx, sampleMessages()))
	_, err := db.SaveCorrection(ctx, Correction{MessageID: "m1", Category: "A", CategoryMacro: "B"})
	require.NoError(t, err)

	require.NoError(t, db.ReplaceMessages(ctx, sampleMessages()))

	corrections, err := db.GetCorrections(ctx)
	require.NoError(t, err)
	assert.Len(t, corrections, 1)
}

func TestReviewQueue(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	msgs := sampleMessages()
	msgs = append(msgs, Message{ID: "m4", ThreadID: "t3", Type: TypeHuman, Text: "??", Date: ptr("2025-03-05"),
		Sentiment: SentimentNeutral, Ordinal: 4, RequiresReview: true})
	require.NoError(t, db.ReplaceMessages(ctx, msgs))

	page, total, err := db.GetReviewQueue(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, page, 1)
	assert.Equal(t, "m4", page[0].ID, "newest first")

	page, _, err = db.GetReviewQueue(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "m1", page[0].ID)
}

func TestIngestRuns(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	last, err := db.GetLastIngestRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	require.NoError(t, db.InsertIngestRun(ctx, &IngestRun{RunID: "a", StartedAt: "2025-03-01T10:00:00Z", Status: RunOK, Messages: 10}))
	require.NoError(t, db.InsertIngestRun(ctx, &IngestRun{RunID: "b", StartedAt: "2025-03-02T10:00:00Z", Status: RunFailed, Error: ptr("boom")}))

	last, err = db.GetLastIngestRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "b", last.RunID)
	assert.Equal(t, "boom", *last.Error)
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.ReplaceAll(ctx, sampleMessages(),
		[]Referral{{ThreadID: "t1", Category: "x", Product: "y", Sentiment: "neutral"}}, nil))

	stats, err := db.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Messages)
	assert.Equal(t, 2, stats.Threads)
	assert.Equal(t, 2, stats.HumanTurns)
	assert.Equal(t, 1, stats.NeedsReview)
	assert.Equal(t, 1, stats.Referrals)
	assert.Equal(t, 0, stats.Failures)
}

func TestParseDate(t *testing.T) {
	assert.Equal(t, "2025-03-01", *ParseDate(" 2025-03-01 "))
	assert.Nil(t, ParseDate("01/03/2025"))
	assert.Nil(t, ParseDate(""))
	assert.Nil(t, ParseDate("2025-02-30"))
}

func TestInDateRange(t *testing.T) {
	d := ptr("2025-03-10")
	assert.True(t, InDateRange(d, "", ""))
	assert.True(t, InDateRange(nil, "", ""))
	assert.True(t, InDateRange(d, "2025-03-10", "2025-03-10"))
	assert.False(t, InDateRange(d, "2025-03-11", ""))
	assert.False(t, InDateRange(d, "", "2025-03-09"))
	assert.False(t, InDateRange(nil, "2025-03-01", ""))
}

func TestCriteriaHas(t *testing.T) {
	c := Criteria{"bot_inability", "user_repetition"}
	assert.True(t, c.Has("user_repetition"))
	assert.False(t, c.Has("negative_sentiment"))
}
