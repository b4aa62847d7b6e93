package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Turn types.
const (
	TypeHuman = "human"
	TypeAI    = "ai"
	TypeTool  = "tool"
)

// Canonical sentiment values.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// Resolution sources, recorded on each message so reviewers can tell how a
// category was assigned.
const (
	ResolvedBySurvey       = "survey"
	ResolvedByManual       = "manual"
	ResolvedByHomologation = "homologation"
	ResolvedByKeyword      = "keyword"
)

// Message is one conversational turn.
type Message struct {
	ID               string  `db:"id" json:"id"`
	ThreadID         string  `db:"thread_id" json:"thread_id"`
	Type             string  `db:"type" json:"type"`
	Text             string  `db:"text" json:"text"`
	Date             *string `db:"date" json:"date"`
	Hour             int     `db:"hour" json:"hour"`
	Sentiment        string  `db:"sentiment" json:"sentiment"`
	LegacyIntent     string  `db:"legacy_intent" json:"legacy_intent"`
	ProductType      string  `db:"product_type" json:"product_type"`
	ProductDetail    string  `db:"product_detail" json:"product_detail"`
	Segment          string  `db:"segment" json:"segment"`
	InputTokens      int     `db:"input_tokens" json:"input_tokens"`
	OutputTokens     int     `db:"output_tokens" json:"output_tokens"`
	Category         *string `db:"category" json:"category"`
	CategoryMacro    *string `db:"category_macro" json:"category_macro"`
	Product          *string `db:"product" json:"product"`
	ProductMacro     *string `db:"product_macro" json:"product_macro"`
	RequiresReview   bool    `db:"requires_review" json:"requires_review"`
	ResolvedBy       string  `db:"resolved_by" json:"resolved_by"`
	IsReferralThread bool    `db:"is_referral_thread" json:"is_referral_thread"`
	// Ordinal is the position in the raw export. It is the only reliable
	// event order when dates and hours collide.
	Ordinal int64 `db:"ordinal" json:"ordinal"`
}

// IsHuman reports whether the turn was written by the customer.
func (m *Message) IsHuman() bool { return m.Type == TypeHuman }

// IsAgent reports whether the turn was written by the assistant.
func (m *Message) IsAgent() bool { return m.Type == TypeAI }

// Referral is a thread where the assistant sent the customer to a
// human-staffed channel.
type Referral struct {
	ThreadID         string  `db:"thread_id" json:"thread_id"`
	Category         string  `db:"category" json:"category"`
	Product          string  `db:"product" json:"product"`
	Date             *string `db:"date" json:"date"`
	MsgCount         int     `db:"msg_count" json:"msg_count"`
	Sentiment        string  `db:"sentiment" json:"sentiment"`
	CustomerRequest  string  `db:"customer_request" json:"customer_request"`
	ReferralResponse string  `db:"referral_response" json:"referral_response"`
}

// Failure is a thread showing one or more signals of unsuccessful
// automated resolution.
type Failure struct {
	ThreadID        string   `db:"thread_id" json:"thread_id"`
	Category        string   `db:"category" json:"category"`
	Product         string   `db:"product" json:"product"`
	Date            *string  `db:"date" json:"date"`
	MsgCount        int      `db:"msg_count" json:"msg_count"`
	Sentiment       string   `db:"sentiment" json:"sentiment"`
	Criteria        Criteria `db:"criteria" json:"criteria"`
	LastUserMessage string   `db:"last_user_message" json:"last_user_message"`
}

// Criteria is the set of failure signals that fired for a thread, stored as
// a JSON array.
type Criteria []string

// Has reports whether c contains the given criterion.
func (c Criteria) Has(criterion string) bool {
	for _, v := range c {
		if v == criterion {
			return true
		}
	}
	return false
}

// Value implements driver.Valuer.
func (c Criteria) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(c))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (c *Criteria) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*c = nil
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported criteria type %T", src)
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("decoding criteria: %w", err)
	}
	*c = out
	return nil
}

// Correction is a reviewer's manual classification of a single message.
// It outlives re-ingestion and is reapplied on every run.
type Correction struct {
	MessageID     string  `db:"message_id"`
	Category      string  `db:"category"`
	CategoryMacro string  `db:"category_macro"`
	Sentiment     *string `db:"sentiment"`
	Product       *string `db:"product"`
	ProductMacro  *string `db:"product_macro"`
	CreatedAt     *string `db:"created_at"`
}

// IngestRun holds metadata about one ingestion job.
type IngestRun struct {
	RunID               string  `db:"run_id"`
	StartedAt           string  `db:"started_at"`
	FinishedAt          *string `db:"finished_at"`
	RawRows             int     `db:"raw_rows"`
	SkippedRows         int     `db:"skipped_rows"`
	DuplicatesByID      int     `db:"duplicates_by_id"`
	DuplicatesByContent int     `db:"duplicates_by_content"`
	Messages            int     `db:"messages"`
	NeedsReview         int     `db:"needs_review"`
	Referrals           int     `db:"referrals"`
	Failures            int     `db:"failures"`
	Status              string  `db:"status"`
	Error               *string `db:"error"`
}

// Run statuses.
const (
	RunOK     = "ok"
	RunFailed = "failed"
)

// Stats contains aggregate database statistics.
type Stats struct {
	Messages    int `db:"messages"`
	Threads     int `db:"threads"`
	HumanTurns  int `db:"human_turns"`
	NeedsReview int `db:"needs_review"`
	Referrals   int `db:"referrals"`
	Failures    int `db:"failures"`
	Corrections int `db:"corrections"`
}
