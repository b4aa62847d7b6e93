package database

import "github.com/jmoiron/sqlx"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sqlx.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sqlx.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    thread_id TEXT NOT NULL,
    type TEXT NOT NULL,
    text TEXT NOT NULL DEFAULT '',
    date TEXT,
    hour INTEGER NOT NULL DEFAULT 0,
    sentiment TEXT NOT NULL DEFAULT 'neutral',
    legacy_intent TEXT NOT NULL DEFAULT '',
    product_type TEXT NOT NULL DEFAULT '',
    product_detail TEXT NOT NULL DEFAULT '',
    segment TEXT NOT NULL DEFAULT '',
    input_tokens INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0,
    category TEXT,
    category_macro TEXT,
    product TEXT,
    product_macro TEXT,
    requires_review INTEGER NOT NULL DEFAULT 0,
    resolved_by TEXT NOT NULL DEFAULT '',
    is_referral_thread INTEGER NOT NULL DEFAULT 0,
    ordinal INTEGER NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS referrals (
    thread_id TEXT PRIMARY KEY,
    category TEXT NOT NULL,
    product TEXT NOT NULL,
    date TEXT,
    msg_count INTEGER NOT NULL,
    sentiment TEXT NOT NULL,
    customer_request TEXT NOT NULL,
    referral_response TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS failures (
    thread_id TEXT PRIMARY KEY,
    category TEXT NOT NULL,
    product TEXT NOT NULL,
    date TEXT,
    msg_count INTEGER NOT NULL,
    sentiment TEXT NOT NULL,
    criteria TEXT NOT NULL,
    last_user_message TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS corrections (
    message_id TEXT PRIMARY KEY,
    category TEXT NOT NULL,
    category_macro TEXT NOT NULL,
    sentiment TEXT,
    product TEXT,
    product_macro TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS ingest_runs (
    run_id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    raw_rows INTEGER DEFAULT 0,
    skipped_rows INTEGER DEFAULT 0,
    duplicates_by_id INTEGER DEFAULT 0,
    duplicates_by_content INTEGER DEFAULT 0,
    messages INTEGER DEFAULT 0,
    needs_review INTEGER DEFAULT 0,
    referrals INTEGER DEFAULT 0,
    failures INTEGER DEFAULT 0,
    status TEXT NOT NULL CHECK(status IN ('ok', 'failed')),
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_messages_thread_id ON messages(thread_id);
CREATE INDEX IF NOT EXISTS idx_messages_date ON messages(date);
CREATE INDEX IF NOT EXISTS idx_messages_type ON messages(type);
CREATE INDEX IF NOT EXISTS idx_messages_requires_review ON messages(requires_review);
CREATE INDEX IF NOT EXISTS idx_messages_is_referral_thread ON messages(is_referral_thread);
CREATE INDEX IF NOT EXISTS idx_messages_product ON messages(product);
CREATE INDEX IF NOT EXISTS idx_referrals_thread_id ON referrals(thread_id);
CREATE INDEX IF NOT EXISTS idx_failures_thread_id ON failures(thread_id);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_started ON ingest_runs(started_at);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
