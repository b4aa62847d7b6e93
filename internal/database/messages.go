package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const messageColumns = `id, thread_id, type, text, date, hour, sentiment, legacy_intent,
	product_type, product_detail, segment, input_tokens, output_tokens,
	category, category_macro, product, product_macro,
	requires_review, resolved_by, is_referral_thread, ordinal`

const insertMessageSQL = `INSERT INTO messages (` + messageColumns + `) VALUES (
	:id, :thread_id, :type, :text, :date, :hour, :sentiment, :legacy_intent,
	:product_type, :product_detail, :segment, :input_tokens, :output_tokens,
	:category, :category_macro, :product, :product_macro,
	:requires_review, :resolved_by, :is_referral_thread, :ordinal)`

// ReplaceAll swaps the message table and both event tables in a single
// transaction. Either everything is replaced or nothing is.
func (db *DB) ReplaceAll(ctx context.Context, msgs []Message, refs []Referral, fails []Failure) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback() //nolint: errcheck

	if err := replaceMessages(ctx, tx, msgs); err != nil {
		return err
	}
	if err := replaceEvents(ctx, tx, refs, fails); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceMessages swaps the message table. The event tables are derived
// from messages, so they are cleared in the same transaction.
func (db *DB) ReplaceMessages(ctx context.Context, msgs []Message) error {
	return db.ReplaceAll(ctx, msgs, nil, nil)
}

func replaceMessages(ctx context.Context, tx *sqlx.Tx, msgs []Message) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM messages"); err != nil {
		return fmt.Errorf("clearing messages: %w", err)
	}

	stmt, err := tx.PrepareNamedContext(ctx, insertMessageSQL)
	if err != nil {
		return fmt.Errorf("preparing message insert: %w", err)
	}
	defer stmt.Close()

	for i := range msgs {
		if _, err := stmt.ExecContext(ctx, &msgs[i]); err != nil {
			return fmt.Errorf("inserting message %s: %w", msgs[i].ID, err)
		}
	}
	return nil
}

// LoadMessages returns every message in chronological (ordinal) order.
func (db *DB) LoadMessages(ctx context.Context) ([]Message, error) {
	var msgs []Message
	if err := db.conn.SelectContext(ctx, &msgs,
		"SELECT "+messageColumns+" FROM messages ORDER BY ordinal"); err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	return msgs, nil
}

// CountMessages returns the number of stored messages.
func (db *DB) CountMessages(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.GetContext(ctx, &n, "SELECT COUNT(*) FROM messages"); err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return n, nil
}

// GetMessage returns a single message by ID, or nil when it does not exist.
func (db *DB) GetMessage(ctx context.Context, id string) (*Message, error) {
	var m Message
	err := db.conn.GetContext(ctx, &m,
		"SELECT "+messageColumns+" FROM messages WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetThreadMessages returns the turns of one thread in ordinal order.
func (db *DB) GetThreadMessages(ctx context.Context, threadID string) ([]Message, error) {
	var msgs []Message
	if err := db.conn.SelectContext(ctx, &msgs,
		"SELECT "+messageColumns+" FROM messages WHERE thread_id = ? ORDER BY ordinal", threadID); err != nil {
		return nil, err
	}
	return msgs, nil
}

// GetReviewQueue returns one page of messages flagged for manual review,
// newest first, plus the total size of the queue.
func (db *DB) GetReviewQueue(ctx context.Context, page, limit int) ([]Message, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	var total int
	if err := db.conn.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM messages WHERE requires_review = 1"); err != nil {
		return nil, 0, err
	}

	var msgs []Message
	err := db.conn.SelectContext(ctx, &msgs,
		"SELECT "+messageColumns+` FROM messages WHERE requires_review = 1
		ORDER BY date DESC, ordinal LIMIT ? OFFSET ?`, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}
