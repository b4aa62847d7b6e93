package database

import (
	"context"
	"fmt"
)

// SaveCorrection records a reviewer's classification of a message and
// applies it to the stored row. The correction row outlives re-ingestion;
// the message row is patched so the store reflects it immediately. A
// patched row also clears the stored referrals and failures, which were
// derived from the old classification; the next load recomputes them.
// Returns false when no stored message has that ID; the correction is kept
// regardless so it applies once the message appears.
func (db *DB) SaveCorrection(ctx context.Context, c Correction) (bool, error) {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin correction: %w", err)
	}
	defer tx.Rollback() //nolint: errcheck

	_, err = tx.NamedExecContext(ctx,
		`INSERT OR REPLACE INTO corrections
		(message_id, category, category_macro, sentiment, product, product_macro)
		VALUES (:message_id, :category, :category_macro, :sentiment, :product, :product_macro)`,
		&c,
	)
	if err != nil {
		return false, fmt.Errorf("storing correction: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE messages SET
			category = ?, category_macro = ?, requires_review = 0, resolved_by = ?,
			sentiment = COALESCE(?, sentiment),
			product = COALESCE(?, product),
			product_macro = COALESCE(?, product_macro)
		WHERE id = ?`,
		c.Category, c.CategoryMacro, ResolvedByManual,
		c.Sentiment, c.Product, c.ProductMacro, c.MessageID,
	)
	if err != nil {
		return false, fmt.Errorf("applying correction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		if err := replaceEvents(ctx, tx, nil, nil); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetCorrections returns all stored corrections keyed by message ID.
func (db *DB) GetCorrections(ctx context.Context) (map[string]Correction, error) {
	var rows []Correction
	if err := db.conn.SelectContext(ctx, &rows,
		`SELECT message_id, category, category_macro, sentiment, product, product_macro, created_at
		FROM corrections`); err != nil {
		return nil, fmt.Errorf("loading corrections: %w", err)
	}

	m := make(map[string]Correction, len(rows))
	for _, c := range rows {
		m[c.MessageID] = c
	}
	return m, nil
}

// DeleteCorrection removes a stored correction. The message keeps its
// current classification until the next ingestion.
func (db *DB) DeleteCorrection(ctx context.Context, messageID string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM corrections WHERE message_id = ?`, messageID)
	return err
}
