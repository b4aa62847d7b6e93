package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const referralColumns = `thread_id, category, product, date, msg_count, sentiment,
	customer_request, referral_response`

const failureColumns = `thread_id, category, product, date, msg_count, sentiment,
	criteria, last_user_message`

// ReplaceEvents swaps both derived tables in one transaction. A failure
// leaves the previously stored rows untouched.
func (db *DB) ReplaceEvents(ctx context.Context, refs []Referral, fails []Failure) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace events: %w", err)
	}
	defer tx.Rollback() //nolint: errcheck

	if err := replaceEvents(ctx, tx, refs, fails); err != nil {
		return err
	}
	return tx.Commit()
}

func replaceEvents(ctx context.Context, tx *sqlx.Tx, refs []Referral, fails []Failure) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM referrals"); err != nil {
		return fmt.Errorf("clearing referrals: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM failures"); err != nil {
		return fmt.Errorf("clearing failures: %w", err)
	}

	if len(refs) > 0 {
		stmt, err := tx.PrepareNamedContext(ctx, `INSERT INTO referrals (`+referralColumns+`)
			VALUES (:thread_id, :category, :product, :date, :msg_count, :sentiment,
			:customer_request, :referral_response)`)
		if err != nil {
			return fmt.Errorf("preparing referral insert: %w", err)
		}
		defer stmt.Close()
		for i := range refs {
			if _, err := stmt.ExecContext(ctx, &refs[i]); err != nil {
				return fmt.Errorf("inserting referral %s: %w", refs[i].ThreadID, err)
			}
		}
	}

	if len(fails) > 0 {
		stmt, err := tx.PrepareNamedContext(ctx, `INSERT INTO failures (`+failureColumns+`)
			VALUES (:thread_id, :category, :product, :date, :msg_count, :sentiment,
			:criteria, :last_user_message)`)
		if err != nil {
			return fmt.Errorf("preparing failure insert: %w", err)
		}
		defer stmt.Close()
		for i := range fails {
			if _, err := stmt.ExecContext(ctx, &fails[i]); err != nil {
				return fmt.Errorf("inserting failure %s: %w", fails[i].ThreadID, err)
			}
		}
	}
	return nil
}

// LoadReferrals returns the stored referral table.
func (db *DB) LoadReferrals(ctx context.Context) ([]Referral, error) {
	var refs []Referral
	if err := db.conn.SelectContext(ctx, &refs,
		"SELECT "+referralColumns+" FROM referrals ORDER BY rowid"); err != nil {
		return nil, fmt.Errorf("loading referrals: %w", err)
	}
	return refs, nil
}

// LoadFailures returns the stored failure table.
func (db *DB) LoadFailures(ctx context.Context) ([]Failure, error) {
	var fails []Failure
	if err := db.conn.SelectContext(ctx, &fails,
		"SELECT "+failureColumns+" FROM failures ORDER BY rowid"); err != nil {
		return nil, fmt.Errorf("loading failures: %w", err)
	}
	return fails, nil
}
