package store

import (
	"context"
	"fmt"
)

// JournalEntry is a posted double-entry record produced by the
// create_journal_entry_from_order action.
type JournalEntry struct {
	ID         string
	OrgID      string
	SourceType string
	SourceID   string
	Memo       string
	Lines      []JournalLine
}

// JournalLine is one leg of a journal entry. Exactly one of Debit/Credit is
// non-zero on a well-formed line.
type JournalLine struct {
	AccountCode string
	Debit       float64
	Credit      float64
}

// CreateJournalEntry inserts an entry and its lines in one transaction.
// Returns inserted=false without writing anything if an entry for the same
// (org_id, source_type, source_id) already exists - the existence check that
// makes the journal action idempotent under event retries.
//
// Rejects unbalanced entries: total debits must equal total credits.
func (s *Store) CreateJournalEntry(ctx context.Context, entry JournalEntry) (bool, error) {
	var debits, credits float64
	for _, line := range entry.Lines {
		debits += line.Debit
		credits += line.Credit
	}
	if debits != credits {
		return false, fmt.Errorf("create journal entry: unbalanced lines (debits %.2f, credits %.2f)", debits, credits)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("create journal entry: begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO journal_entries (id, org_id, source_type, source_id, memo, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(org_id, source_type, source_id) DO NOTHING
	`, entry.ID, entry.OrgID, entry.SourceType, entry.SourceID, entry.Memo, timeText(s.now()))
	if err != nil {
		return false, fmt.Errorf("create journal entry: insert entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create journal entry: rows affected: %w", err)
	}
	if affected == 0 {
		// Already posted for this source - idempotent no-op.
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("create journal entry: commit (existing): %w", err)
		}
		return false, nil
	}

	for _, line := range entry.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO journal_lines (entry_id, account_code, debit, credit)
			VALUES (?, ?, ?, ?)
		`, entry.ID, line.AccountCode, line.Debit, line.Credit)
		if err != nil {
			return false, fmt.Errorf("create journal entry: insert line: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("create journal entry: commit: %w", err)
	}

	return true, nil
}

// HasJournalEntryForSource reports whether an entry exists for a source
// record, tenant-scoped.
func (s *Store) HasJournalEntryForSource(ctx context.Context, orgID, sourceType, sourceID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM journal_entries
		WHERE org_id = ? AND source_type = ? AND source_id = ?
	`, orgID, sourceType, sourceID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check journal entry: %w", err)
	}
	return count > 0, nil
}

// GetJournalEntryForSource loads an entry and its lines by source key.
func (s *Store) GetJournalEntryForSource(ctx context.Context, orgID, sourceType, sourceID string) (JournalEntry, error) {
	var entry JournalEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, source_type, source_id, memo
		FROM journal_entries
		WHERE org_id = ? AND source_type = ? AND source_id = ?
	`, orgID, sourceType, sourceID).Scan(
		&entry.ID, &entry.OrgID, &entry.SourceType, &entry.SourceID, &entry.Memo,
	)
	if err != nil {
		return JournalEntry{}, fmt.Errorf("get journal entry: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT account_code, debit, credit
		FROM journal_lines
		WHERE entry_id = ?
		ORDER BY id ASC
	`, entry.ID)
	if err != nil {
		return JournalEntry{}, fmt.Errorf("get journal lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.AccountCode, &line.Debit, &line.Credit); err != nil {
			return JournalEntry{}, fmt.Errorf("scan journal line: %w", err)
		}
		entry.Lines = append(entry.Lines, line)
	}

	if err := rows.Err(); err != nil {
		return JournalEntry{}, fmt.Errorf("iterate journal lines: %w", err)
	}

	return entry, nil
}
