package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ledgerRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	Amount    int    `db:"amount"`
	Type      string `db:"type"`
	Reason    string `db:"reason"`
	CreatedAt string `db:"created_at"`
}

// AppendLedgerEntry inserts an immutable ledger row. ID and CreatedAt are
// filled in when empty.
func (s *Store) AppendLedgerEntry(ctx context.Context, e LedgerEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Type == "" {
		e.Type = LedgerConsumption
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO credits_ledger (id, user_id, amount, type, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		e.ID, e.UserID, e.Amount, e.Type, e.Reason, formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting ledger entry: %w", err)
	}
	return nil
}

// SumLedger returns the sum of all ledger amounts for userID, 0 if none.
func (s *Store) SumLedger(ctx context.Context, userID string) (int, error) {
	var total int64
	err := s.db.GetContext(ctx, &total, s.db.Rebind(
		`SELECT COALESCE(SUM(amount), 0) FROM credits_ledger WHERE user_id = ?`), userID)
	if err != nil {
		return 0, fmt.Errorf("summing ledger: %w", err)
	}
	return int(total), nil
}

// HasLedgerReason reports whether userID has at least one entry with the exact reason.
func (s *Store) HasLedgerReason(ctx context.Context, userID, reason string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(
		`SELECT COUNT(*) FROM credits_ledger WHERE user_id = ? AND reason = ?`), userID, reason)
	if err != nil {
		return false, fmt.Errorf("querying ledger reason: %w", err)
	}
	return n > 0, nil
}

// ListLedger returns the most recent entries for userID, newest first.
func (s *Store) ListLedger(ctx context.Context, userID string, limit int) ([]LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []ledgerRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT id, user_id, amount, type, reason, created_at
		FROM credits_ledger WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing ledger: %w", err)
	}

	entries := make([]LedgerEntry, 0, len(rows))
	for _, r := range rows {
		t, err := parseTime(r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at for ledger entry %s: %w", r.ID, err)
		}
		entries = append(entries, LedgerEntry{
			ID:        r.ID,
			UserID:    r.UserID,
			Amount:    r.Amount,
			Type:      r.Type,
			Reason:    r.Reason,
			CreatedAt: t,
		})
	}
	return entries, nil
}
