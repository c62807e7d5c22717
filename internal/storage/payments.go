package storage

import (
	"context"
	"fmt"
	"time"
)

// RecordPaymentEvent marks a webhook delivery as processed. It returns false
// when the event id was already recorded, so duplicate deliveries can be
// acknowledged without being applied twice.
func (s *Store) RecordPaymentEvent(ctx context.Context, id, eventType string) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning payment event transaction: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.GetContext(ctx, &n, tx.Rebind(`SELECT COUNT(*) FROM payment_events WHERE id = ?`), id); err != nil {
		return false, fmt.Errorf("checking payment event: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO payment_events (id, type, created_at) VALUES (?, ?, ?)`),
		id, eventType, formatTime(time.Now())); err != nil {
		return false, fmt.Errorf("recording payment event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing payment event: %w", err)
	}
	return true, nil
}

// ForgetPaymentEvent removes a recorded delivery so a redelivery of the same
// event is applied again. Used when applying the event failed after it was
// recorded.
func (s *Store) ForgetPaymentEvent(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM payment_events WHERE id = ?`), id); err != nil {
		return fmt.Errorf("forgetting payment event: %w", err)
	}
	return nil
}
