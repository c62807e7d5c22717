// Package ledger computes credit balances from the append-only credit ledger
// and records debits and purchases against it.
//
// Balance checks and deductions are not transactional: two concurrent
// requests from the same user can both pass HasAtLeast before either Debit
// lands.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/Bharath-code/deckslayer/internal/storage"
)

// ErrInsufficientCredit is returned by Require when the balance is too low.
var ErrInsufficientCredit = errors.New("insufficient credits")

// Store is the subset of storage.Store the accessor needs.
type Store interface {
	AppendLedgerEntry(ctx context.Context, e storage.LedgerEntry) error
	SumLedger(ctx context.Context, userID string) (int, error)
	HasLedgerReason(ctx context.Context, userID, reason string) (bool, error)
	ListLedger(ctx context.Context, userID string, limit int) ([]storage.LedgerEntry, error)
}

type Accessor struct {
	store Store
}

func New(store Store) *Accessor {
	return &Accessor{store: store}
}

// GetBalance returns the sum of all ledger amounts for userID.
func (a *Accessor) GetBalance(ctx context.Context, userID string) (int, error) {
	total, err := a.store.SumLedger(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("reading balance for %s: %w", userID, err)
	}
	return total, nil
}

// HasAtLeast reports whether userID can spend n credits. A datastore error is
// returned as-is so the caller denies the operation.
func (a *Accessor) HasAtLeast(ctx context.Context, userID string, n int) (bool, error) {
	balance, err := a.GetBalance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance >= n, nil
}

// Require is HasAtLeast returning ErrInsufficientCredit instead of false.
func (a *Accessor) Require(ctx context.Context, userID string, n int) error {
	ok, err := a.HasAtLeast(ctx, userID, n)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInsufficientCredit
	}
	return nil
}

// Debit appends a consumption entry of -amount.
func (a *Accessor) Debit(ctx context.Context, userID string, amount int, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	return a.store.AppendLedgerEntry(ctx, storage.LedgerEntry{
		UserID: userID,
		Amount: -amount,
		Type:   storage.LedgerConsumption,
		Reason: reason,
	})
}

// Credit appends a positive entry of the given type (purchase or grant).
func (a *Accessor) Credit(ctx context.Context, userID string, amount int, entryType, reason string) error {
	if amount < 0 {
		return fmt.Errorf("credit amount must not be negative, got %d", amount)
	}
	return a.store.AppendLedgerEntry(ctx, storage.LedgerEntry{
		UserID: userID,
		Amount: amount,
		Type:   entryType,
		Reason: reason,
	})
}

// PurchaseReason is the ledger reason recorded for a completed purchase.
func PurchaseReason(productID string) string {
	return "Purchase of " + productID
}

// HasPurchased reports whether userID has ever bought productID.
func (a *Accessor) HasPurchased(ctx context.Context, userID, productID string) (bool, error) {
	return a.store.HasLedgerReason(ctx, userID, PurchaseReason(productID))
}

func (a *Accessor) History(ctx context.Context, userID string, limit int) ([]storage.LedgerEntry, error) {
	return a.store.ListLedger(ctx, userID, limit)
}
