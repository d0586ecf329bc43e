// Package ledger implements the unlock-grant ledger and the reward-currency
// balance over the shared state store.
//
// An unlock grant is one key (unlock_<target> -> unix millis expiry); the
// currency balance is one key (diamonds). Each operation mutates at most one
// key, so the store's single-key atomicity is sufficient. Expired grants are
// deleted lazily when encountered, never eagerly swept.
package ledger

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/stepfence/StepFence/internal/models"
	"github.com/stepfence/StepFence/internal/store"
)

// Ledger mediates all unlock-grant and currency access.
type Ledger struct {
	store store.Store
	now   func() time.Time
}

// New creates a Ledger over the given store.
func New(st store.Store) *Ledger {
	return &Ledger{store: st, now: time.Now}
}

// SetNowFunc overrides the clock. Intended for tests.
func (l *Ledger) SetNowFunc(now func() time.Time) {
	l.now = now
}

// Balance returns the current currency balance. A missing key reads as zero.
func (l *Ledger) Balance() (int64, error) {
	return l.store.GetInt64(store.KeyDiamonds, 0)
}

// Credit adds amount to the balance.
func (l *Ledger) Credit(amount int64) error {
	if amount < 0 {
		return models.ErrInvalidCost
	}
	balance, err := l.Balance()
	if err != nil {
		return fmt.Errorf("failed to read balance: %w", err)
	}
	if err := l.store.SetInt64(store.KeyDiamonds, balance+amount); err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}
	slog.Debug("Ledger.Credit succeeded", "amount", amount, "balance", balance+amount)
	return nil
}

// Debit subtracts amount from the balance. Returns false without mutating
// anything when the balance would go negative.
func (l *Ledger) Debit(amount int64) (bool, error) {
	if amount < 0 {
		return false, models.ErrInvalidCost
	}
	balance, err := l.Balance()
	if err != nil {
		return false, fmt.Errorf("failed to read balance: %w", err)
	}
	if balance < amount {
		slog.Debug("Ledger.Debit refused", "amount", amount, "balance", balance)
		return false, nil
	}
	if err := l.store.SetInt64(store.KeyDiamonds, balance-amount); err != nil {
		return false, fmt.Errorf("failed to debit balance: %w", err)
	}
	slog.Debug("Ledger.Debit succeeded", "amount", amount, "balance", balance-amount)
	return true, nil
}

// Purchase buys an unlock grant for target. It debits cost and extends the
// grant from the greater of the existing expiry and now, so purchases never
// shorten a grant and sequential purchases stack. Returns false with no state
// change when the balance is insufficient.
func (l *Ledger) Purchase(target string, minutes int, cost int64) (bool, error) {
	if err := models.ValidatePurchase(target, minutes, cost); err != nil {
		return false, err
	}

	ok, err := l.Debit(cost)
	if err != nil {
		return false, err
	}
	if !ok {
		slog.Info("Ledger.Purchase refused: insufficient balance", "target", target, "cost", cost)
		return false, nil
	}

	now := l.now()
	base := now
	if existing, found, err := l.expiresAt(target); err != nil {
		return false, err
	} else if found && existing.After(base) {
		base = existing
	}
	expiry := base.Add(time.Duration(minutes) * time.Minute)

	if err := l.store.SetInt64(store.UnlockKey(target), expiry.UnixMilli()); err != nil {
		return false, fmt.Errorf("failed to write unlock grant for %s: %w", target, err)
	}
	slog.Info("Ledger.Purchase succeeded", "target", target, "minutes", minutes, "cost", cost, "expires_at", expiry)
	return true, nil
}

// RemainingMillis returns the milliseconds until target's grant expires.
// A missing grant behaves as already expired: remaining = -now.
func (l *Ledger) RemainingMillis(target string) (int64, error) {
	now := l.now()
	expiry, found, err := l.expiresAt(target)
	if err != nil {
		return 0, err
	}
	if !found {
		return -now.UnixMilli(), nil
	}
	return expiry.UnixMilli() - now.UnixMilli(), nil
}

// ActiveGrants returns all grants with positive remaining time, sorted by
// target. Expired entries encountered along the way are deleted.
func (l *Ledger) ActiveGrants() ([]models.GrantStatus, error) {
	keys, err := l.store.KeysWithPrefix(store.UnlockKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate unlock grants: %w", err)
	}

	now := l.now()
	var grants []models.GrantStatus
	for _, key := range keys {
		target := strings.TrimPrefix(key, store.UnlockKeyPrefix)
		millis, err := l.store.GetInt64(key, 0)
		if err != nil {
			slog.Warn("Ledger.ActiveGrants: skipping unreadable grant", "target", target, "error", err)
			continue
		}
		expiry := time.UnixMilli(millis)
		if !expiry.After(now) {
			// Lazy deletion of expired entries.
			if err := l.store.Delete(key); err != nil {
				slog.Warn("Ledger.ActiveGrants: failed to delete expired grant", "target", target, "error", err)
			}
			continue
		}
		grants = append(grants, models.GrantStatus{
			Target:    target,
			ExpiresAt: expiry,
			Remaining: expiry.Sub(now),
		})
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].Target < grants[j].Target })
	return grants, nil
}

// expiresAt reads target's stored expiry. found is false when no entry exists.
func (l *Ledger) expiresAt(target string) (expiry time.Time, found bool, err error) {
	millis, err := l.store.GetInt64(store.UnlockKey(target), -1)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read unlock grant for %s: %w", target, err)
	}
	if millis < 0 {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(millis), true, nil
}
