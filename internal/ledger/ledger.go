// Package ledger implements C3, the token ledger: grants batches, consumes
// them FIFO-by-expiry, expires stale batches, and logs every delta to the
// append-only journal (spec.md §4.3).
package ledger

import (
	"context"
	"time"

	"github.com/tokenmint/ledger/internal/domain/batch"
	"github.com/tokenmint/ledger/internal/domain/tokenevent"
	ierr "github.com/tokenmint/ledger/internal/errors"
	"github.com/tokenmint/ledger/internal/logger"
	"github.com/tokenmint/ledger/internal/postgres"
)

// Ledger is C3's concrete implementation, backed by the batch and token
// event repositories and the shared Postgres transaction helper.
type Ledger struct {
	db         postgres.IClient
	batches    batch.Repository
	tokenEvent tokenevent.Repository
	logger     *logger.Logger
}

func New(db postgres.IClient, batches batch.Repository, tokenEvent tokenevent.Repository, logger *logger.Logger) *Ledger {
	return &Ledger{db: db, batches: batches, tokenEvent: tokenEvent, logger: logger}
}

// ConsumeMode controls whether Consume accepts a partial fill.
type ConsumeMode int

const (
	// ConsumeAllOrNothing is the default: abort with ErrInsufficientTokens
	// if the request cannot be fully satisfied (spec.md §4.3).
	ConsumeAllOrNothing ConsumeMode = iota
	// ConsumeBestEffort returns whatever could be consumed.
	ConsumeBestEffort
)

// Grant inserts a batch and its opening positive token event in one
// transaction (spec.md §4.3's grant_batch). If invoiceID collides with an
// existing batch (I3), the existing batch's id is returned and no duplicate
// row or journal entry is written — "already credited" is success, not error.
func (l *Ledger) Grant(ctx context.Context, in batch.GrantInput, reason tokenevent.Reason) (batchID string, alreadyCredited bool, err error) {
	err = l.db.WithTx(ctx, func(ctx context.Context) error {
		b := &batch.Batch{
			UserID:         in.UserID,
			Source:         in.Source,
			SubscriptionID: in.SubscriptionID,
			PurchaseID:     in.PurchaseID,
			InvoiceID:      in.InvoiceID,
			Amount:         in.Amount,
			ExpiresAt:      in.ExpiresAt,
			IsActive:       true,
			Note:           in.Note,
		}

		id, insertErr := l.batches.Insert(ctx, b)
		if insertErr != nil {
			if ierr.Is(insertErr, ierr.ErrAlreadyCredited) {
				existing, getErr := l.batches.GetByInvoiceID(ctx, *in.InvoiceID)
				if getErr != nil {
					return getErr
				}
				batchID = existing.ID
				alreadyCredited = true
				return nil
			}
			return insertErr
		}

		batchID = id
		return l.tokenEvent.Append(ctx, &tokenevent.Event{
			UserID:  in.UserID,
			BatchID: id,
			Delta:   in.Amount,
			Reason:  reason,
			At:      time.Now().UTC(),
		})
	})
	return batchID, alreadyCredited, err
}

// Consume spends `amount` tokens FIFO-by-expiry (earliest expires_at first,
// tie-broken by batch id), across all active non-expired batches regardless
// of source (spec.md §4.3). In ConsumeAllOrNothing mode, an underfilled
// request rolls back the whole transaction and returns ErrInsufficientTokens
// carrying the available amount.
func (l *Ledger) Consume(ctx context.Context, userID string, amount int64, reason tokenevent.Reason, mode ConsumeMode) (consumed int64, err error) {
	if amount <= 0 {
		return 0, nil
	}

	err = l.db.WithTx(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()
		candidates, lockErr := l.batches.LockActiveFIFO(ctx, userID, now)
		if lockErr != nil {
			return lockErr
		}

		remaining := amount
		for _, b := range candidates {
			if remaining <= 0 {
				break
			}
			available := b.Remaining()
			if available <= 0 {
				continue
			}
			take := remaining
			if available < take {
				take = available
			}

			if applyErr := l.batches.ApplyConsumption(ctx, b.ID, take); applyErr != nil {
				return applyErr
			}
			if appendErr := l.tokenEvent.Append(ctx, &tokenevent.Event{
				UserID:  userID,
				BatchID: b.ID,
				Delta:   -take,
				Reason:  reason,
				At:      now,
			}); appendErr != nil {
				return appendErr
			}

			consumed += take
			remaining -= take
		}

		if remaining > 0 && mode == ConsumeAllOrNothing {
			available := amount - remaining
			consumed = 0
			return ierr.New(ierr.CodeInsufficientTokens, "insufficient token balance").
				WithHint("requested more tokens than the user currently has").
				Mark(ierr.ErrInsufficientTokens).
				WithDetails(amount, available)
		}

		return nil
	})
	return consumed, err
}

// ExpireDue deactivates every active batch with expires_at <= now and writes
// an expiry token event for any remaining balance, keeping the per-batch
// journal-sum invariant (spec.md §3, §4.3). Used by the maintenance worker;
// all due batches are handled in one transaction, and a re-run finds nothing
// left to expire because expired batches are no longer active.
func (l *Ledger) ExpireDue(ctx context.Context, now time.Time) (expiredCount int, err error) {
	err = l.db.WithTx(ctx, func(ctx context.Context) error {
		due, listErr := l.batches.ListExpiredActive(ctx, now)
		if listErr != nil {
			return listErr
		}

		for _, b := range due {
			if deactivateErr := l.batches.Deactivate(ctx, b.ID); deactivateErr != nil {
				return deactivateErr
			}
			remaining := b.Remaining()
			if remaining > 0 {
				if appendErr := l.tokenEvent.Append(ctx, &tokenevent.Event{
					UserID:  b.UserID,
					BatchID: b.ID,
					Delta:   -remaining,
					Reason:  tokenevent.ReasonExpiry,
					At:      now,
				}); appendErr != nil {
					return appendErr
				}
			}
			expiredCount++
		}
		return nil
	})
	return expiredCount, err
}

// Balance returns sum(max(0, amount-consumed)) over active, non-expired
// batches for userID (spec.md §4.3).
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	return l.batches.Balance(ctx, userID, time.Now().UTC())
}
