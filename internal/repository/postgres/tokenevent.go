package postgres

import (
	"context"
	"database/sql"
	"time"

	ierr "github.com/tokenmint/ledger/internal/errors"
	"github.com/tokenmint/ledger/internal/postgres"
	"github.com/tokenmint/ledger/internal/domain/tokenevent"
	"github.com/tokenmint/ledger/internal/types"
)

type tokenEventRepository struct {
	db *postgres.DB
}

func NewTokenEventRepository(db *postgres.DB) tokenevent.Repository {
	return &tokenEventRepository{db: db}
}

// Append writes one entry to the append-only journal (spec.md §3). Every
// balance-affecting operation calls this exactly once per batch touched.
func (r *tokenEventRepository) Append(ctx context.Context, e *tokenevent.Event) error {
	q := r.db.GetQuerier(ctx)
	if e.ID == "" {
		e.ID = types.GenerateUUIDWithPrefix(types.UUIDPrefixTokenEvent)
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO token_event_log (id, user_id, batch_id, delta, reason, at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, e.ID, e.UserID, e.BatchID, e.Delta, e.Reason, e.At)
	if err != nil {
		return ierr.Wrap(err, ierr.CodeInternal, "failed to append token event").Mark(ierr.ErrTransientStorage)
	}
	return nil
}

func (r *tokenEventRepository) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*tokenevent.Event, error) {
	q := r.db.GetQuerier(ctx)
	var events []*tokenevent.Event
	err := q.SelectContext(ctx, &events, `
		SELECT id, user_id, batch_id, delta, reason, at FROM token_event_log
		WHERE user_id = $1 ORDER BY at DESC, id DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, ierr.Wrap(err, ierr.CodeInternal, "failed to list token events").Mark(ierr.ErrTransientStorage)
	}
	return events, nil
}

func (r *tokenEventRepository) ListForBatch(ctx context.Context, batchID string) ([]*tokenevent.Event, error) {
	q := r.db.GetQuerier(ctx)
	var events []*tokenevent.Event
	err := q.SelectContext(ctx, &events, `
		SELECT id, user_id, batch_id, delta, reason, at FROM token_event_log
		WHERE batch_id = $1 ORDER BY at ASC, id ASC
	`, batchID)
	if err != nil {
		return nil, ierr.Wrap(err, ierr.CodeInternal, "failed to list batch token events").Mark(ierr.ErrTransientStorage)
	}
	return events, nil
}

// SumForUser backs the reconciliation worker's balance-invariant check
// (spec.md §4.7, §8): the running journal sum for a user must reconcile with
// current batch totals.
func (r *tokenEventRepository) SumForUser(ctx context.Context, userID string) (int64, error) {
	q := r.db.GetQuerier(ctx)
	var sum sql.NullInt64
	err := q.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(delta), 0) FROM token_event_log WHERE user_id = $1
	`, userID)
	if err != nil {
		return 0, ierr.Wrap(err, ierr.CodeInternal, "failed to sum token events").Mark(ierr.ErrTransientStorage)
	}
	return sum.Int64, nil
}
