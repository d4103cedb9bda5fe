package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	ierr "github.com/tokenmint/ledger/internal/errors"
	"github.com/tokenmint/ledger/internal/postgres"
	"github.com/tokenmint/ledger/internal/domain/batch"
	"github.com/tokenmint/ledger/internal/types"
)

type batchRepository struct {
	db *postgres.DB
}

func NewBatchRepository(db *postgres.DB) batch.Repository {
	return &batchRepository{db: db}
}

const batchColumns = `
	id, user_id, source, subscription_id, purchase_id, invoice_id, amount,
	consumed, expires_at, is_active, note, status, created_at, updated_at,
	created_by, updated_by
`

// Insert enforces I3: a unique-constraint conflict on invoice_id means
// "already credited" and is surfaced to the caller distinctly (via
// ErrAlreadyCredited) rather than as a generic storage error.
func (r *batchRepository) Insert(ctx context.Context, b *batch.Batch) (string, error) {
	if err := b.Validate(); err != nil {
		return "", err
	}

	q := r.db.GetQuerier(ctx)
	if b.ID == "" {
		b.ID = types.GenerateUUIDWithPrefix(types.UUIDPrefixBatch)
	}
	now := time.Now().UTC()

	res, err := q.ExecContext(ctx, `
		INSERT INTO batches (
			id, user_id, source, subscription_id, purchase_id, invoice_id, amount,
			consumed, expires_at, is_active, note, status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
		ON CONFLICT (invoice_id) WHERE invoice_id IS NOT NULL DO NOTHING
	`, b.ID, b.UserID, b.Source, b.SubscriptionID, b.PurchaseID, b.InvoiceID, b.Amount,
		b.Consumed, b.ExpiresAt, b.IsActive, b.Note, types.StatusActive, now)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return "", ierr.Wrap(err, ierr.CodeInternal, "batch already credited for this invoice").Mark(ierr.ErrAlreadyCredited)
		}
		return "", ierr.Wrap(err, ierr.CodeInternal, "failed to insert batch").Mark(ierr.ErrTransientStorage)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", ierr.Wrap(ierr.ErrAlreadyCredited, ierr.CodeInternal, "batch already credited for this invoice").Mark(ierr.ErrAlreadyCredited)
	}
	return b.ID, nil
}

func (r *batchRepository) GetByInvoiceID(ctx context.Context, invoiceID string) (*batch.Batch, error) {
	q := r.db.GetQuerier(ctx)
	b := &batch.Batch{}
	err := q.GetContext(ctx, b, `SELECT `+batchColumns+` FROM batches WHERE invoice_id = $1`, invoiceID)
	if err == sql.ErrNoRows {
		return nil, ierr.Wrap(err, ierr.CodeNotFound, "batch not found").Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return nil, ierr.Wrap(err, ierr.CodeInternal, "failed to get batch").Mark(ierr.ErrTransientStorage)
	}
	return b, nil
}

func (r *batchRepository) GetByID(ctx context.Context, id string) (*batch.Batch, error) {
	q := r.db.GetQuerier(ctx)
	b := &batch.Batch{}
	err := q.GetContext(ctx, b, `SELECT `+batchColumns+` FROM batches WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, ierr.Wrap(err, ierr.CodeNotFound, "batch not found").Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return nil, ierr.Wrap(err, ierr.CodeInternal, "failed to get batch").Mark(ierr.ErrTransientStorage)
	}
	return b, nil
}

// LockActiveFIFO returns active, non-expired batches ordered by expires_at
// ASC, id ASC with row locks, per spec.md §4.1/§4.3's FIFO-by-expiry
// consumption. Must be called inside a transaction — FOR UPDATE requires one.
func (r *batchRepository) LockActiveFIFO(ctx context.Context, userID string, asOf time.Time) ([]*batch.Batch, error) {
	q := r.db.GetQuerier(ctx)
	var batches []*batch.Batch
	err := q.SelectContext(ctx, &batches, `
		SELECT `+batchColumns+` FROM batches
		WHERE user_id = $1 AND is_active = true AND expires_at > $2
		ORDER BY expires_at ASC, id ASC
		FOR UPDATE
	`, userID, asOf)
	if err != nil {
		return nil, ierr.Wrap(err, ierr.CodeInternal, "failed to lock active batches").Mark(ierr.ErrTransientStorage)
	}
	return batches, nil
}

func (r *batchRepository) ApplyConsumption(ctx context.Context, batchID string, delta int64) error {
	q := r.db.GetQuerier(ctx)
	_, err := q.ExecContext(ctx, `
		UPDATE batches SET consumed = consumed + $1, updated_at = now() WHERE id = $2
	`, delta, batchID)
	if err != nil {
		return ierr.Wrap(err, ierr.CodeInternal, "failed to apply batch consumption").Mark(ierr.ErrTransientStorage)
	}
	return nil
}

func (r *batchRepository) Deactivate(ctx context.Context, batchID string) error {
	q := r.db.GetQuerier(ctx)
	_, err := q.ExecContext(ctx, `
		UPDATE batches SET is_active = false, updated_at = now() WHERE id = $1
	`, batchID)
	if err != nil {
		return ierr.Wrap(err, ierr.CodeInternal, "failed to deactivate batch").Mark(ierr.ErrTransientStorage)
	}
	return nil
}

// ListExpiredActive returns active batches past expiry for the maintenance
// worker's sweep (spec.md §4.6). Row-locked so a concurrent consume can't
// race the sweep's expiry write.
func (r *batchRepository) ListExpiredActive(ctx context.Context, asOf time.Time) ([]*batch.Batch, error) {
	q := r.db.GetQuerier(ctx)
	var batches []*batch.Batch
	err := q.SelectContext(ctx, &batches, `
		SELECT `+batchColumns+` FROM batches
		WHERE is_active = true AND expires_at <= $1
		ORDER BY id ASC
		FOR UPDATE
	`, asOf)
	if err != nil {
		return nil, ierr.Wrap(err, ierr.CodeInternal, "failed to list expired batches").Mark(ierr.ErrTransientStorage)
	}
	return batches, nil
}

// Balance computes sum(max(0, amount-consumed)) over active, non-expired
// batches, per spec.md §4.3's balance view.
func (r *batchRepository) Balance(ctx context.Context, userID string, asOf time.Time) (int64, error) {
	q := r.db.GetQuerier(ctx)
	var balance sql.NullInt64
	err := q.GetContext(ctx, &balance, `
		SELECT COALESCE(SUM(GREATEST(amount - consumed, 0)), 0)
		FROM batches
		WHERE user_id = $1 AND is_active = true AND expires_at > $2
	`, userID, asOf)
	if err != nil {
		return 0, ierr.Wrap(err, ierr.CodeInternal, "failed to compute balance").Mark(ierr.ErrTransientStorage)
	}
	return balance.Int64, nil
}
