package postgres

import (
	"database/sql"
	"context"

	ierr "github.com/tokenmint/ledger/internal/errors"
	"github.com/tokenmint/ledger/internal/postgres"
	"github.com/tokenmint/ledger/internal/domain/referral"
)

type referralRepository struct {
	db *postgres.DB
}

func NewReferralRepository(db *postgres.DB) referral.Repository {
	return &referralRepository{db: db}
}

func (r *referralRepository) GetPendingByReferredUserID(ctx context.Context, referredUserID string) (*referral.Referral, error) {
	q := r.db.GetQuerier(ctx)
	ref := &referral.Referral{}
	err := q.GetContext(ctx, ref, `
		SELECT id, referrer_user_id, referred_user_id, is_rewarded
		FROM referrals WHERE referred_user_id = $1 AND is_rewarded = false
	`, referredUserID)
	if err == sql.ErrNoRows {
		return nil, ierr.Wrap(err, ierr.CodeNotFound, "no pending referral").Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return nil, ierr.Wrap(err, ierr.CodeInternal, "failed to get pending referral").Mark(ierr.ErrTransientStorage)
	}
	return ref, nil
}

// MarkRewarded flips is_rewarded, returning rewarded=false (not an error) if
// the referral had already been rewarded by a prior delivery of the same
// driving event (spec.md §4.2).
func (r *referralRepository) MarkRewarded(ctx context.Context, id string) (bool, error) {
	q := r.db.GetQuerier(ctx)
	res, err := q.ExecContext(ctx, `
		UPDATE referrals SET is_rewarded = true WHERE id = $1 AND is_rewarded = false
	`, id)
	if err != nil {
		return false, ierr.Wrap(err, ierr.CodeInternal, "failed to mark referral rewarded").Mark(ierr.ErrTransientStorage)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, ierr.Wrap(err, ierr.CodeInternal, "failed to read rows affected").Mark(ierr.ErrTransientStorage)
	}
	return n > 0, nil
}
