package dispatcher

import (
	"context"

	"github.com/tokenmint/ledger/internal/domain/user"
	ierr "github.com/tokenmint/ledger/internal/errors"
)

// resolveUser runs the user-resolution chain in order: metadata.user_id,
// then User.pg_customer_id = event.customer, then a customer email lookup
// via the gateway (spec.md §4.5.1). If none resolve, the returned error is
// marked ErrUnresolvedUser — callers log an anomaly and return success
// rather than retry.
func (d *Dispatcher) resolveUser(ctx context.Context, metadataUserID, customerID string) (*user.User, error) {
	if metadataUserID != "" {
		u, err := d.users.GetByID(ctx, metadataUserID)
		if err == nil {
			return u, nil
		}
		if !ierr.Is(err, ierr.ErrNotFound) {
			return nil, err
		}
	}

	if customerID != "" {
		u, err := d.users.GetByPGCustomerID(ctx, customerID)
		if err == nil {
			return u, nil
		}
		if !ierr.Is(err, ierr.ErrNotFound) {
			return nil, err
		}

		cust, custErr := d.pg.GetCustomerByID(ctx, customerID)
		if custErr == nil && cust.Email != "" {
			u, err := d.users.GetByEmail(ctx, cust.Email)
			if err == nil {
				return u, nil
			}
			if !ierr.Is(err, ierr.ErrNotFound) {
				return nil, err
			}
		}
	}

	d.logger.Warnw("could not resolve user for event", "customer_id", customerID, "metadata_user_id", metadataUserID)
	return nil, ierr.New(ierr.CodeUnresolvedUser, "could not resolve user for event").Mark(ierr.ErrUnresolvedUser)
}
