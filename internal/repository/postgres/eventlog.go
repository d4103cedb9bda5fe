package postgres

import (
	"context"
	"time"

	"github.com/lib/pq"
	ierr "github.com/tokenmint/ledger/internal/errors"
	"github.com/tokenmint/ledger/internal/postgres"
	"github.com/tokenmint/ledger/internal/domain/eventlog"
)

type eventLogRepository struct {
	db *postgres.DB
}

func NewEventLogRepository(db *postgres.DB) eventlog.Repository {
	return &eventLogRepository{db: db}
}

// TryInsert is C2's event-level idempotency guard (spec.md §4.2): the first
// insert for eventID proceeds, a unique-constraint conflict means "seen
// before" and the dispatcher must skip with success, never an error.
func (r *eventLogRepository) TryInsert(ctx context.Context, eventID, eventType string) (bool, error) {
	q := r.db.GetQuerier(ctx)
	_, err := q.ExecContext(ctx, `
		INSERT INTO event_log (event_id, event_type, received_at) VALUES ($1, $2, $3)
	`, eventID, eventType, time.Now().UTC())
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return false, nil
		}
		return false, ierr.Wrap(err, ierr.CodeInternal, "failed to record event").Mark(ierr.ErrTransientStorage)
	}
	return true, nil
}
