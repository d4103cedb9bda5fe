package eventlog

import "context"

// Repository is C2's event-level idempotency guard. TryInsert returns
// (true, nil) on first sight of eventID and (false, nil) on a unique-
// constraint conflict — never an error for the duplicate case, since the
// dispatcher must treat a duplicate as "skip with success."
type Repository interface {
	// TryInsert attempts to record eventID as seen. It returns inserted=true
	// if this is the first time the event has been recorded.
	TryInsert(ctx context.Context, eventID, eventType string) (inserted bool, err error)
}
