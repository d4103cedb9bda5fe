package eventlog

import "time"

// Entry records that a payment-gateway event was processed. Its presence
// means "processed before" (spec.md §3) — the event-level idempotency
// anchor for C2.
type Entry struct {
	EventID    string    `db:"event_id" json:"event_id"`
	EventType  string    `db:"event_type" json:"event_type"`
	ReceivedAt time.Time `db:"received_at" json:"received_at"`
}

func (e *Entry) TableName() string { return "event_log" }
