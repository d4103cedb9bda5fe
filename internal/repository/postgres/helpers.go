package postgres

// uniqueViolation is the Postgres SQLSTATE for a unique-constraint conflict,
// used across repositories to turn idempotency-anchor conflicts (spec.md §4.2:
// invoice_id, pg_purchase_id, referred_user_id, event_id) into "already
// exists" outcomes instead of opaque storage errors.
const uniqueViolation = "23505"
