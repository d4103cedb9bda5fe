package batch

import (
	"time"

	"github.com/tokenmint/ledger/internal/errors"
	"github.com/tokenmint/ledger/internal/types"
)

// Origin is the sum type spec.md §9 calls for in place of a bare string tag:
// Subscription(sub_id) | Purchase(purchase_id) | Referral(referrer_id). The
// persisted representation is still the string tag plus one nullable
// foreign key; in-process code matches exhaustively via Source.
type Origin string

const (
	OriginSubscription Origin = "subscription"
	OriginPurchase     Origin = "purchase"
	OriginReferral     Origin = "referral"
)

// Batch is the ledger's atom of credit: an amount, an expiry, and a source.
type Batch struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	Source         Origin    `db:"source" json:"source"`
	SubscriptionID *string   `db:"subscription_id" json:"subscription_id,omitempty"`
	PurchaseID     *string   `db:"purchase_id" json:"purchase_id,omitempty"`
	InvoiceID      *string   `db:"invoice_id" json:"invoice_id,omitempty"`
	Amount         int64     `db:"amount" json:"amount"`
	Consumed       int64     `db:"consumed" json:"consumed"`
	ExpiresAt      time.Time `db:"expires_at" json:"expires_at"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	Note           string    `db:"note" json:"note"`
	types.BaseModel
}

func (b *Batch) TableName() string { return "batches" }

// Remaining is the spendable amount left on this batch.
func (b *Batch) Remaining() int64 {
	r := b.Amount - b.Consumed
	if r < 0 {
		return 0
	}
	return r
}

// Validate enforces I1/I2 from spec.md §3 at construction time.
func (b *Batch) Validate() error {
	if b.Consumed < 0 || b.Consumed > b.Amount {
		return errors.New(errors.CodeValidation, "consumed must be between 0 and amount")
	}
	switch b.Source {
	case OriginSubscription:
		if b.SubscriptionID == nil {
			return errors.New(errors.CodeValidation, "subscription batch requires subscription_id")
		}
	case OriginPurchase:
		if b.PurchaseID == nil {
			return errors.New(errors.CodeValidation, "purchase batch requires purchase_id")
		}
	case OriginReferral:
		// referrer is tracked on the Referral row, not the batch
	default:
		return errors.New(errors.CodeValidation, "unknown batch source: "+string(b.Source))
	}
	return nil
}
