package user

import "github.com/tokenmint/ledger/internal/types"

// User is the ledger's record of an external identity. ExternalID is the
// identity the authentication provider issued; PGCustomerID is populated on
// first payment event and is the primary key the payment gateway's events
// carry.
type User struct {
	ID                  string  `db:"id" json:"id"`
	ExternalID          string  `db:"external_id" json:"external_id"`
	Email               string  `db:"email" json:"email"`
	PGCustomerID        *string `db:"pg_customer_id" json:"pg_customer_id,omitempty"`
	HasActiveSubscription bool  `db:"has_active_subscription" json:"has_active_subscription"`
	HasPaymentIssue     bool    `db:"has_payment_issue" json:"has_payment_issue"`
	IsDeleted           bool    `db:"is_deleted" json:"is_deleted"`
	types.BaseModel
}

func (u *User) TableName() string { return "users" }
