package referral

// Referral tracks a referrer/referred pair and whether the reward has been
// applied. ReferredUserID is unique: a user can be referred at most once.
type Referral struct {
	ID             string `db:"id" json:"id"`
	ReferrerUserID string `db:"referrer_user_id" json:"referrer_user_id"`
	ReferredUserID string `db:"referred_user_id" json:"referred_user_id"`
	IsRewarded     bool   `db:"is_rewarded" json:"is_rewarded"`
}

func (r *Referral) TableName() string { return "referrals" }
