package model

import "time"

type Account struct {
	ID          string
	Balance     int64
	ReferredBy  *string
	Referrals   []string
	ChatAddress string
	CreatedAt   time.Time
}

func (a *Account) HasReferrer() bool {
	return a.ReferredBy != nil && *a.ReferredBy != ""
}

func (a *Account) HasReferral(id string) bool {
	for _, r := range a.Referrals {
		if r == id {
			return true
		}
	}
	return false
}

// ReferralEvent is identified by the ordered pair (RefereeID, ReferrerID) and is
// applied to both accounts or to neither.
type ReferralEvent struct {
	RefereeID      string
	ReferrerID     string
	RefereeReward  int64
	ReferrerReward int64
}

// AccountReferral is a referee as seen from its referrer. JoinedAt is when the
// referral was recorded, CreatedAt is when the referee's account was created.
type AccountReferral struct {
	ID        string
	Balance   int64
	CreatedAt time.Time
	JoinedAt  time.Time
}
