package model

type OutcomeKind string

const (
	OutcomeWelcome         OutcomeKind = "welcome"
	OutcomeReferralApplied OutcomeKind = "referral_applied"
	OutcomeAlreadyReferred OutcomeKind = "already_referred"
	OutcomeInvalidReferrer OutcomeKind = "invalid_referrer"
)

type MessageKind string

const (
	MessageReferralUsed MessageKind = "referral_used"
)

type Notification struct {
	ChatAddress string
	Kind        MessageKind
	Params      map[string]string
}

type Outcome struct {
	Kind         OutcomeKind
	UserID       string
	ChatAddress  string
	ReferrerID   string
	Balance      int64
	ReferralLink string
	Notification *Notification
}

func (o *Outcome) PointsReceived() bool {
	return o.Kind == OutcomeReferralApplied
}
