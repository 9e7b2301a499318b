package service

import (
	"context"
	"errors"

	"chypto_bot/internal/model"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrTransientStore     = errors.New("account store unavailable, try again")
	ErrInvariantViolation = errors.New("ledger invariant violated")
	ErrAccountNotFound    = errors.New("account not found")
)

type LedgerServiceI interface {
	ProcessStart(ctx context.Context, userID, chatAddress, rawPayload string) (*model.Outcome, error)
}

type AccountServiceI interface {
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	GetReferrals(ctx context.Context, id string) ([]*model.AccountReferral, error)
}

type AccountRepository interface {
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	CreateAccountIfAbsent(ctx context.Context, account *model.Account) (bool, error)
	ApplyReferral(ctx context.Context, event *model.ReferralEvent) error
}

type ReferralRepository interface {
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	GetReferrals(ctx context.Context, id string) ([]*model.AccountReferral, error)
}
