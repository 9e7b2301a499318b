package mocks

import (
	"context"

	"chypto_bot/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *MockAccountRepository) CreateAccountIfAbsent(ctx context.Context, account *model.Account) (bool, error) {
	args := m.Called(ctx, account)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountRepository) ApplyReferral(ctx context.Context, event *model.ReferralEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockAccountRepository) GetReferrals(ctx context.Context, id string) ([]*model.AccountReferral, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.AccountReferral), args.Error(1)
}
