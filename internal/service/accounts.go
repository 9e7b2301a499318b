package service

import (
	"context"
	"errors"
	"fmt"

	"chypto_bot/internal/model"
	"chypto_bot/internal/repository"
)

type AccountService struct {
	repo ReferralRepository
}

func NewAccountService(repo ReferralRepository) *AccountService {
	return &AccountService{
		repo: repo,
	}
}

func (s *AccountService) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	account, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

func (s *AccountService) GetReferrals(ctx context.Context, id string) ([]*model.AccountReferral, error) {
	if _, err := s.GetAccount(ctx, id); err != nil {
		return nil, err
	}

	referrals, err := s.repo.GetReferrals(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get referrals: %w", err)
	}
	return referrals, nil
}
