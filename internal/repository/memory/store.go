// Package memory provides an in-process account store. All operations run under
// one mutex, which makes every operation, including ApplyReferral, atomic.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"chypto_bot/internal/model"
	"chypto_bot/internal/repository"
)

type Store struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
	joinedAt map[string]map[string]time.Time
	now      func() time.Time
}

func New() *Store {
	return &Store{
		accounts: make(map[string]*model.Account),
		joinedAt: make(map[string]map[string]time.Time),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) GetAccount(_ context.Context, id string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneAccount(a), nil
}

func (s *Store) CreateAccountIfAbsent(_ context.Context, account *model.Account) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.ID]; ok {
		return false, nil
	}

	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	s.accounts[account.ID] = &model.Account{
		ID:          account.ID,
		ChatAddress: account.ChatAddress,
		CreatedAt:   createdAt,
	}
	return true, nil
}

func (s *Store) ConditionalAttachReferral(_ context.Context, id, referrerID string, reward int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkAttach(id, referrerID); err != nil {
		return err
	}
	s.attach(id, referrerID, reward)
	return nil
}

func (s *Store) CreditReferrer(_ context.Context, id string, reward int64, refereeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkCredit(id, refereeID); err != nil {
		return err
	}
	s.credit(id, reward, refereeID)
	return nil
}

func (s *Store) ApplyReferral(_ context.Context, event *model.ReferralEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkAttach(event.RefereeID, event.ReferrerID); err != nil {
		return err
	}
	if err := s.checkCredit(event.ReferrerID, event.RefereeID); err != nil {
		return err
	}

	s.attach(event.RefereeID, event.ReferrerID, event.RefereeReward)
	s.credit(event.ReferrerID, event.ReferrerReward, event.RefereeID)
	return nil
}

func (s *Store) GetReferrals(_ context.Context, id string) ([]*model.AccountReferral, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	joined := s.joinedAt[id]
	refs := make([]*model.AccountReferral, 0, len(joined))
	for refereeID := range joined {
		a, ok := s.accounts[refereeID]
		if !ok {
			continue
		}
		refs = append(refs, &model.AccountReferral{
			ID:        a.ID,
			Balance:   a.Balance,
			CreatedAt: a.CreatedAt,
			JoinedAt:  joined[refereeID],
		})
	}

	sort.Slice(refs, func(i, j int) bool {
		ti, tj := joined[refs[i].ID], joined[refs[j].ID]
		if ti.Equal(tj) {
			return refs[i].ID < refs[j].ID
		}
		return ti.Before(tj)
	})

	return refs, nil
}

func (s *Store) checkAttach(id, referrerID string) error {
	if id == referrerID {
		return repository.ErrSelfReferral
	}
	a, ok := s.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	if a.HasReferrer() {
		return repository.ErrAlreadyLinked
	}
	return nil
}

func (s *Store) checkCredit(id, refereeID string) error {
	if id == refereeID {
		return repository.ErrSelfReferral
	}
	if _, ok := s.accounts[id]; !ok {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) attach(id, referrerID string, reward int64) {
	a := s.accounts[id]
	ref := referrerID
	a.ReferredBy = &ref
	a.Balance += reward
}

func (s *Store) credit(id string, reward int64, refereeID string) {
	a := s.accounts[id]
	if a.HasReferral(refereeID) {
		return
	}
	a.Balance += reward
	a.Referrals = append(a.Referrals, refereeID)

	if s.joinedAt[id] == nil {
		s.joinedAt[id] = make(map[string]time.Time)
	}
	s.joinedAt[id][refereeID] = s.now()
}

func cloneAccount(a *model.Account) *model.Account {
	c := *a
	if a.ReferredBy != nil {
		ref := *a.ReferredBy
		c.ReferredBy = &ref
	}
	c.Referrals = append([]string(nil), a.Referrals...)
	return &c
}
