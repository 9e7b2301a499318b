// Package storetest holds the behaviour every account store must share. Store
// packages call Run from their tests with a constructor for a fresh, empty store.
package storetest

import (
	"context"
	"testing"
	"time"

	"chypto_bot/internal/model"
	"chypto_bot/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Store interface {
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	CreateAccountIfAbsent(ctx context.Context, account *model.Account) (bool, error)
	ConditionalAttachReferral(ctx context.Context, id, referrerID string, reward int64) error
	CreditReferrer(ctx context.Context, id string, reward int64, refereeID string) error
	ApplyReferral(ctx context.Context, event *model.ReferralEvent) error
	GetReferrals(ctx context.Context, id string) ([]*model.AccountReferral, error)
}

func Run(t *testing.T, newStore func(t *testing.T) Store) {
	tests := []struct {
		name string
		run  func(t *testing.T, s Store)
	}{
		{name: "CreateAccountIfAbsent keeps the first account", run: testCreateAccountIfAbsent},
		{name: "GetAccount reports missing accounts", run: testGetAccountNotFound},
		{name: "ConditionalAttachReferral links once", run: testConditionalAttachReferral},
		{name: "CreditReferrer is idempotent per referee", run: testCreditReferrerIdempotent},
		{name: "ApplyReferral credits both sides", run: testApplyReferral},
		{name: "ApplyReferral leaves a linked referee alone", run: testApplyReferralAlreadyLinked},
		{name: "ApplyReferral rolls back without a referrer", run: testApplyReferralMissingReferrer},
		{name: "ApplyReferral rejects self referral", run: testApplyReferralSelf},
		{name: "GetReferrals lists referees in join order", run: testGetReferrals},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run(t, newStore(t))
		})
	}
}

func seed(t *testing.T, s Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		created, err := s.CreateAccountIfAbsent(context.Background(), &model.Account{ID: id, ChatAddress: id})
		require.NoError(t, err)
		require.True(t, created)
	}
}

func event(refereeID, referrerID string) *model.ReferralEvent {
	return &model.ReferralEvent{RefereeID: refereeID, ReferrerID: referrerID, RefereeReward: 10000, ReferrerReward: 40000}
}

func account(t *testing.T, s Store, id string) *model.Account {
	t.Helper()
	a, err := s.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return a
}

func testCreateAccountIfAbsent(t *testing.T, s Store) {
	ctx := context.Background()
	// millisecond precision survives every backend
	at := time.Date(2025, 5, 1, 10, 30, 0, 123000000, time.UTC)

	created, err := s.CreateAccountIfAbsent(ctx, &model.Account{ID: "100", ChatAddress: "100", CreatedAt: at, Balance: 99})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.CreateAccountIfAbsent(ctx, &model.Account{ID: "100", ChatAddress: "200"})
	require.NoError(t, err)
	assert.False(t, created)

	a := account(t, s, "100")
	assert.Equal(t, "100", a.ChatAddress)
	assert.True(t, at.Equal(a.CreatedAt), "created_at: %s", a.CreatedAt)
	assert.Equal(t, int64(0), a.Balance)
	assert.False(t, a.HasReferrer())
	assert.Empty(t, a.Referrals)
}

func testGetAccountNotFound(t *testing.T, s Store) {
	_, err := s.GetAccount(context.Background(), "404")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func testConditionalAttachReferral(t *testing.T, s Store) {
	ctx := context.Background()
	seed(t, s, "1", "2", "3")

	require.NoError(t, s.ConditionalAttachReferral(ctx, "2", "1", 10000))
	assert.ErrorIs(t, s.ConditionalAttachReferral(ctx, "2", "3", 10000), repository.ErrAlreadyLinked)
	assert.ErrorIs(t, s.ConditionalAttachReferral(ctx, "9", "1", 10000), repository.ErrNotFound)
	assert.ErrorIs(t, s.ConditionalAttachReferral(ctx, "1", "1", 10000), repository.ErrSelfReferral)

	a := account(t, s, "2")
	require.True(t, a.HasReferrer())
	assert.Equal(t, "1", *a.ReferredBy)
	assert.Equal(t, int64(10000), a.Balance)
}

func testCreditReferrerIdempotent(t *testing.T, s Store) {
	ctx := context.Background()
	seed(t, s, "1", "2")

	require.NoError(t, s.CreditReferrer(ctx, "1", 40000, "2"))
	require.NoError(t, s.CreditReferrer(ctx, "1", 40000, "2"))
	assert.ErrorIs(t, s.CreditReferrer(ctx, "9", 40000, "2"), repository.ErrNotFound)
	assert.ErrorIs(t, s.CreditReferrer(ctx, "1", 40000, "1"), repository.ErrSelfReferral)

	a := account(t, s, "1")
	assert.Equal(t, int64(40000), a.Balance)
	assert.Equal(t, []string{"2"}, a.Referrals)
}

func testApplyReferral(t *testing.T, s Store) {
	seed(t, s, "1", "2")

	require.NoError(t, s.ApplyReferral(context.Background(), event("2", "1")))

	referee := account(t, s, "2")
	require.True(t, referee.HasReferrer())
	assert.Equal(t, "1", *referee.ReferredBy)
	assert.Equal(t, int64(10000), referee.Balance)

	referrer := account(t, s, "1")
	assert.Equal(t, int64(40000), referrer.Balance)
	assert.Equal(t, []string{"2"}, referrer.Referrals)
}

func testApplyReferralAlreadyLinked(t *testing.T, s Store) {
	ctx := context.Background()
	seed(t, s, "1", "2", "3")
	require.NoError(t, s.ApplyReferral(ctx, event("2", "1")))

	assert.ErrorIs(t, s.ApplyReferral(ctx, event("2", "3")), repository.ErrAlreadyLinked)
	assert.ErrorIs(t, s.ApplyReferral(ctx, event("2", "1")), repository.ErrAlreadyLinked)

	assert.Equal(t, int64(10000), account(t, s, "2").Balance)
	assert.Equal(t, int64(40000), account(t, s, "1").Balance)
	other := account(t, s, "3")
	assert.Equal(t, int64(0), other.Balance)
	assert.Empty(t, other.Referrals)
}

func testApplyReferralMissingReferrer(t *testing.T, s Store) {
	seed(t, s, "2")

	assert.ErrorIs(t, s.ApplyReferral(context.Background(), event("2", "1")), repository.ErrNotFound)

	a := account(t, s, "2")
	assert.False(t, a.HasReferrer())
	assert.Equal(t, int64(0), a.Balance)
}

func testApplyReferralSelf(t *testing.T, s Store) {
	seed(t, s, "1")

	assert.ErrorIs(t, s.ApplyReferral(context.Background(), event("1", "1")), repository.ErrSelfReferral)

	a := account(t, s, "1")
	assert.False(t, a.HasReferrer())
	assert.Equal(t, int64(0), a.Balance)
}

func testGetReferrals(t *testing.T, s Store) {
	ctx := context.Background()
	seed(t, s, "1", "2", "3")

	require.NoError(t, s.ApplyReferral(ctx, event("3", "1")))
	require.NoError(t, s.ApplyReferral(ctx, event("2", "1")))

	refs, err := s.GetReferrals(ctx, "1")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.ElementsMatch(t, []string{"2", "3"}, []string{refs[0].ID, refs[1].ID})
	for _, ref := range refs {
		assert.Equal(t, int64(10000), ref.Balance)
		assert.False(t, ref.JoinedAt.IsZero())
		assert.False(t, ref.JoinedAt.Before(ref.CreatedAt), "joined before signup: %s < %s", ref.JoinedAt, ref.CreatedAt)
	}
	assert.False(t, refs[1].JoinedAt.Before(refs[0].JoinedAt))

	empty, err := s.GetReferrals(ctx, "2")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
