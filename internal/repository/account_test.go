package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"chypto_bot/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	attachQuery     = "UPDATE accounts SET referred_by = $1, balance = balance + $2 WHERE id = $3 AND referred_by IS NULL"
	existsQuery     = "SELECT id FROM accounts WHERE id = $1"
	lockQuery       = "SELECT id FROM accounts WHERE id = $1 FOR UPDATE"
	lockPairQuery   = "SELECT id FROM accounts WHERE id IN ($1,$2) ORDER BY id FOR UPDATE"
	memberQuery     = "INSERT INTO account_referrals (referrer_id,referee_id) VALUES ($1,$2) ON CONFLICT (referrer_id, referee_id) DO NOTHING"
	creditQuery     = "UPDATE accounts SET balance = balance + $1 WHERE id = $2"
	insertQuery     = "INSERT INTO accounts (balance,chat_address,created_at,id) VALUES ($1,$2,$3,$4) ON CONFLICT (id) DO NOTHING"
	selectAccountRe = "FROM accounts a LEFT JOIN account_referrals r ON r.referrer_id = a.id WHERE a.id = $1 GROUP BY a.id"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(sqlx.NewDb(db, "pgx")), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestGetAccount(t *testing.T) {
	repo, mock := newMockRepository(t)
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q(selectAccountRe)).
		WithArgs("1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "referred_by", "chat_address", "created_at", "referrals"}).
			AddRow("1", int64(80000), "9", "100", created, "{2,3}"))

	account, err := repo.GetAccount(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "1", account.ID)
	assert.Equal(t, int64(80000), account.Balance)
	require.NotNil(t, account.ReferredBy)
	assert.Equal(t, "9", *account.ReferredBy)
	assert.Equal(t, "100", account.ChatAddress)
	assert.Equal(t, []string{"2", "3"}, account.Referrals)
	assert.Equal(t, created, account.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAccountNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(q(selectAccountRe)).
		WithArgs("1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "referred_by", "chat_address", "created_at", "referrals"}))

	_, err := repo.GetAccount(context.Background(), "1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAccountIfAbsent(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		created  bool
	}{
		{name: "Inserted", affected: 1, created: true},
		{name: "Already present", affected: 0, created: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepository(t)
			mock.ExpectExec(q(insertQuery)).
				WithArgs(sqlmock.AnyArg(), "100", sqlmock.AnyArg(), "1").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			created, err := repo.CreateAccountIfAbsent(context.Background(), &model.Account{ID: "1", ChatAddress: "100"})
			require.NoError(t, err)
			assert.Equal(t, tt.created, created)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestApplyReferral(t *testing.T) {
	event := &model.ReferralEvent{RefereeID: "2", ReferrerID: "1", RefereeReward: 10000, ReferrerReward: 40000}

	tests := []struct {
		name          string
		setup         func(mock sqlmock.Sqlmock)
		expectedError error
	}{
		{
			name: "Both sides applied",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(q(lockPairQuery)).WithArgs("1", "2").
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("1").AddRow("2"))
				mock.ExpectExec(q(attachQuery)).WithArgs("1", int64(10000), "2").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectQuery(q(lockQuery)).WithArgs("1").
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("1"))
				mock.ExpectExec(q(memberQuery)).WithArgs("1", "2").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(q(creditQuery)).WithArgs(int64(40000), "1").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "Referee already linked",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(q(lockPairQuery)).WithArgs("1", "2").
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("1").AddRow("2"))
				mock.ExpectExec(q(attachQuery)).WithArgs("1", int64(10000), "2").
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(q(existsQuery)).WithArgs("2").
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("2"))
				mock.ExpectRollback()
			},
			expectedError: ErrAlreadyLinked,
		},
		{
			name: "Referee missing",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(q(lockPairQuery)).WithArgs("1", "2").
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("1").AddRow("2"))
				mock.ExpectExec(q(attachQuery)).WithArgs("1", int64(10000), "2").
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(q(existsQuery)).WithArgs("2").
					WillReturnRows(sqlmock.NewRows([]string{"id"}))
				mock.ExpectRollback()
			},
			expectedError: ErrNotFound,
		},
		{
			name: "Referrer missing rolls back the linkage",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(q(lockPairQuery)).WithArgs("1", "2").
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("1").AddRow("2"))
				mock.ExpectExec(q(attachQuery)).WithArgs("1", int64(10000), "2").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectQuery(q(lockQuery)).WithArgs("1").
					WillReturnRows(sqlmock.NewRows([]string{"id"}))
				mock.ExpectRollback()
			},
			expectedError: ErrNotFound,
		},
		{
			name: "Store failure during credit rolls back",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(q(lockPairQuery)).WithArgs("1", "2").
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("1").AddRow("2"))
				mock.ExpectExec(q(attachQuery)).WithArgs("1", int64(10000), "2").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectQuery(q(lockQuery)).WithArgs("1").
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("1"))
				mock.ExpectExec(q(memberQuery)).WithArgs("1", "2").
					WillReturnError(assert.AnError)
				mock.ExpectRollback()
			},
			expectedError: assert.AnError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepository(t)
			tt.setup(mock)

			err := repo.ApplyReferral(context.Background(), event)
			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestApplyReferralLocksAccountsInIDOrder(t *testing.T) {
	events := []*model.ReferralEvent{
		{RefereeID: "2", ReferrerID: "1", RefereeReward: 10, ReferrerReward: 40},
		{RefereeID: "1", ReferrerID: "2", RefereeReward: 10, ReferrerReward: 40},
	}

	for _, event := range events {
		repo, mock := newMockRepository(t)

		mock.ExpectBegin()
		mock.ExpectQuery(q(lockPairQuery)).WithArgs("1", "2").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("1").AddRow("2"))
		mock.ExpectExec(q(attachQuery)).WithArgs(event.ReferrerID, int64(10), event.RefereeID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(q(lockQuery)).WithArgs(event.ReferrerID).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(event.ReferrerID))
		mock.ExpectExec(q(memberQuery)).WithArgs(event.ReferrerID, event.RefereeID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(q(creditQuery)).WithArgs(int64(40), event.ReferrerID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.ApplyReferral(context.Background(), event))
		assert.NoError(t, mock.ExpectationsWereMet())
	}
}

func TestApplyReferralLockFailureRollsBack(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q(lockPairQuery)).WithArgs("1", "2").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.ApplyReferral(context.Background(), &model.ReferralEvent{RefereeID: "2", ReferrerID: "1", RefereeReward: 10, ReferrerReward: 40})
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditReferrerSkipsExistingMember(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q(lockQuery)).WithArgs("1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("1"))
	mock.ExpectExec(q(memberQuery)).WithArgs("1", "2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, repo.CreditReferrer(context.Background(), "1", 40000, "2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelfReferralNeverReachesTheDatabase(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectRollback()
	assert.ErrorIs(t, repo.ConditionalAttachReferral(context.Background(), "1", "1", 10), ErrSelfReferral)

	mock.ExpectBegin()
	mock.ExpectRollback()
	assert.ErrorIs(t, repo.CreditReferrer(context.Background(), "1", 10, "1"), ErrSelfReferral)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReferrals(t *testing.T) {
	repo, mock := newMockRepository(t)
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	joined := created.Add(48 * time.Hour)

	mock.ExpectQuery(q("SELECT a.id, a.balance, a.created_at, r.created_at AS joined_at FROM account_referrals r JOIN accounts a ON a.id = r.referee_id WHERE r.referrer_id = $1 ORDER BY r.created_at ASC")).
		WithArgs("1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "created_at", "joined_at"}).
			AddRow("2", int64(10000), created, joined).
			AddRow("3", int64(10000), created, joined.Add(time.Hour)))

	refs, err := repo.GetReferrals(context.Background(), "1")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "2", refs[0].ID)
	assert.Equal(t, int64(10000), refs[1].Balance)
	assert.Equal(t, created, refs[0].CreatedAt)
	assert.Equal(t, joined, refs[0].JoinedAt)
	assert.Equal(t, joined.Add(time.Hour), refs[1].JoinedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	repo, mock := newMockRepository(t)

	for range migrations {
		mock.ExpectExec("CREATE (TABLE|INDEX) IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, repo.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateStopsOnFailure(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS accounts").WillReturnError(assert.AnError)

	err := repo.Migrate(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDatabaseURL(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", User: "bot", Password: "secret", Name: "chypto"}
	assert.Equal(t, "postgres://bot:secret@db:5432/chypto?sslmode=disable", cfg.GetDatabaseURL())

	cfg.SSLMode = "require"
	assert.Equal(t, "postgres://bot:secret@db:5432/chypto?sslmode=require", cfg.GetDatabaseURL())
}
