package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"chypto_bot/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Account struct {
	ID          string         `db:"id"`
	Balance     int64          `db:"balance"`
	ReferredBy  *string        `db:"referred_by"`
	ChatAddress string         `db:"chat_address"`
	CreatedAt   time.Time      `db:"created_at"`
	Referrals   pq.StringArray `db:"referrals"`
}

type accountReferral struct {
	ID        string    `db:"id"`
	Balance   int64     `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
	JoinedAt  time.Time `db:"joined_at"`
}

func (a *Account) toModel() *model.Account {
	referrals := make([]string, len(a.Referrals))
	copy(referrals, a.Referrals)

	return &model.Account{
		ID:          a.ID,
		Balance:     a.Balance,
		ReferredBy:  a.ReferredBy,
		Referrals:   referrals,
		ChatAddress: a.ChatAddress,
		CreatedAt:   a.CreatedAt,
	}
}

func (r *Repository) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	var account Account
	query, args, err := squirrel.
		Select(
			"a.id",
			"a.balance",
			"a.referred_by",
			"a.chat_address",
			"a.created_at",
			"COALESCE(array_agg(r.referee_id) FILTER (WHERE r.referee_id IS NOT NULL), '{}') AS referrals",
		).
		From("accounts a").
		LeftJoin("account_referrals r ON r.referrer_id = a.id").
		Where(squirrel.Eq{"a.id": id}).
		GroupBy("a.id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build account select query: %w", err)
	}

	err = r.db.GetContext(ctx, &account, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return account.toModel(), nil
}

// CreateAccountIfAbsent only stores the first-contact fields; balance and referral
// linkage start empty and change through the referral operations.
func (r *Repository) CreateAccountIfAbsent(ctx context.Context, account *model.Account) (bool, error) {
	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query, args, err := squirrel.
		Insert("accounts").
		SetMap(map[string]interface{}{
			"id":           account.ID,
			"balance":      0,
			"chat_address": account.ChatAddress,
			"created_at":   createdAt,
		}).
		Suffix("ON CONFLICT (id) DO NOTHING").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build account insert query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to insert account: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows == 1, nil
}

func (r *Repository) ConditionalAttachReferral(ctx context.Context, id, referrerID string, reward int64) error {
	return r.Transaction(ctx, func(tx *sqlx.Tx) error {
		return r.attachReferralWithTx(ctx, tx, id, referrerID, reward)
	})
}

func (r *Repository) CreditReferrer(ctx context.Context, id string, reward int64, refereeID string) error {
	return r.Transaction(ctx, func(tx *sqlx.Tx) error {
		return r.creditReferrerWithTx(ctx, tx, id, reward, refereeID)
	})
}

func (r *Repository) ApplyReferral(ctx context.Context, event *model.ReferralEvent) error {
	return r.Transaction(ctx, func(tx *sqlx.Tx) error {
		if event.RefereeID == event.ReferrerID {
			return ErrSelfReferral
		}

		// Two users referring each other at once would otherwise lock the rows in
		// opposite order and deadlock.
		if err := r.lockAccountsWithTx(ctx, tx, event.RefereeID, event.ReferrerID); err != nil {
			return err
		}

		err := r.attachReferralWithTx(ctx, tx, event.RefereeID, event.ReferrerID, event.RefereeReward)
		if err != nil {
			return err
		}

		return r.creditReferrerWithTx(ctx, tx, event.ReferrerID, event.ReferrerReward, event.RefereeID)
	})
}

func (r *Repository) attachReferralWithTx(ctx context.Context, tx *sqlx.Tx, id, referrerID string, reward int64) error {
	if id == referrerID {
		return ErrSelfReferral
	}

	updateQuery, updateArgs, err := squirrel.
		Update("accounts").
		Set("referred_by", referrerID).
		Set("balance", squirrel.Expr("balance + ?", reward)).
		Where(squirrel.Eq{"id": id}).
		Where("referred_by IS NULL").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build referral attach query: %w", err)
	}

	result, err := tx.ExecContext(ctx, updateQuery, updateArgs...)
	if err != nil {
		return fmt.Errorf("failed to attach referral: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 1 {
		return nil
	}

	exists, err := r.accountExistsWithTx(ctx, tx, id, false)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	return ErrAlreadyLinked
}

func (r *Repository) creditReferrerWithTx(ctx context.Context, tx *sqlx.Tx, id string, reward int64, refereeID string) error {
	if id == refereeID {
		return ErrSelfReferral
	}

	// the row lock serializes concurrent credits of the same referrer
	exists, err := r.accountExistsWithTx(ctx, tx, id, true)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	insertQuery, insertArgs, err := squirrel.
		Insert("account_referrals").
		Columns("referrer_id", "referee_id").
		Values(id, refereeID).
		Suffix("ON CONFLICT (referrer_id, referee_id) DO NOTHING").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build referral insert query: %w", err)
	}

	result, err := tx.ExecContext(ctx, insertQuery, insertArgs...)
	if err != nil {
		return fmt.Errorf("failed to insert referral: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return nil
	}

	updateQuery, updateArgs, err := squirrel.
		Update("accounts").
		Set("balance", squirrel.Expr("balance + ?", reward)).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build referrer update query: %w", err)
	}

	_, err = tx.ExecContext(ctx, updateQuery, updateArgs...)
	if err != nil {
		return fmt.Errorf("failed to update referrer: %w", err)
	}

	return nil
}

// lockAccountsWithTx takes the row locks of ids in ascending id order. Missing rows
// are skipped; the callers report them.
func (r *Repository) lockAccountsWithTx(ctx context.Context, tx *sqlx.Tx, ids ...string) error {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	query, args, err := squirrel.
		Select("id").
		From("accounts").
		Where(squirrel.Eq{"id": sorted}).
		OrderBy("id").
		Suffix("FOR UPDATE").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build account lock query: %w", err)
	}

	var locked []string
	if err := tx.SelectContext(ctx, &locked, query, args...); err != nil {
		return fmt.Errorf("failed to lock accounts: %w", err)
	}

	return nil
}

func (r *Repository) accountExistsWithTx(ctx context.Context, tx *sqlx.Tx, id string, lock bool) (bool, error) {
	builder := squirrel.
		Select("id").
		From("accounts").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)
	if lock {
		builder = builder.Suffix("FOR UPDATE")
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return false, err
	}

	var found string
	err = tx.GetContext(ctx, &found, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (r *Repository) GetReferrals(ctx context.Context, id string) ([]*model.AccountReferral, error) {
	query, args, err := squirrel.
		Select("a.id", "a.balance", "a.created_at", "r.created_at AS joined_at").
		From("account_referrals r").
		Join("accounts a ON a.id = r.referee_id").
		Where(squirrel.Eq{"r.referrer_id": id}).
		OrderBy("r.created_at ASC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var referrals []*accountReferral
	err = r.db.SelectContext(ctx, &referrals, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get referrals: %w", err)
	}

	refs := make([]*model.AccountReferral, len(referrals))
	for i, ref := range referrals {
		refs[i] = &model.AccountReferral{
			ID:        ref.ID,
			Balance:   ref.Balance,
			CreatedAt: ref.CreatedAt,
			JoinedAt:  ref.JoinedAt,
		}
	}

	return refs, nil
}
