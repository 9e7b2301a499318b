package repository

import (
	"context"
	"fmt"
)

var migrations = []struct {
	name string
	stmt string
}{
	{
		name: "create accounts",
		stmt: `CREATE TABLE IF NOT EXISTS accounts (
			id           TEXT PRIMARY KEY,
			balance      BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			referred_by  TEXT NULL,
			chat_address TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			CHECK (referred_by IS NULL OR referred_by <> id)
		)`,
	},
	{
		name: "create account_referrals",
		stmt: `CREATE TABLE IF NOT EXISTS account_referrals (
			referrer_id TEXT NOT NULL REFERENCES accounts (id),
			referee_id  TEXT NOT NULL REFERENCES accounts (id),
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (referrer_id, referee_id),
			CHECK (referrer_id <> referee_id)
		)`,
	},
	{
		name: "index accounts referred_by",
		stmt: `CREATE INDEX IF NOT EXISTS accounts_referred_by_idx ON accounts (referred_by)`,
	},
}

// Migrate is idempotent and safe to run on every start.
func (r *Repository) Migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := r.db.ExecContext(ctx, m.stmt); err != nil {
			return fmt.Errorf("migration %q failed: %w", m.name, err)
		}
	}
	return nil
}
