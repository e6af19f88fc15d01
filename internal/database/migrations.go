package database

import "fmt"

// Migrate применяет схему базы данных. Выражения идемпотентны и
// выполняются по порядку.
func (db *DB) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS discounts (
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			code VARCHAR(64) UNIQUE NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			kind VARCHAR(20) NOT NULL,
			value NUMERIC(12,2) NOT NULL,
			max_amount NUMERIC(12,2),
			max_usage_per_user INTEGER NOT NULL DEFAULT 1,
			max_total_usage INTEGER,
			current_usage INTEGER NOT NULL DEFAULT 0,
			starts_at TIMESTAMP WITH TIME ZONE,
			expires_at TIMESTAMP WITH TIME ZONE,
			is_active BOOLEAN NOT NULL DEFAULT true,
			stacking_order INTEGER NOT NULL DEFAULT 0,
			conditions JSONB,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_discounts_code ON discounts(code);`,
		`CREATE INDEX IF NOT EXISTS idx_discounts_active_expiry ON discounts(is_active, expires_at);`,
		`CREATE TABLE IF NOT EXISTS user_discounts (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL,
			discount_id UUID NOT NULL REFERENCES discounts(id),
			usage_count INTEGER NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL DEFAULT 'assigned',
			assigned_at TIMESTAMP WITH TIME ZONE NOT NULL,
			revoked_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, discount_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_user_discounts_user ON user_discounts(user_id, discount_id);`,
		`CREATE INDEX IF NOT EXISTS idx_user_discounts_status ON user_discounts(status);`,
		`CREATE TABLE IF NOT EXISTS discount_audits (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL,
			discount_id UUID NOT NULL,
			user_discount_id UUID NOT NULL,
			action VARCHAR(20) NOT NULL,
			original_amount NUMERIC(12,2),
			discount_amount NUMERIC(12,2),
			final_amount NUMERIC(12,2),
			transaction_id VARCHAR(255),
			metadata JSONB,
			occurred_at TIMESTAMP WITH TIME ZONE NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_discount_audits_user ON discount_audits(user_id, discount_id);`,
		`CREATE INDEX IF NOT EXISTS idx_discount_audits_action ON discount_audits(action);`,
		`CREATE INDEX IF NOT EXISTS idx_discount_audits_transaction ON discount_audits(transaction_id);`,
		`CREATE INDEX IF NOT EXISTS idx_discount_audits_occurred ON discount_audits(occurred_at);`,
	}

	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	return nil
}
