package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Stakeholder and batch state lives on the ledger. MySQL only holds login
// credentials and the security audit trail.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		address       VARCHAR(42)  NOT NULL PRIMARY KEY,
		password_hash VARCHAR(255) NOT NULL,
		role          VARCHAR(32)  NOT NULL,
		created_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS security_audit (
		id             CHAR(36)     NOT NULL PRIMARY KEY,
		subject        VARCHAR(42)  NOT NULL,
		role           VARCHAR(32)  NOT NULL,
		required_roles VARCHAR(255) NOT NULL,
		endpoint       TEXT         NOT NULL,
		outcome        VARCHAR(16)  NOT NULL,
		reason         TEXT         NOT NULL,
		occurred_at    DATETIME     NOT NULL,
		INDEX idx_audit_subject (subject),
		INDEX idx_audit_time (occurred_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	// tables created before endpoint and reason were widened
	`ALTER TABLE security_audit MODIFY endpoint TEXT NOT NULL, MODIFY reason TEXT NOT NULL`,
}

// Migrate creates the tables this service owns when they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("database: schema statement %d: %w", i, err)
		}
	}
	return nil
}
