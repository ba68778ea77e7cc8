package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iliyamo/pharmatrace/internal/audit"
	"github.com/iliyamo/pharmatrace/internal/model"
)

// AuditRepo stores security audit events.
type AuditRepo struct{ DB *sql.DB }

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{DB: db} }

// maxAuditText bounds the free-text columns well inside a TEXT column.
const maxAuditText = 4096

// clip cuts s to at most n bytes without splitting a UTF-8 sequence.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Insert stores e. Redelivered events with a known id are ignored. Endpoint
// and reason are clipped to maxAuditText bytes.
func (r *AuditRepo) Insert(ctx context.Context, e audit.Event) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT IGNORE INTO security_audit
		 (id, subject, role, required_roles, endpoint, outcome, reason, occurred_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		e.ID, strings.ToLower(e.Subject), string(e.Role), e.RequiredRolesString(),
		clip(e.Endpoint, maxAuditText), string(e.Outcome), clip(e.Reason, maxAuditText), e.At.UTC())
	return err
}

// Record lets the repository act as an audit sink.
func (r *AuditRepo) Record(ctx context.Context, e audit.Event) error { return r.Insert(ctx, e) }

// ListBySubject returns the most recent events of one subject, newest first.
func (r *AuditRepo) ListBySubject(ctx context.Context, subject string, limit int) ([]audit.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, subject, role, required_roles, endpoint, outcome, reason, occurred_at
		 FROM security_audit WHERE subject=? ORDER BY occurred_at DESC LIMIT ?`,
		strings.ToLower(strings.TrimSpace(subject)), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			e        audit.Event
			role     string
			required string
			outcome  string
			at       time.Time
		)
		if err := rows.Scan(&e.ID, &e.Subject, &role, &required, &e.Endpoint, &outcome, &e.Reason, &at); err != nil {
			return nil, err
		}
		e.Role = model.Role(role)
		e.Outcome = audit.Outcome(outcome)
		e.At = at.UTC()
		if required != "" {
			for _, r := range strings.Split(required, ",") {
				e.RequiredRoles = append(e.RequiredRoles, model.Role(r))
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ audit.Sink = (*AuditRepo)(nil)
