// Package audit records security-relevant decisions. Sinks are append-only.
package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/pharmatrace/internal/model"
)

// Outcome of an access decision.
type Outcome string

const (
	OutcomeDenied  Outcome = "denied"
	OutcomeAllowed Outcome = "allowed"
)

// Event is one access decision.
type Event struct {
	ID            string       `json:"id"`
	Subject       string       `json:"subject"`
	Role          model.Role   `json:"role"`
	RequiredRoles []model.Role `json:"requiredRoles"`
	Endpoint      string       `json:"endpoint"`
	Outcome       Outcome      `json:"outcome"`
	Reason        string       `json:"reason"`
	At            time.Time    `json:"at"`
}

// NewEvent fills ID and At.
func NewEvent(subject string, role model.Role, required []model.Role, endpoint string, outcome Outcome, reason string) Event {
	return Event{
		ID:            uuid.NewString(),
		Subject:       subject,
		Role:          role,
		RequiredRoles: required,
		Endpoint:      endpoint,
		Outcome:       outcome,
		Reason:        reason,
		At:            time.Now().UTC(),
	}
}

// RequiredRolesString joins the roles with commas for flat storage.
func (e Event) RequiredRolesString() string {
	parts := make([]string, len(e.RequiredRoles))
	for i, r := range e.RequiredRoles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

// Sink receives audit events.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// LogSink writes events to a structured logger.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log.Named("audit")}
}

func (s *LogSink) Record(_ context.Context, e Event) error {
	s.log.Warn("security audit",
		zap.String("audit_id", e.ID),
		zap.String("subject", e.Subject),
		zap.String("role", string(e.Role)),
		zap.String("required_roles", e.RequiredRolesString()),
		zap.String("endpoint", e.Endpoint),
		zap.String("outcome", string(e.Outcome)),
		zap.String("reason", e.Reason),
		zap.Time("at", e.At),
	)
	return nil
}

// MultiSink fans an event out to every sink and joins their errors.
type MultiSink []Sink

// Record fans e out to every sink and joins their errors.
func (m MultiSink) Record(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
