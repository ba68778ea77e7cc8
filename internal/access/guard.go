// Package access gates operations by stakeholder role and verification flag.
// Every check fails closed: missing claims, unknown roles, unknown operations
// and profile lookup failures all deny.
package access

import (
	"context"

	"go.uber.org/zap"

	"github.com/iliyamo/pharmatrace/internal/apperror"
	"github.com/iliyamo/pharmatrace/internal/audit"
	"github.com/iliyamo/pharmatrace/internal/auth"
	"github.com/iliyamo/pharmatrace/internal/model"
)

// ProfileReader returns the current stakeholder record for an address.
type ProfileReader interface {
	Get(ctx context.Context, address string) (model.Stakeholder, error)
}

// Guard is the role-based access guard.
type Guard struct {
	policy   *Policy
	profiles ProfileReader
	sink     audit.Sink
	log      *zap.Logger
}

func NewGuard(policy *Policy, profiles ProfileReader, sink audit.Sink, log *zap.Logger) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{policy: policy, profiles: profiles, sink: sink, log: log.Named("access")}
}

// Authorize allows the call only when claims carry one of roles.
func (g *Guard) Authorize(ctx context.Context, claims *auth.Claims, endpoint string, roles ...model.Role) error {
	if claims == nil {
		g.deny(ctx, "", "", roles, endpoint, "no credentials")
		return apperror.ErrForbidden
	}
	if !claims.Role.Valid() {
		g.deny(ctx, claims.Subject, claims.Role, roles, endpoint, "unknown role")
		return apperror.ErrForbidden
	}
	for _, r := range roles {
		if r == claims.Role {
			return nil
		}
	}
	g.deny(ctx, claims.Subject, claims.Role, roles, endpoint, "role not permitted")
	return apperror.ErrForbidden
}

// RequireVerified checks the live verification flag of the caller's
// stakeholder record, not the snapshot in the token.
func (g *Guard) RequireVerified(ctx context.Context, claims *auth.Claims, endpoint string) error {
	if claims == nil {
		g.deny(ctx, "", "", nil, endpoint, "no credentials")
		return apperror.ErrForbidden
	}
	if g.profiles == nil {
		g.deny(ctx, claims.Subject, claims.Role, nil, endpoint, "no profile source")
		return apperror.ErrForbidden
	}
	s, err := g.profiles.Get(ctx, claims.Subject)
	if err != nil {
		g.log.Warn("verification lookup failed", zap.String("subject", claims.Subject), zap.Error(err))
		g.deny(ctx, claims.Subject, claims.Role, nil, endpoint, "verification status unavailable")
		return apperror.ErrForbidden
	}
	if s.Role != claims.Role {
		g.deny(ctx, claims.Subject, claims.Role, []model.Role{s.Role}, endpoint, "role snapshot mismatch")
		return apperror.ErrForbidden
	}
	if !s.Verified {
		g.deny(ctx, claims.Subject, claims.Role, nil, endpoint, "stakeholder not verified")
		return apperror.ErrUnverified
	}
	return nil
}

// Check applies the policy rule for op: role first, then verification when
// the rule asks for it.
func (g *Guard) Check(ctx context.Context, claims *auth.Claims, op, endpoint string) error {
	rule, ok := g.policy.Rule(op)
	if !ok {
		subject, role := "", model.Role("")
		if claims != nil {
			subject, role = claims.Subject, claims.Role
		}
		g.deny(ctx, subject, role, nil, endpoint, "operation not in policy: "+op)
		return apperror.ErrForbidden
	}
	if err := g.Authorize(ctx, claims, endpoint, rule.Roles...); err != nil {
		return err
	}
	if rule.Verified {
		return g.RequireVerified(ctx, claims, endpoint)
	}
	return nil
}

func (g *Guard) deny(ctx context.Context, subject string, role model.Role, required []model.Role, endpoint, reason string) {
	if g.sink == nil {
		return
	}
	e := audit.NewEvent(subject, role, required, endpoint, audit.OutcomeDenied, reason)
	if err := g.sink.Record(ctx, e); err != nil {
		g.log.Warn("audit sink failed", zap.String("audit_id", e.ID), zap.Error(err))
	}
}
