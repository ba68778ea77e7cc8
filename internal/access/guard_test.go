package access

import (
	"context"
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/pharmatrace/internal/apperror"
	"github.com/iliyamo/pharmatrace/internal/audit"
	"github.com/iliyamo/pharmatrace/internal/auth"
	"github.com/iliyamo/pharmatrace/internal/model"
)

const addr = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

type fakeProfiles struct {
	s   model.Stakeholder
	err error
}

func (f fakeProfiles) Get(context.Context, string) (model.Stakeholder, error) { return f.s, f.err }

type memSink struct{ events []audit.Event }

func (m *memSink) Record(_ context.Context, e audit.Event) error {
	m.events = append(m.events, e)
	return nil
}

func claimsFor(role model.Role) *auth.Claims {
	return &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: addr, ID: "jti"},
		Role:             role,
		TokenType:        auth.TokenTypeAccess,
	}
}

func newGuard(t *testing.T, profiles ProfileReader) (*Guard, *memSink) {
	t.Helper()
	p, err := DefaultPolicy()
	require.NoError(t, err)
	sink := &memSink{}
	return NewGuard(p, profiles, sink, nil), sink
}

// Every subset of roles, every caller role: allowed iff the role is in the set.
func TestAuthorizeFailClosedExhaustive(t *testing.T) {
	g, _ := newGuard(t, nil)
	roles := model.Roles()
	for mask := 0; mask < 1<<len(roles); mask++ {
		var allowed []model.Role
		in := map[model.Role]bool{}
		for i, r := range roles {
			if mask&(1<<i) != 0 {
				allowed = append(allowed, r)
				in[r] = true
			}
		}
		for _, caller := range roles {
			err := g.Authorize(context.Background(), claimsFor(caller), "test", allowed...)
			if in[caller] {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, apperror.ErrForbidden), "%s vs %v", caller, allowed)
			}
		}
	}
}

func TestAuthorizeDeniesMissingOrUnknownRole(t *testing.T) {
	g, sink := newGuard(t, nil)

	assert.True(t, errors.Is(g.Authorize(context.Background(), nil, "x", model.RoleManufacturer), apperror.ErrForbidden))
	assert.True(t, errors.Is(g.Authorize(context.Background(), claimsFor("Admin"), "x", "Admin"), apperror.ErrForbidden))
	assert.True(t, errors.Is(g.Authorize(context.Background(), claimsFor(""), "x"), apperror.ErrForbidden))

	require.Len(t, sink.events, 3)
	assert.Equal(t, audit.OutcomeDenied, sink.events[0].Outcome)
}

func TestDenialEmitsAuditEvent(t *testing.T) {
	g, sink := newGuard(t, nil)
	err := g.Authorize(context.Background(), claimsFor(model.RoleRetailer), "POST /v1/batches", model.RoleManufacturer)
	require.Error(t, err)

	require.Len(t, sink.events, 1)
	e := sink.events[0]
	assert.Equal(t, addr, e.Subject)
	assert.Equal(t, model.RoleRetailer, e.Role)
	assert.Equal(t, []model.Role{model.RoleManufacturer}, e.RequiredRoles)
	assert.Equal(t, "POST /v1/batches", e.Endpoint)
}

func TestRequireVerified(t *testing.T) {
	verified := model.Stakeholder{Address: addr, Role: model.RoleManufacturer, Verified: true}
	pending := verified
	pending.Verified = false

	g, _ := newGuard(t, fakeProfiles{s: verified})
	assert.NoError(t, g.RequireVerified(context.Background(), claimsFor(model.RoleManufacturer), "mint"))

	g, _ = newGuard(t, fakeProfiles{s: pending})
	assert.True(t, errors.Is(g.RequireVerified(context.Background(), claimsFor(model.RoleManufacturer), "mint"), apperror.ErrUnverified))

	g, _ = newGuard(t, fakeProfiles{err: errors.New("ledger down")})
	assert.True(t, errors.Is(g.RequireVerified(context.Background(), claimsFor(model.RoleManufacturer), "mint"), apperror.ErrForbidden))

	g, _ = newGuard(t, nil)
	assert.True(t, errors.Is(g.RequireVerified(context.Background(), claimsFor(model.RoleManufacturer), "mint"), apperror.ErrForbidden))
}

func TestCheckUsesPolicy(t *testing.T) {
	verified := model.Stakeholder{Address: addr, Role: model.RoleManufacturer, Verified: true}
	g, _ := newGuard(t, fakeProfiles{s: verified})

	assert.NoError(t, g.Check(context.Background(), claimsFor(model.RoleManufacturer), OpMintBatch, "mint"))
	assert.True(t, errors.Is(g.Check(context.Background(), claimsFor(model.RoleDistributor), OpMintBatch, "mint"), apperror.ErrForbidden))
	assert.True(t, errors.Is(g.Check(context.Background(), claimsFor(model.RoleManufacturer), "batch.destroy", "x"), apperror.ErrForbidden))
	assert.NoError(t, g.Check(context.Background(), claimsFor(model.RoleDistributor), OpTransferBatch, "transfer"))
}

func TestParsePolicyRejectsUnknownRole(t *testing.T) {
	_, err := ParsePolicy([]byte("operations:\n  batch.mint:\n    roles: [Wizard]\n"))
	assert.Error(t, err)

	p, err := ParsePolicy([]byte("operations:\n  batch.mint:\n    roles: [manufacturer, HEALTHCARE_PROVIDER]\n"))
	require.NoError(t, err)
	r, ok := p.Rule(OpMintBatch)
	require.True(t, ok)
	assert.Equal(t, []model.Role{model.RoleManufacturer, model.RoleHealthcareProvider}, r.Roles)
	assert.False(t, r.Verified)
}
