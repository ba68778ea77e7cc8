package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/pharmatrace/internal/audit"
	"github.com/iliyamo/pharmatrace/internal/model"
)

func TestAuditInsert(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAuditRepo(db)
	at := time.Date(2026, 5, 2, 8, 30, 0, 0, time.UTC)
	e := audit.Event{
		ID:            "7d9f4f0e-1111-4c55-9a0c-3c1a5d0e2f11",
		Subject:       testAddr,
		Role:          model.RoleRetailer,
		RequiredRoles: []model.Role{model.RoleManufacturer},
		Endpoint:      "POST /v1/batches",
		Outcome:       audit.OutcomeDenied,
		Reason:        "role not permitted",
		At:            at,
	}

	mock.ExpectExec("INSERT IGNORE INTO security_audit").
		WithArgs(e.ID, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "Retailer", "Manufacturer",
			"POST /v1/batches", "denied", "role not permitted", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Record(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditInsertClipsLongText(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAuditRepo(db)
	at := time.Date(2026, 5, 2, 8, 30, 0, 0, time.UTC)
	path := "GET /v1/batches/" + strings.Repeat("9", 5000)
	reason := strings.Repeat("é", 3000)
	e := audit.Event{ID: "e1", Subject: testAddr, Role: model.RoleRetailer, Endpoint: path,
		Outcome: audit.OutcomeDenied, Reason: reason, At: at}

	mock.ExpectExec("INSERT IGNORE INTO security_audit").
		WithArgs("e1", sqlmock.AnyArg(), "Retailer", "", path[:maxAuditText], "denied",
			strings.Repeat("é", maxAuditText/2), at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Insert(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClip(t *testing.T) {
	assert.Equal(t, "abc", clip("abc", 10))
	assert.Equal(t, "ab", clip("abc", 2))
	assert.Equal(t, "a", clip("aé", 2), "a split rune is dropped")
	assert.Equal(t, "", clip("é", 1))
}

func TestAuditListBySubject(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAuditRepo(db)
	at := time.Date(2026, 5, 2, 8, 30, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id, subject, role, required_roles, endpoint, outcome, reason, occurred_at").
		WithArgs("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "subject", "role", "required_roles", "endpoint", "outcome", "reason", "occurred_at"}).
			AddRow("a", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "Retailer", "Manufacturer,Regulator", "POST /v1/batches", "denied", "role not permitted", at).
			AddRow("b", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "Retailer", "", "POST /v1/batches", "denied", "no credentials", at))

	events, err := repo.ListBySubject(context.Background(), testAddr, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, []model.Role{model.RoleManufacturer, model.RoleRegulator}, events[0].RequiredRoles)
	assert.Equal(t, audit.OutcomeDenied, events[0].Outcome)
	assert.Empty(t, events[1].RequiredRoles)
	assert.NoError(t, mock.ExpectationsWereMet())
}
