package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testAddr = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// bcryptHash matches any argument that is a bcrypt hash of plain.
type bcryptHash struct{ plain string }

func (b bcryptHash) Match(v interface{}) bool {
	s, ok := v.(string)
	return ok && CheckPassword(s, b.plain)
}

func TestAccountCreateHashesAndNormalizes(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAccountRepo(db, bcrypt.MinCost)

	mock.ExpectExec("INSERT INTO accounts").
		WithArgs("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", bcryptHash{"correct horse"}, "Manufacturer").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), " "+testAddr, "correct horse", "Manufacturer"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountCreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAccountRepo(db, bcrypt.MinCost)

	mock.ExpectExec("INSERT INTO accounts").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := repo.Create(context.Background(), testAddr, "pw123456", "Distributor")
	assert.ErrorIs(t, err, ErrAccountExists)
}

func TestAccountCreateOtherError(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAccountRepo(db, bcrypt.MinCost)

	boom := errors.New("connection lost")
	mock.ExpectExec("INSERT INTO accounts").WillReturnError(boom)

	err := repo.Create(context.Background(), testAddr, "pw123456", "Distributor")
	assert.ErrorIs(t, err, boom)
}

func TestAccountGetByAddress(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAccountRepo(db, bcrypt.MinCost)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT address,password_hash,role,created_at FROM accounts").
		WithArgs("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed").
		WillReturnRows(sqlmock.NewRows([]string{"address", "password_hash", "role", "created_at"}).
			AddRow("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "$2a$04$hash", "Retailer", created))

	a, err := repo.GetByAddress(context.Background(), testAddr)
	require.NoError(t, err)
	assert.Equal(t, "Retailer", a.Role)
	assert.Equal(t, created, a.CreatedAt)

	mock.ExpectQuery("SELECT address").WillReturnError(sql.ErrNoRows)
	_, err = repo.GetByAddress(context.Background(), testAddr)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAccountDelete(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAccountRepo(db, 0)
	assert.Equal(t, bcrypt.DefaultCost, repo.Cost)

	mock.ExpectExec("DELETE FROM accounts WHERE address=").
		WithArgs("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), testAddr))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, CheckPassword(string(hash), "s3cret-pass"))
	assert.False(t, CheckPassword(string(hash), "s3cret-pasS"))
	assert.False(t, CheckPassword("not-a-hash", "s3cret-pass"))
}
