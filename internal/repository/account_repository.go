package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Account mirrors the 'accounts' table.
type Account struct {
	Address      string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// AccountRepo stores login accounts keyed by lower-cased address.
type AccountRepo struct {
	DB   *sql.DB
	Cost int
}

// NewAccountRepo uses cost for new bcrypt hashes.
func NewAccountRepo(db *sql.DB, cost int) *AccountRepo {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &AccountRepo{DB: db, Cost: cost}
}

func normAddress(a string) string { return strings.ToLower(strings.TrimSpace(a)) }

// Create hashes password and inserts the account.
func (r *AccountRepo) Create(ctx context.Context, address, password, role string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), r.Cost)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO accounts (address, password_hash, role) VALUES (?,?,?)",
		normAddress(address), string(hash), role)
	if err != nil {
		if isDuplicate(err) {
			return ErrAccountExists
		}
		return err
	}
	return nil
}

// GetByAddress fetches an account by normalized address.
func (r *AccountRepo) GetByAddress(ctx context.Context, address string) (Account, error) {
	var a Account
	err := r.DB.QueryRowContext(ctx,
		"SELECT address,password_hash,role,created_at FROM accounts WHERE address=? LIMIT 1",
		normAddress(address)).Scan(&a.Address, &a.PasswordHash, &a.Role, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return a, err
}

// Delete removes an account. Used to undo a registration the ledger rejected.
func (r *AccountRepo) Delete(ctx context.Context, address string) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM accounts WHERE address=?", normAddress(address))
	return err
}

// CheckPassword compares a bcrypt hash with a plain password.
func CheckPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
