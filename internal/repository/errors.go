// Package repository persists the data this service owns in MySQL: login
// accounts and the security audit trail. Stakeholder and batch state lives on
// the ledger.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrAccountExists is returned when an address already has an account.
var ErrAccountExists = errors.New("account already exists")

// ErrAccountNotFound is returned when no account matches the address.
var ErrAccountNotFound = errors.New("account not found")

const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
