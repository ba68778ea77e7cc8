package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Stakeholder is a registered supply-chain participant as recorded on the ledger.
type Stakeholder struct {
	Address      string    `json:"address"`
	Name         string    `json:"name"`
	License      string    `json:"license"`
	Role         Role      `json:"role"`
	Verified     bool      `json:"verified"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Batch is a tracked pharmaceutical batch. ManufacturingDate and ExpiryDate are
// calendar dates (UTC midnight).
type Batch struct {
	TokenID           uint64      `json:"tokenId"`
	DrugName          string      `json:"drugName"`
	BatchNumber       string      `json:"batchNumber"`
	ManufacturingDate time.Time   `json:"manufacturingDate"`
	ExpiryDate        time.Time   `json:"expiryDate"`
	Manufacturer      string      `json:"manufacturer"`
	CurrentHolder     string      `json:"currentHolder"`
	CurrentLocation   string      `json:"currentLocation,omitempty"`
	DocumentRef       string      `json:"documentRef"`
	Quantity          uint64      `json:"quantity"`
	QRHash            string      `json:"qrHash"`
	Status            BatchStatus `json:"status"`
	CreatedAt         time.Time   `json:"createdAt"`
}

// TransferRecord is one custody hand-over. Records of a batch form a chain:
// the To of record N equals the From of record N+1.
type TransferRecord struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`
}

// CalendarDate truncates t to midnight UTC.
func CalendarDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DateFromUnix converts ledger seconds-since-epoch into a calendar date.
func DateFromUnix(sec int64) time.Time {
	return CalendarDate(time.Unix(sec, 0))
}

// NormalizeAddress validates a 0x-prefixed hex account address and returns its
// checksummed form.
func NormalizeAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", fmt.Errorf("model: address %q must be 0x-prefixed", s)
	}
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("model: invalid address %q", s)
	}
	return common.HexToAddress(s).Hex(), nil
}

// SameAddress compares two addresses ignoring checksum casing.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// ValidateChain checks the custody-chain property of an ordered history.
func ValidateChain(records []TransferRecord) error {
	for i := 1; i < len(records); i++ {
		if !SameAddress(records[i-1].To, records[i].From) {
			return fmt.Errorf("model: transfer %d starts at %s but transfer %d ended at %s",
				i, records[i].From, i-1, records[i-1].To)
		}
	}
	return nil
}
