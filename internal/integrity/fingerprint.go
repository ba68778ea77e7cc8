// Package integrity fingerprints batch and stakeholder descriptors and verifies
// scanned QR payloads against their fingerprint.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// PayloadType selects the field set a fingerprint covers.
type PayloadType string

const (
	TypeBatch       PayloadType = "batch"
	TypeStakeholder PayloadType = "stakeholder"
)

// QRPayload is the shareable, fingerprinted descriptor encoded into a QR
// symbol. TokenID, VerifyURL, Notes and Fingerprint are not covered by the
// fingerprint: the token id is assigned by the ledger after the fingerprint is
// recorded, and the rest are display or self-referential fields.
type QRPayload struct {
	Version string      `json:"version"`
	Type    PayloadType `json:"type"`

	TokenID           uint64 `json:"tokenId,omitempty"`
	BatchNumber       string `json:"batchNumber,omitempty"`
	DrugName          string `json:"drugName,omitempty"`
	Manufacturer      string `json:"manufacturer,omitempty"`
	Quantity          uint64 `json:"quantity,omitempty"`
	ManufacturingDate string `json:"manufacturingDate,omitempty"`
	ExpiryDate        string `json:"expiryDate,omitempty"`

	Address string `json:"address,omitempty"`
	Name    string `json:"name,omitempty"`
	License string `json:"license,omitempty"`
	Role    string `json:"role,omitempty"`

	IssuedAt    int64  `json:"issuedAt"`
	VerifyURL   string `json:"verifyUrl,omitempty"`
	Notes       string `json:"notes,omitempty"`
	Fingerprint string `json:"fingerprint"`
}

type field struct {
	key   string
	value string
}

// coveredFields returns the fingerprinted fields in their fixed order.
func coveredFields(p QRPayload) ([]field, error) {
	head := []field{
		{"version", p.Version},
		{"type", string(p.Type)},
	}
	issued := field{"issuedAt", strconv.FormatInt(p.IssuedAt, 10)}
	switch p.Type {
	case TypeBatch:
		return append(head,
			field{"batchNumber", p.BatchNumber},
			field{"drugName", p.DrugName},
			field{"manufacturer", strings.ToLower(p.Manufacturer)},
			field{"quantity", strconv.FormatUint(p.Quantity, 10)},
			field{"manufacturingDate", p.ManufacturingDate},
			field{"expiryDate", p.ExpiryDate},
			issued,
		), nil
	case TypeStakeholder:
		return append(head,
			field{"address", strings.ToLower(p.Address)},
			field{"name", p.Name},
			field{"license", p.License},
			field{"role", p.Role},
			issued,
		), nil
	default:
		return nil, fmt.Errorf("integrity: unknown payload type %q", p.Type)
	}
}

// Fingerprint is SHA-256 over the covered fields, each serialized as
// "key:byte-length:value\n" in a fixed order, hex encoded. The length prefix
// keeps field boundaries unambiguous.
func Fingerprint(p QRPayload) (string, error) {
	fields, err := coveredFields(p)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	for _, f := range fields {
		fmt.Fprintf(h, "%s:%d:%s\n", f.key, len(f.value), f.value)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
