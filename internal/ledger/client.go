// Package ledger is the only translation point between domain operations and
// the external ledger. Backends implement Client with raw ledger encodings;
// Gateway decodes them, enforces batch lifecycle rules and classifies every
// failure into the apperror taxonomy.
package ledger

import (
	"context"
	"math/big"
)

// RawBatch is a batch as the ledger stores it: enums as small integers and
// dates as seconds since epoch.
type RawBatch struct {
	TokenID           uint64
	DrugName          string
	BatchNumber       string
	ManufacturingDate int64
	ExpiryDate        int64
	Manufacturer      string
	CurrentHolder     string
	CurrentLocation   string
	DocumentRef       string
	Quantity          uint64
	QRHash            string
	Status            uint8
	CreatedAt         int64
}

// RawTransfer is one custody hop as the ledger stores it.
type RawTransfer struct {
	From      string
	To        string
	Location  string
	Timestamp int64
}

type RawStakeholder struct {
	Address      string
	Name         string
	License      string
	Role         uint8
	Verified     bool
	RegisteredAt int64
}

// MintRequest carries the arguments of a mint call.
type MintRequest struct {
	DrugName          string
	BatchNumber       string
	ManufacturingDate int64
	ExpiryDate        int64
	DocumentRef       string
	Quantity          uint64
	QRHash            string
	Manufacturer      string
}

// Event names emitted by the ledger.
const (
	EventBatchMinted           = "BatchMinted"
	EventBatchTransferred      = "BatchTransferred"
	EventBatchStatusUpdated    = "BatchStatusUpdated"
	EventBatchRecalled         = "BatchRecalled"
	EventStakeholderRegistered = "StakeholderRegistered"
	EventStakeholderVerified   = "StakeholderVerified"
)

// Event is a decoded ledger log entry.
type Event struct {
	Name    string
	TokenID uint64
}

// Receipt is the confirmation of a mutating call.
type Receipt struct {
	TxHash string
	Events []Event
}

// Client is the narrow call surface of a ledger backend. Reverts are returned
// as *Revert; insufficient fee funds wrap ErrInsufficientFunds; anything else
// is a transport failure.
type Client interface {
	MintBatch(ctx context.Context, req MintRequest) (Receipt, error)
	TransferBatch(ctx context.Context, tokenID uint64, to, location, actor string) (Receipt, error)
	UpdateBatchStatus(ctx context.Context, tokenID uint64, status uint8, location, actor string) (Receipt, error)
	RecallBatch(ctx context.Context, tokenID uint64, reason, actor string) (Receipt, error)
	RegisterStakeholder(ctx context.Context, address, name, license string, role uint8) (Receipt, error)
	VerifyStakeholder(ctx context.Context, address string) (Receipt, error)

	GetBatch(ctx context.Context, tokenID uint64) (RawBatch, error)
	GetTransferHistory(ctx context.Context, tokenID uint64) ([]RawTransfer, error)
	GetStakeholder(ctx context.Context, address string) (RawStakeholder, error)
	// VerifyByFingerprint returns the token id recorded for qrHash, or 0.
	VerifyByFingerprint(ctx context.Context, qrHash string) (uint64, error)

	Signer() string
	Balance(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	Close() error
}
