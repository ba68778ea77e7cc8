// Package queue carries side-channel events over RabbitMQ: security audit
// events and batch custody events. Publishing is best effort; the ledger stays
// the system of record.
package queue

import (
	"time"

	"github.com/iliyamo/pharmatrace/internal/model"
)

// Custody event types.
const (
	CustodyMinted        = "batch.minted"
	CustodyTransferred   = "batch.transferred"
	CustodyStatusUpdated = "batch.status_updated"
	CustodyRecalled      = "batch.recalled"
)

// CustodyEvent is published after a confirmed batch mutation. It carries
// enough for downstream consumers to notify or index without reading the
// ledger.
type CustodyEvent struct {
	Type        string            `json:"type"`
	TokenID     uint64            `json:"token_id"`
	BatchNumber string            `json:"batch_number,omitempty"`
	Actor       string            `json:"actor"`
	From        string            `json:"from,omitempty"`
	To          string            `json:"to,omitempty"`
	Status      model.BatchStatus `json:"status,omitempty"`
	Location    string            `json:"location,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	TxRef       string            `json:"tx_ref"`
	OccurredAt  time.Time         `json:"occurred_at"`
}
