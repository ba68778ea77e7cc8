package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/pharmatrace/internal/apperror"
	"github.com/iliyamo/pharmatrace/internal/model"
)

// Options tune the gateway.
type Options struct {
	CallTimeout time.Duration
	ReadRetries int
	ReadBackoff time.Duration
	GasLimit    uint64
	// Admins may recall any batch.
	Admins []string
}

// Gateway wraps a Client with decoding, lifecycle rules, per-batch
// serialization and error classification.
type Gateway struct {
	client      Client
	locks       *keyedMutex
	metrics     *Metrics
	log         *zap.Logger
	callTimeout time.Duration
	readRetries int
	readBackoff time.Duration
	gasLimit    uint64
	admins      map[string]bool
}

func NewGateway(client Client, opts Options, metrics *Metrics, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 60 * time.Second
	}
	if opts.ReadBackoff <= 0 {
		opts.ReadBackoff = 200 * time.Millisecond
	}
	admins := make(map[string]bool, len(opts.Admins))
	for _, a := range opts.Admins {
		admins[strings.ToLower(strings.TrimSpace(a))] = true
	}
	return &Gateway{
		client:      client,
		locks:       newKeyedMutex(),
		metrics:     metrics,
		log:         log.Named("ledger"),
		callTimeout: opts.CallTimeout,
		readRetries: opts.ReadRetries,
		readBackoff: opts.ReadBackoff,
		gasLimit:    opts.GasLimit,
		admins:      admins,
	}
}

// Close releases the backend connection.
func (g *Gateway) Close() error { return g.client.Close() }

// MintInput is a new batch as submitted by a manufacturer.
type MintInput struct {
	DrugName          string
	BatchNumber       string
	ManufacturingDate time.Time
	ExpiryDate        time.Time
	DocumentRef       string
	Quantity          uint64
	QRHash            string
	Manufacturer      string
}

// MintResult is the id assigned by the ledger and the transaction that minted it.
type MintResult struct {
	TokenID uint64 `json:"tokenId"`
	TxRef   string `json:"txRef"`
}

// TxResult identifies a confirmed ledger transaction.
type TxResult struct {
	TxRef string `json:"txRef"`
}

// MintBatch records a new batch. The token id is read from the BatchMinted
// event of the receipt. Duplicate batch numbers are rejected by the ledger.
func (g *Gateway) MintBatch(ctx context.Context, in MintInput) (MintResult, error) {
	unlock, err := g.lock(ctx, "batch-number:"+in.BatchNumber)
	if err != nil {
		return MintResult{}, err
	}
	defer unlock()

	rcpt, err := g.mutate(ctx, "mint_batch", func(ctx context.Context) (Receipt, error) {
		return g.client.MintBatch(ctx, MintRequest{
			DrugName:          in.DrugName,
			BatchNumber:       in.BatchNumber,
			ManufacturingDate: model.CalendarDate(in.ManufacturingDate).Unix(),
			ExpiryDate:        model.CalendarDate(in.ExpiryDate).Unix(),
			DocumentRef:       in.DocumentRef,
			Quantity:          in.Quantity,
			QRHash:            in.QRHash,
			Manufacturer:      in.Manufacturer,
		})
	})
	if err != nil {
		return MintResult{}, err
	}
	for _, ev := range rcpt.Events {
		if ev.Name == EventBatchMinted && ev.TokenID != 0 {
			return MintResult{TokenID: ev.TokenID, TxRef: rcpt.TxHash}, nil
		}
	}
	g.log.Error("mint confirmed without BatchMinted event", zap.String("tx", rcpt.TxHash))
	return MintResult{}, apperror.New(apperror.CodeLedgerOutcomeUnknown,
		"mint confirmed in "+rcpt.TxHash+" but no token id was emitted")
}

// GetBatch reads and decodes a batch.
func (g *Gateway) GetBatch(ctx context.Context, tokenID uint64) (model.Batch, error) {
	if tokenID == 0 {
		return model.Batch{}, apperror.ErrBatchNotFound
	}
	var raw RawBatch
	err := g.read(ctx, "get_batch", func(ctx context.Context) error {
		var err error
		raw, err = g.client.GetBatch(ctx, tokenID)
		return err
	})
	if err != nil {
		return model.Batch{}, err
	}
	if raw.TokenID == 0 {
		return model.Batch{}, apperror.ErrBatchNotFound
	}
	return decodeBatch(raw)
}

// GetTransferHistory returns the custody chain of a batch in ledger order.
func (g *Gateway) GetTransferHistory(ctx context.Context, tokenID uint64) ([]model.TransferRecord, error) {
	if _, err := g.GetBatch(ctx, tokenID); err != nil {
		return nil, err
	}
	var raw []RawTransfer
	err := g.read(ctx, "get_transfer_history", func(ctx context.Context) error {
		var err error
		raw, err = g.client.GetTransferHistory(ctx, tokenID)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.TransferRecord, len(raw))
	for i, r := range raw {
		out[i] = model.TransferRecord{
			From:      r.From,
			To:        r.To,
			Location:  r.Location,
			Timestamp: time.Unix(r.Timestamp, 0).UTC(),
		}
	}
	if err := model.ValidateChain(out); err != nil {
		return nil, apperror.Wrap(apperror.CodeExecutionReverted, "ledger returned a broken custody chain", err)
	}
	return out, nil
}

// TransferBatch moves custody to another registered stakeholder. Only the
// current holder may transfer, and recalled batches never move.
func (g *Gateway) TransferBatch(ctx context.Context, tokenID uint64, to, location, actor string) (TxResult, error) {
	unlock, err := g.lock(ctx, tokenKey(tokenID))
	if err != nil {
		return TxResult{}, err
	}
	defer unlock()

	b, err := g.GetBatch(ctx, tokenID)
	if err != nil {
		return TxResult{}, err
	}
	if b.Status == model.StatusRecalled {
		return TxResult{}, apperror.ErrBatchRecalled
	}
	if !model.SameAddress(b.CurrentHolder, actor) {
		return TxResult{}, apperror.New(apperror.CodeTransferNotAllowed, "only the current holder may transfer this batch")
	}
	if model.SameAddress(to, actor) {
		return TxResult{}, apperror.New(apperror.CodeTransferNotAllowed, "batch is already held by the recipient")
	}
	if _, err := g.GetStakeholder(ctx, to); err != nil {
		return TxResult{}, err
	}

	rcpt, err := g.mutate(ctx, "transfer_batch", func(ctx context.Context) (Receipt, error) {
		return g.client.TransferBatch(ctx, tokenID, to, location, actor)
	})
	if err != nil {
		return TxResult{}, err
	}
	return TxResult{TxRef: rcpt.TxHash}, nil
}

// UpdateBatchStatus applies a lifecycle transition requested by the holder.
func (g *Gateway) UpdateBatchStatus(ctx context.Context, tokenID uint64, status model.BatchStatus, location, actor string) (TxResult, error) {
	code, err := status.Code()
	if err != nil {
		return TxResult{}, apperror.Wrap(apperror.CodeValidation, "unknown status", err)
	}
	unlock, err := g.lock(ctx, tokenKey(tokenID))
	if err != nil {
		return TxResult{}, err
	}
	defer unlock()

	b, err := g.GetBatch(ctx, tokenID)
	if err != nil {
		return TxResult{}, err
	}
	if !model.SameAddress(b.CurrentHolder, actor) {
		return TxResult{}, apperror.New(apperror.CodeTransferNotAllowed, "only the current holder may change the status")
	}
	if !model.CanTransition(b.Status, status) {
		return TxResult{}, apperror.New(apperror.CodeInvalidTransition,
			fmt.Sprintf("cannot move batch from %s to %s", b.Status, status))
	}

	rcpt, err := g.mutate(ctx, "update_batch_status", func(ctx context.Context) (Receipt, error) {
		return g.client.UpdateBatchStatus(ctx, tokenID, code, location, actor)
	})
	if err != nil {
		return TxResult{}, err
	}
	return TxResult{TxRef: rcpt.TxHash}, nil
}

// RecallBatch marks a batch recalled. Allowed for the current holder, the
// manufacturer of record and configured admins.
func (g *Gateway) RecallBatch(ctx context.Context, tokenID uint64, reason, actor string) (TxResult, error) {
	unlock, err := g.lock(ctx, tokenKey(tokenID))
	if err != nil {
		return TxResult{}, err
	}
	defer unlock()

	b, err := g.GetBatch(ctx, tokenID)
	if err != nil {
		return TxResult{}, err
	}
	if b.Status == model.StatusRecalled {
		return TxResult{}, apperror.ErrBatchRecalled
	}
	if !g.mayRecall(b, actor) {
		return TxResult{}, apperror.New(apperror.CodeTransferNotAllowed,
			"only the holder, the manufacturer or an admin may recall this batch")
	}

	rcpt, err := g.mutate(ctx, "recall_batch", func(ctx context.Context) (Receipt, error) {
		return g.client.RecallBatch(ctx, tokenID, reason, actor)
	})
	if err != nil {
		return TxResult{}, err
	}
	return TxResult{TxRef: rcpt.TxHash}, nil
}

func (g *Gateway) mayRecall(b model.Batch, actor string) bool {
	return model.SameAddress(b.CurrentHolder, actor) ||
		model.SameAddress(b.Manufacturer, actor) ||
		g.admins[strings.ToLower(strings.TrimSpace(actor))]
}

// IsAdmin reports whether address is a configured admin.
func (g *Gateway) IsAdmin(address string) bool {
	return g.admins[strings.ToLower(strings.TrimSpace(address))]
}

// RegisterStakeholder records a new, unverified stakeholder.
func (g *Gateway) RegisterStakeholder(ctx context.Context, address, name, license string, role model.Role) (TxResult, error) {
	code, err := role.Code()
	if err != nil {
		return TxResult{}, apperror.Wrap(apperror.CodeValidation, "unknown role", err)
	}
	unlock, err := g.lock(ctx, stakeholderKey(address))
	if err != nil {
		return TxResult{}, err
	}
	defer unlock()

	rcpt, err := g.mutate(ctx, "register_stakeholder", func(ctx context.Context) (Receipt, error) {
		return g.client.RegisterStakeholder(ctx, address, name, license, code)
	})
	if err != nil {
		return TxResult{}, err
	}
	return TxResult{TxRef: rcpt.TxHash}, nil
}

// VerifyStakeholder sets the verified flag of a registered stakeholder.
func (g *Gateway) VerifyStakeholder(ctx context.Context, address string) (TxResult, error) {
	unlock, err := g.lock(ctx, stakeholderKey(address))
	if err != nil {
		return TxResult{}, err
	}
	defer unlock()

	if _, err := g.GetStakeholder(ctx, address); err != nil {
		return TxResult{}, err
	}
	rcpt, err := g.mutate(ctx, "verify_stakeholder", func(ctx context.Context) (Receipt, error) {
		return g.client.VerifyStakeholder(ctx, address)
	})
	if err != nil {
		return TxResult{}, err
	}
	return TxResult{TxRef: rcpt.TxHash}, nil
}

// GetStakeholder reads and decodes a stakeholder record.
func (g *Gateway) GetStakeholder(ctx context.Context, address string) (model.Stakeholder, error) {
	var raw RawStakeholder
	err := g.read(ctx, "get_stakeholder", func(ctx context.Context) error {
		var err error
		raw, err = g.client.GetStakeholder(ctx, address)
		return err
	})
	if err != nil {
		return model.Stakeholder{}, err
	}
	if raw.RegisteredAt == 0 {
		return model.Stakeholder{}, apperror.ErrStakeholderNotFound
	}
	role, err := model.RoleFromCode(raw.Role)
	if err != nil {
		return model.Stakeholder{}, apperror.Wrap(apperror.CodeExecutionReverted, "ledger returned an unknown role", err)
	}
	return model.Stakeholder{
		Address:      raw.Address,
		Name:         raw.Name,
		License:      raw.License,
		Role:         role,
		Verified:     raw.Verified,
		RegisteredAt: time.Unix(raw.RegisteredAt, 0).UTC(),
	}, nil
}

// Verification is the answer to a fingerprint lookup.
type Verification struct {
	IsValid bool         `json:"isValid"`
	TokenID uint64       `json:"tokenId,omitempty"`
	Batch   *model.Batch `json:"batch,omitempty"`
}

// VerifyByFingerprint looks a fingerprint up on the ledger. Token id 0 is the
// ledger's not-found answer and yields IsValid=false, as does a batch that can
// no longer be read.
func (g *Gateway) VerifyByFingerprint(ctx context.Context, fingerprint string) (Verification, error) {
	fingerprint = strings.ToLower(strings.TrimSpace(fingerprint))
	if fingerprint == "" {
		return Verification{}, nil
	}
	var id uint64
	err := g.read(ctx, "verify_by_fingerprint", func(ctx context.Context) error {
		var err error
		id, err = g.client.VerifyByFingerprint(ctx, fingerprint)
		return err
	})
	if err != nil {
		if apperror.CodeOf(err) == apperror.CodeExecutionReverted {
			return Verification{}, nil
		}
		return Verification{}, err
	}
	if id == 0 {
		return Verification{}, nil
	}
	b, err := g.GetBatch(ctx, id)
	if err != nil {
		if apperror.CodeOf(err) == apperror.CodeBatchNotFound {
			return Verification{}, nil
		}
		return Verification{}, err
	}
	if !strings.EqualFold(b.QRHash, fingerprint) {
		g.log.Warn("fingerprint index points at a batch with a different hash",
			zap.String("fingerprint", fingerprint), zap.Uint64("token_id", id))
		return Verification{}, nil
	}
	return Verification{IsValid: true, TokenID: id, Batch: &b}, nil
}

// Status is the operational view of the signer account.
type Status struct {
	Signer       string `json:"signer"`
	BalanceWei   string `json:"balanceWei"`
	BalanceEth   string `json:"balance"`
	GasPriceGwei string `json:"gasPriceGwei"`
	GasLimit     uint64 `json:"gasLimit"`
	MaxFeeEth    string `json:"maxFeePerCall"`
}

// Status reads balance and fee estimate.
func (g *Gateway) Status(ctx context.Context) (Status, error) {
	var bal, price *big.Int
	err := g.read(ctx, "balance", func(ctx context.Context) error {
		var err error
		bal, err = g.client.Balance(ctx)
		return err
	})
	if err != nil {
		return Status{}, err
	}
	err = g.read(ctx, "suggest_gas_price", func(ctx context.Context) error {
		var err error
		price, err = g.client.SuggestGasPrice(ctx)
		return err
	})
	if err != nil {
		return Status{}, err
	}
	fee := new(big.Int).Mul(price, new(big.Int).SetUint64(g.gasLimit))
	return Status{
		Signer:       g.client.Signer(),
		BalanceWei:   bal.String(),
		BalanceEth:   decimal.NewFromBigInt(bal, -18).String(),
		GasPriceGwei: decimal.NewFromBigInt(price, -9).String(),
		GasLimit:     g.gasLimit,
		MaxFeeEth:    decimal.NewFromBigInt(fee, -18).String(),
	}, nil
}

// Ping is the readiness probe.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.read(ctx, "ping", func(ctx context.Context) error {
		_, err := g.client.Balance(ctx)
		return err
	})
}

func (g *Gateway) lock(ctx context.Context, key string) (func(), error) {
	unlock, err := g.locks.Lock(ctx, key)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeLedgerUnavailable, "timed out waiting for a concurrent ledger call", err)
	}
	return unlock, nil
}

func tokenKey(id uint64) string { return "token:" + strconv.FormatUint(id, 10) }

func stakeholderKey(address string) string { return "stakeholder:" + strings.ToLower(address) }

func decodeBatch(raw RawBatch) (model.Batch, error) {
	status, err := model.StatusFromCode(raw.Status)
	if err != nil {
		return model.Batch{}, apperror.Wrap(apperror.CodeExecutionReverted, "ledger returned an unknown status", err)
	}
	return model.Batch{
		TokenID:           raw.TokenID,
		DrugName:          raw.DrugName,
		BatchNumber:       raw.BatchNumber,
		ManufacturingDate: model.DateFromUnix(raw.ManufacturingDate),
		ExpiryDate:        model.DateFromUnix(raw.ExpiryDate),
		Manufacturer:      raw.Manufacturer,
		CurrentHolder:     raw.CurrentHolder,
		CurrentLocation:   raw.CurrentLocation,
		DocumentRef:       raw.DocumentRef,
		Quantity:          raw.Quantity,
		QRHash:            raw.QRHash,
		Status:            status,
		CreatedAt:         time.Unix(raw.CreatedAt, 0).UTC(),
	}, nil
}
