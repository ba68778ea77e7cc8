package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/pharmatrace/internal/apperror"
	"github.com/iliyamo/pharmatrace/internal/integrity"
	"github.com/iliyamo/pharmatrace/internal/ledger"
	"github.com/iliyamo/pharmatrace/internal/model"
	"github.com/iliyamo/pharmatrace/internal/queue"
)

const publishTimeout = 5 * time.Second

// CustodyPublisher receives custody events after confirmed mutations.
type CustodyPublisher interface {
	PublishCustody(ctx context.Context, e queue.CustodyEvent) error
}

// BatchService runs the batch lifecycle against the ledger gateway.
type BatchService struct {
	ledger    *ledger.Gateway
	engine    *integrity.Engine
	publisher CustodyPublisher
	log       *zap.Logger
	now       func() time.Time
}

// NewBatchService wires the service. publisher may be nil.
func NewBatchService(gw *ledger.Gateway, engine *integrity.Engine, publisher CustodyPublisher, log *zap.Logger) *BatchService {
	if log == nil {
		log = zap.NewNop()
	}
	return &BatchService{ledger: gw, engine: engine, publisher: publisher, log: log.Named("batches"), now: time.Now}
}

// MintInput is a manufacturer's request to record a new batch.
type MintInput struct {
	DrugName          string
	BatchNumber       string
	ManufacturingDate time.Time
	ExpiryDate        time.Time
	DocumentRef       string
	Quantity          uint64
}

// MintOutput carries the assigned token id and the sealed QR payload, with the
// symbol rendered as a PNG data URL.
type MintOutput struct {
	TokenID     uint64              `json:"tokenId"`
	TxRef       string              `json:"txRef"`
	Fingerprint string              `json:"fingerprint"`
	Payload     integrity.QRPayload `json:"qrPayload"`
	QRCode      string              `json:"qrCode"`
}

func (in MintInput) validate() error {
	switch {
	case strings.TrimSpace(in.DrugName) == "":
		return apperror.New(apperror.CodeValidation, "drugName is required")
	case strings.TrimSpace(in.BatchNumber) == "":
		return apperror.New(apperror.CodeValidation, "batchNumber is required")
	case strings.TrimSpace(in.DocumentRef) == "":
		return apperror.New(apperror.CodeValidation, "documentRef is required")
	case in.Quantity == 0:
		return apperror.New(apperror.CodeValidation, "quantity must be positive")
	case in.ManufacturingDate.IsZero() || in.ExpiryDate.IsZero():
		return apperror.New(apperror.CodeValidation, "manufacturingDate and expiryDate are required")
	case !model.CalendarDate(in.ExpiryDate).After(model.CalendarDate(in.ManufacturingDate)):
		return apperror.New(apperror.CodeValidation, "expiryDate must be after manufacturingDate")
	}
	return nil
}

// Mint records a new batch owned by actor. The fingerprint is computed before
// the ledger call and stored as the batch's qrHash; the returned payload
// carries the token id the ledger assigned.
func (s *BatchService) Mint(ctx context.Context, actor string, in MintInput) (MintOutput, error) {
	if err := in.validate(); err != nil {
		return MintOutput{}, err
	}
	in.DrugName = strings.TrimSpace(in.DrugName)
	in.BatchNumber = strings.TrimSpace(in.BatchNumber)

	payload, err := s.engine.BatchPayload(integrity.BatchFields{
		BatchNumber:       in.BatchNumber,
		DrugName:          in.DrugName,
		Manufacturer:      actor,
		Quantity:          in.Quantity,
		ManufacturingDate: in.ManufacturingDate,
		ExpiryDate:        in.ExpiryDate,
		IssuedAt:          s.now(),
	})
	if err != nil {
		return MintOutput{}, err
	}

	res, err := s.ledger.MintBatch(ctx, ledger.MintInput{
		DrugName:          in.DrugName,
		BatchNumber:       in.BatchNumber,
		ManufacturingDate: in.ManufacturingDate,
		ExpiryDate:        in.ExpiryDate,
		DocumentRef:       strings.TrimSpace(in.DocumentRef),
		Quantity:          in.Quantity,
		QRHash:            payload.Fingerprint,
		Manufacturer:      actor,
	})
	if err != nil {
		return MintOutput{}, err
	}
	payload.TokenID = res.TokenID

	out := MintOutput{TokenID: res.TokenID, TxRef: res.TxRef, Fingerprint: payload.Fingerprint, Payload: payload}
	if out.QRCode, err = integrity.RenderDataURL(payload, integrity.DefaultQRSize); err != nil {
		s.log.Error("render qr code failed", zap.Uint64("token_id", res.TokenID), zap.Error(err))
	}
	s.publish(ctx, queue.CustodyEvent{
		Type:        queue.CustodyMinted,
		TokenID:     res.TokenID,
		BatchNumber: in.BatchNumber,
		Actor:       actor,
		To:          actor,
		Status:      model.StatusManufactured,
		TxRef:       res.TxRef,
	})
	return out, nil
}

// Transfer hands custody of a batch from actor to another stakeholder.
func (s *BatchService) Transfer(ctx context.Context, actor string, tokenID uint64, to, location string) (ledger.TxResult, error) {
	toAddr, err := model.NormalizeAddress(to)
	if err != nil {
		return ledger.TxResult{}, apperror.Wrap(apperror.CodeValidation, "invalid recipient address", err)
	}
	location = strings.TrimSpace(location)
	if location == "" {
		return ledger.TxResult{}, apperror.New(apperror.CodeValidation, "location is required")
	}
	tx, err := s.ledger.TransferBatch(ctx, tokenID, toAddr, location, actor)
	if err != nil {
		return ledger.TxResult{}, err
	}
	s.publish(ctx, queue.CustodyEvent{
		Type:     queue.CustodyTransferred,
		TokenID:  tokenID,
		Actor:    actor,
		From:     actor,
		To:       toAddr,
		Location: location,
		TxRef:    tx.TxRef,
	})
	return tx, nil
}

// UpdateStatus moves a batch along its lifecycle.
func (s *BatchService) UpdateStatus(ctx context.Context, actor string, tokenID uint64, status, location string) (ledger.TxResult, error) {
	st, err := model.ParseStatus(status)
	if err != nil {
		return ledger.TxResult{}, apperror.Wrap(apperror.CodeValidation, "invalid status", err)
	}
	location = strings.TrimSpace(location)
	tx, err := s.ledger.UpdateBatchStatus(ctx, tokenID, st, location, actor)
	if err != nil {
		return ledger.TxResult{}, err
	}
	s.publish(ctx, queue.CustodyEvent{
		Type:     queue.CustodyStatusUpdated,
		TokenID:  tokenID,
		Actor:    actor,
		Status:   st,
		Location: location,
		TxRef:    tx.TxRef,
	})
	return tx, nil
}

// Recall withdraws a batch. The reason is mandatory.
func (s *BatchService) Recall(ctx context.Context, actor string, tokenID uint64, reason string) (ledger.TxResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ledger.TxResult{}, apperror.New(apperror.CodeValidation, "reason is required")
	}
	tx, err := s.ledger.RecallBatch(ctx, tokenID, reason, actor)
	if err != nil {
		return ledger.TxResult{}, err
	}
	s.log.Warn("batch recalled", zap.Uint64("token_id", tokenID), zap.String("by", actor), zap.String("reason", reason))
	s.publish(ctx, queue.CustodyEvent{
		Type:    queue.CustodyRecalled,
		TokenID: tokenID,
		Actor:   actor,
		Status:  model.StatusRecalled,
		Reason:  reason,
		TxRef:   tx.TxRef,
	})
	return tx, nil
}

// Get reads a batch from the ledger.
func (s *BatchService) Get(ctx context.Context, tokenID uint64) (model.Batch, error) {
	return s.ledger.GetBatch(ctx, tokenID)
}

// History returns the custody chain of a batch, oldest first.
func (s *BatchService) History(ctx context.Context, tokenID uint64) ([]model.TransferRecord, error) {
	return s.ledger.GetTransferHistory(ctx, tokenID)
}

// VerifyFingerprint answers the public lookup by fingerprint.
func (s *BatchService) VerifyFingerprint(ctx context.Context, fingerprint string) (ledger.Verification, error) {
	return s.ledger.VerifyByFingerprint(ctx, fingerprint)
}

// PayloadVerification is the result of checking a scanned payload: the
// integrity result plus what the ledger currently says about it. The token id
// is assigned after the fingerprint is computed and so is not covered by it;
// it is checked against the ledger instead, and a mismatch clears Valid.
type PayloadVerification struct {
	integrity.Result
	OnLedger bool               `json:"onLedger"`
	TokenID  uint64             `json:"tokenId,omitempty"`
	Status   model.BatchStatus  `json:"status,omitempty"`
	Recalled bool               `json:"recalled"`
	Verified *bool              `json:"verified,omitempty"`
	Warnings []string           `json:"warnings,omitempty"`
	Batch    *model.Batch       `json:"batch,omitempty"`
	Holder   *model.Stakeholder `json:"stakeholder,omitempty"`
}

// VerifyPayload checks a scanned payload. Malformed payloads and fingerprint
// mismatches are errors. A payload that is intact but unknown to the ledger,
// or recalled is reported through Warnings. A token id that disagrees with the
// ledger makes the result invalid without being an integrity error.
func (s *BatchService) VerifyPayload(ctx context.Context, p integrity.QRPayload) (PayloadVerification, error) {
	res, err := s.engine.Verify(p)
	if err != nil {
		return PayloadVerification{Result: res}, err
	}
	out := PayloadVerification{Result: res}
	if res.Stale {
		out.Warnings = append(out.Warnings, "payload is older than the staleness threshold")
	}

	switch p.Type {
	case integrity.TypeBatch:
		v, err := s.ledger.VerifyByFingerprint(ctx, res.Fingerprint)
		if err != nil {
			return PayloadVerification{}, err
		}
		if !v.IsValid {
			out.Warnings = append(out.Warnings, "fingerprint is not recorded on the ledger")
			return out, nil
		}
		out.OnLedger = true
		out.TokenID = v.TokenID
		out.Batch = v.Batch
		out.Status = v.Batch.Status
		out.Recalled = v.Batch.Status == model.StatusRecalled
		if out.Recalled {
			out.Warnings = append(out.Warnings, "batch has been recalled")
		}
		if p.TokenID != 0 && p.TokenID != v.TokenID {
			out.Valid = false
			out.Reason = "payload token id does not match the ledger record"
			out.Warnings = append(out.Warnings, out.Reason)
		}
		if !v.Batch.ExpiryDate.IsZero() && s.now().After(v.Batch.ExpiryDate) {
			out.Warnings = append(out.Warnings, "batch is past its expiry date")
		}
	case integrity.TypeStakeholder:
		sh, err := s.ledger.GetStakeholder(ctx, p.Address)
		if err != nil {
			if apperror.CodeOf(err) == apperror.CodeStakeholderNotFound {
				out.Warnings = append(out.Warnings, "stakeholder is not registered on the ledger")
				return out, nil
			}
			return PayloadVerification{}, err
		}
		out.OnLedger = true
		out.Holder = &sh
		verified := sh.Verified
		out.Verified = &verified
		if string(sh.Role) != p.Role {
			out.Warnings = append(out.Warnings, "stakeholder role differs from the ledger record")
		}
		if !sh.Verified {
			out.Warnings = append(out.Warnings, "stakeholder is not verified")
		}
	}
	return out, nil
}

func (s *BatchService) publish(ctx context.Context, e queue.CustodyEvent) {
	if s.publisher == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.now().UTC()
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.PublishCustody(pctx, e); err != nil {
		s.log.Warn("custody event not published", zap.String("type", e.Type),
			zap.Uint64("token_id", e.TokenID), zap.Error(err))
	}
}
