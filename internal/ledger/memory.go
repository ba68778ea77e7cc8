package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/pharmatrace/internal/model"
)

// MemoryLedger is an in-process ledger with the same observable behaviour as
// the contract: token ids start at 1, batch numbers and stakeholder addresses
// are unique, history is append-only. It backs development and tests.
type MemoryLedger struct {
	mu           sync.RWMutex
	nextID       uint64
	seq          uint64
	batches      map[uint64]*RawBatch
	byNumber     map[string]uint64
	byHash       map[string]uint64
	history      map[uint64][]RawTransfer
	stakeholders map[string]*RawStakeholder
	signer       string
	balance      *big.Int
	gasPrice     *big.Int
	now          func() time.Time
}

// memorySigner is the pseudo account reported by Signer.
const memorySigner = "0x000000000000000000000000000000000000dEaD"

var recalledCode, _ = model.StatusRecalled.Code()

func NewMemoryLedger() *MemoryLedger {
	balance, _ := new(big.Int).SetString("100000000000000000000", 10) // 100 ether
	return &MemoryLedger{
		nextID:       1,
		batches:      make(map[uint64]*RawBatch),
		byNumber:     make(map[string]uint64),
		byHash:       make(map[string]uint64),
		history:      make(map[uint64][]RawTransfer),
		stakeholders: make(map[string]*RawStakeholder),
		signer:       memorySigner,
		balance:      balance,
		gasPrice:     big.NewInt(1_000_000_000),
		now:          time.Now,
	}
}

func addrKey(a string) string { return strings.ToLower(strings.TrimSpace(a)) }

// txHash derives a unique, stable-looking hash for each mutation.
func (m *MemoryLedger) txHash(parts ...string) string {
	m.seq++
	h := sha256.New()
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], m.seq)
	h.Write(n[:])
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// MintBatch assigns the next token id and emits BatchMinted, like the contract.
func (m *MemoryLedger) MintBatch(ctx context.Context, req MintRequest) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stakeholders[addrKey(req.Manufacturer)]; !ok {
		return Receipt{}, &Revert{Reason: ReasonStakeholderNotFound}
	}
	if _, ok := m.byNumber[req.BatchNumber]; ok {
		return Receipt{}, &Revert{Reason: ReasonBatchAlreadyExists}
	}
	id := m.nextID
	m.nextID++
	m.batches[id] = &RawBatch{
		TokenID:           id,
		DrugName:          req.DrugName,
		BatchNumber:       req.BatchNumber,
		ManufacturingDate: req.ManufacturingDate,
		ExpiryDate:        req.ExpiryDate,
		Manufacturer:      req.Manufacturer,
		CurrentHolder:     req.Manufacturer,
		DocumentRef:       req.DocumentRef,
		Quantity:          req.Quantity,
		QRHash:            strings.ToLower(req.QRHash),
		Status:            0,
		CreatedAt:         m.now().Unix(),
	}
	m.byNumber[req.BatchNumber] = id
	if req.QRHash != "" {
		m.byHash[strings.ToLower(req.QRHash)] = id
	}
	return Receipt{
		TxHash: m.txHash("mint", req.BatchNumber),
		Events: []Event{{Name: EventBatchMinted, TokenID: id}},
	}, nil
}

func (m *MemoryLedger) TransferBatch(ctx context.Context, tokenID uint64, to, location, actor string) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[tokenID]
	if !ok {
		return Receipt{}, &Revert{Reason: ReasonBatchNotFound}
	}
	if b.Status == recalledCode {
		return Receipt{}, &Revert{Reason: ReasonBatchRecalled}
	}
	if addrKey(b.CurrentHolder) != addrKey(actor) {
		return Receipt{}, &Revert{Reason: ReasonNotCurrentHolder}
	}
	if _, ok := m.stakeholders[addrKey(to)]; !ok {
		return Receipt{}, &Revert{Reason: ReasonStakeholderNotFound}
	}
	m.history[tokenID] = append(m.history[tokenID], RawTransfer{
		From:      b.CurrentHolder,
		To:        to,
		Location:  location,
		Timestamp: m.now().Unix(),
	})
	b.CurrentHolder = to
	b.CurrentLocation = location
	return Receipt{
		TxHash: m.txHash("transfer", to),
		Events: []Event{{Name: EventBatchTransferred, TokenID: tokenID}},
	}, nil
}

func (m *MemoryLedger) UpdateBatchStatus(ctx context.Context, tokenID uint64, status uint8, location, actor string) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[tokenID]
	if !ok {
		return Receipt{}, &Revert{Reason: ReasonBatchNotFound}
	}
	if addrKey(b.CurrentHolder) != addrKey(actor) {
		return Receipt{}, &Revert{Reason: ReasonNotCurrentHolder}
	}
	from, err1 := model.StatusFromCode(b.Status)
	to, err2 := model.StatusFromCode(status)
	if err1 != nil || err2 != nil || !model.CanTransition(from, to) {
		return Receipt{}, &Revert{Reason: ReasonInvalidTransition}
	}
	b.Status = status
	if location != "" {
		b.CurrentLocation = location
	}
	return Receipt{
		TxHash: m.txHash("status", strconv.Itoa(int(status))),
		Events: []Event{{Name: EventBatchStatusUpdated, TokenID: tokenID}},
	}, nil
}

func (m *MemoryLedger) RecallBatch(ctx context.Context, tokenID uint64, reason, actor string) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[tokenID]
	if !ok {
		return Receipt{}, &Revert{Reason: ReasonBatchNotFound}
	}
	if b.Status == recalledCode {
		return Receipt{}, &Revert{Reason: ReasonBatchRecalled}
	}
	b.Status = recalledCode
	return Receipt{
		TxHash: m.txHash("recall", reason, actor),
		Events: []Event{{Name: EventBatchRecalled, TokenID: tokenID}},
	}, nil
}

func (m *MemoryLedger) RegisterStakeholder(ctx context.Context, address, name, license string, role uint8) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := addrKey(address)
	if _, ok := m.stakeholders[key]; ok {
		return Receipt{}, &Revert{Reason: ReasonStakeholderAlreadyExists}
	}
	m.stakeholders[key] = &RawStakeholder{
		Address:      address,
		Name:         name,
		License:      license,
		Role:         role,
		RegisteredAt: m.now().Unix(),
	}
	return Receipt{
		TxHash: m.txHash("register", key),
		Events: []Event{{Name: EventStakeholderRegistered}},
	}, nil
}

func (m *MemoryLedger) VerifyStakeholder(ctx context.Context, address string) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.stakeholders[addrKey(address)]
	if !ok {
		return Receipt{}, &Revert{Reason: ReasonStakeholderNotFound}
	}
	s.Verified = true
	return Receipt{
		TxHash: m.txHash("verify", address),
		Events: []Event{{Name: EventStakeholderVerified}},
	}, nil
}

func (m *MemoryLedger) GetBatch(ctx context.Context, tokenID uint64) (RawBatch, error) {
	if err := ctx.Err(); err != nil {
		return RawBatch{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.batches[tokenID]
	if !ok {
		return RawBatch{}, &Revert{Reason: ReasonBatchNotFound}
	}
	return *b, nil
}

func (m *MemoryLedger) GetTransferHistory(ctx context.Context, tokenID uint64) ([]RawTransfer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.batches[tokenID]; !ok {
		return nil, &Revert{Reason: ReasonBatchNotFound}
	}
	h := m.history[tokenID]
	out := make([]RawTransfer, len(h))
	copy(out, h)
	return out, nil
}

func (m *MemoryLedger) GetStakeholder(ctx context.Context, address string) (RawStakeholder, error) {
	if err := ctx.Err(); err != nil {
		return RawStakeholder{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stakeholders[addrKey(address)]
	if !ok {
		return RawStakeholder{}, &Revert{Reason: ReasonStakeholderNotFound}
	}
	return *s, nil
}

// VerifyByFingerprint returns 0 for an unknown hash.
func (m *MemoryLedger) VerifyByFingerprint(ctx context.Context, qrHash string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byHash[strings.ToLower(qrHash)], nil
}

func (m *MemoryLedger) Signer() string { return m.signer }

func (m *MemoryLedger) Balance(ctx context.Context) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return new(big.Int).Set(m.balance), nil
}

func (m *MemoryLedger) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return new(big.Int).Set(m.gasPrice), nil
}

func (m *MemoryLedger) Close() error { return nil }

var _ Client = (*MemoryLedger)(nil)
