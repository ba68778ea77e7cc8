package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/iliyamo/pharmatrace/internal/config"
)

// EthereumClient talks to the deployed contract over JSON-RPC with a single
// server-held signing key.
type EthereumClient struct {
	rpc      *ethclient.Client
	parsed   abi.ABI
	contract *bind.BoundContract
	address  common.Address
	key      *ecdsa.PrivateKey
	signer   common.Address
	chainID  *big.Int
	gasLimit uint64
	gasPrice *big.Int

	// sendMu serializes submissions so pending nonces never collide.
	sendMu sync.Mutex
}

// DialEthereum connects to the node and binds the contract.
func DialEthereum(ctx context.Context, cfg config.LedgerConfig) (*EthereumClient, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("ledger: invalid contract address %q", cfg.ContractAddress)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("ledger: parse signing key: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("ledger: parse contract abi: %w", err)
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("ledger: dial %s: %w", cfg.RPCURL, err)
	}
	address := common.HexToAddress(cfg.ContractAddress)

	var gasPrice *big.Int
	if cfg.GasPriceGwei.IsPositive() {
		gasPrice = cfg.GasPriceGwei.Shift(9).BigInt()
	}
	return &EthereumClient{
		rpc:      client,
		parsed:   parsed,
		contract: bind.NewBoundContract(address, parsed, client, client, client),
		address:  address,
		key:      key,
		signer:   crypto.PubkeyToAddress(key.PublicKey),
		chainID:  big.NewInt(cfg.ChainID),
		gasLimit: cfg.GasLimit,
		gasPrice: gasPrice,
	}, nil
}

// NewClient builds the backend selected by LEDGER_BACKEND.
func NewClient(ctx context.Context, cfg config.LedgerConfig) (Client, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryLedger(), nil
	case "ethereum":
		return DialEthereum(ctx, cfg)
	}
	return nil, fmt.Errorf("ledger: unknown backend %q", cfg.Backend)
}

func (c *EthereumClient) Signer() string { return c.signer.Hex() }

func (c *EthereumClient) Close() error {
	c.rpc.Close()
	return nil
}

func (c *EthereumClient) MintBatch(ctx context.Context, req MintRequest) (Receipt, error) {
	return c.send(ctx, "mintBatch",
		req.DrugName,
		req.BatchNumber,
		big.NewInt(req.ManufacturingDate),
		big.NewInt(req.ExpiryDate),
		req.DocumentRef,
		new(big.Int).SetUint64(req.Quantity),
		req.QRHash,
		common.HexToAddress(req.Manufacturer),
	)
}

func (c *EthereumClient) TransferBatch(ctx context.Context, tokenID uint64, to, location, actor string) (Receipt, error) {
	return c.send(ctx, "transferBatch",
		new(big.Int).SetUint64(tokenID), common.HexToAddress(to), location, common.HexToAddress(actor))
}

func (c *EthereumClient) UpdateBatchStatus(ctx context.Context, tokenID uint64, status uint8, location, actor string) (Receipt, error) {
	return c.send(ctx, "updateBatchStatus",
		new(big.Int).SetUint64(tokenID), status, location, common.HexToAddress(actor))
}

func (c *EthereumClient) RecallBatch(ctx context.Context, tokenID uint64, reason, actor string) (Receipt, error) {
	return c.send(ctx, "recallBatch",
		new(big.Int).SetUint64(tokenID), reason, common.HexToAddress(actor))
}

func (c *EthereumClient) RegisterStakeholder(ctx context.Context, address, name, license string, role uint8) (Receipt, error) {
	return c.send(ctx, "registerStakeholder", common.HexToAddress(address), name, license, role)
}

func (c *EthereumClient) VerifyStakeholder(ctx context.Context, address string) (Receipt, error) {
	return c.send(ctx, "verifyStakeholder", common.HexToAddress(address))
}

func (c *EthereumClient) GetBatch(ctx context.Context, tokenID uint64) (RawBatch, error) {
	out, err := c.call(ctx, "getBatch", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return RawBatch{}, err
	}
	t := *abi.ConvertType(out[0], new(batchTuple)).(*batchTuple)
	if t.TokenId == nil {
		return RawBatch{}, nil
	}
	return t.raw(), nil
}

func (c *EthereumClient) GetTransferHistory(ctx context.Context, tokenID uint64) ([]RawTransfer, error) {
	out, err := c.call(ctx, "getTransferHistory", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return nil, err
	}
	tuples := *abi.ConvertType(out[0], new([]transferTuple)).(*[]transferTuple)
	res := make([]RawTransfer, len(tuples))
	for i, t := range tuples {
		res[i] = t.raw()
	}
	return res, nil
}

func (c *EthereumClient) GetStakeholder(ctx context.Context, address string) (RawStakeholder, error) {
	out, err := c.call(ctx, "getStakeholder", common.HexToAddress(address))
	if err != nil {
		return RawStakeholder{}, err
	}
	t := *abi.ConvertType(out[0], new(stakeholderTuple)).(*stakeholderTuple)
	if t.RegisteredAt == nil {
		return RawStakeholder{}, nil
	}
	return t.raw(), nil
}

func (c *EthereumClient) VerifyByFingerprint(ctx context.Context, qrHash string) (uint64, error) {
	out, err := c.call(ctx, "verifyByFingerprint", qrHash)
	if err != nil {
		return 0, err
	}
	id := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	if id == nil || !id.IsUint64() {
		return 0, nil
	}
	return id.Uint64(), nil
}

func (c *EthereumClient) Balance(ctx context.Context) (*big.Int, error) {
	return c.rpc.BalanceAt(ctx, c.signer, nil)
}

func (c *EthereumClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if c.gasPrice != nil {
		return new(big.Int).Set(c.gasPrice), nil
	}
	return c.rpc.SuggestGasPrice(ctx)
}

func (c *EthereumClient) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx, From: c.signer}, &out, method, args...)
	if err != nil {
		return nil, c.decodeErr(err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("ledger: %s returned no values", method)
	}
	return out, nil
}

// send submits a transaction and waits until it is mined. Any failure after
// submission is a *Pending. A mined but failed transaction is replayed as a
// call to recover its revert reason.
func (c *EthereumClient) send(ctx context.Context, method string, args ...interface{}) (Receipt, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return Receipt{}, fmt.Errorf("ledger: build transactor: %w", err)
	}
	opts.Context = ctx
	opts.GasLimit = c.gasLimit
	if c.gasPrice != nil {
		opts.GasPrice = new(big.Int).Set(c.gasPrice)
	}

	tx, err := c.contract.Transact(opts, method, args...)
	if err != nil {
		return Receipt{}, c.decodeErr(err)
	}
	rcpt, err := bind.WaitMined(ctx, c.rpc, tx)
	if err != nil {
		return Receipt{}, &Pending{TxHash: tx.Hash().Hex(), Err: err}
	}
	if rcpt.Status == types.ReceiptStatusFailed {
		return Receipt{}, c.replay(ctx, tx, rcpt)
	}
	return Receipt{TxHash: tx.Hash().Hex(), Events: c.events(rcpt.Logs)}, nil
}

func (c *EthereumClient) replay(ctx context.Context, tx *types.Transaction, rcpt *types.Receipt) error {
	msg := ethereum.CallMsg{
		From:     c.signer,
		To:       tx.To(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Value:    tx.Value(),
		Data:     tx.Data(),
	}
	_, err := c.rpc.CallContract(ctx, msg, rcpt.BlockNumber)
	if err == nil {
		return &Revert{}
	}
	decoded := c.decodeErr(err)
	var rv *Revert
	if errors.As(decoded, &rv) {
		return rv
	}
	return &Revert{}
}

func (c *EthereumClient) events(logs []*types.Log) []Event {
	var out []Event
	for _, l := range logs {
		if l.Address != c.address || len(l.Topics) == 0 {
			continue
		}
		ev, err := c.parsed.EventByID(l.Topics[0])
		if err != nil {
			continue
		}
		e := Event{Name: ev.Name}
		if len(ev.Inputs) > 0 && ev.Inputs[0].Name == "tokenId" && len(l.Topics) > 1 {
			e.TokenID = new(big.Int).SetBytes(l.Topics[1].Bytes()).Uint64()
		}
		out = append(out, e)
	}
	return out
}

// decodeErr turns node errors into *Revert or ErrInsufficientFunds where it
// can and returns transport errors unchanged.
func (c *EthereumClient) decodeErr(err error) error {
	if err == nil {
		return nil
	}
	var de rpc.DataError
	if errors.As(err, &de) {
		if data, ok := revertData(de.ErrorData()); ok {
			return c.revertFromData(data)
		}
	}
	msg := err.Error()
	if strings.Contains(msg, "insufficient funds") {
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	}
	if strings.Contains(msg, "execution reverted") {
		return &Revert{Reason: strings.TrimSpace(strings.TrimPrefix(msg, "execution reverted:"))}
	}
	return err
}

func revertData(v interface{}) ([]byte, bool) {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, "0x") {
		return nil, false
	}
	b, err := hexutil.Decode(s)
	if err != nil || len(b) < 4 {
		return nil, false
	}
	return b, true
}

func (c *EthereumClient) revertFromData(data []byte) error {
	for name, e := range c.parsed.Errors {
		if string(e.ID[:4]) == string(data[:4]) {
			return &Revert{Reason: name}
		}
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return &Revert{Reason: reason}
	}
	return &Revert{}
}

var _ Client = (*EthereumClient)(nil)
