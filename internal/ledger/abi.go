package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// contractABI is the call surface of the pharmaceutical supply-chain contract.
// Only the functions, events and custom errors the gateway uses are listed.
const contractABI = `[
 {"type":"function","name":"mintBatch","stateMutability":"nonpayable","inputs":[
  {"name":"drugName","type":"string"},{"name":"batchNumber","type":"string"},
  {"name":"manufacturingDate","type":"uint256"},{"name":"expiryDate","type":"uint256"},
  {"name":"documentRef","type":"string"},{"name":"quantity","type":"uint256"},
  {"name":"qrHash","type":"string"},{"name":"manufacturer","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"transferBatch","stateMutability":"nonpayable","inputs":[
  {"name":"tokenId","type":"uint256"},{"name":"to","type":"address"},
  {"name":"location","type":"string"},{"name":"actor","type":"address"}],"outputs":[]},
 {"type":"function","name":"updateBatchStatus","stateMutability":"nonpayable","inputs":[
  {"name":"tokenId","type":"uint256"},{"name":"status","type":"uint8"},
  {"name":"location","type":"string"},{"name":"actor","type":"address"}],"outputs":[]},
 {"type":"function","name":"recallBatch","stateMutability":"nonpayable","inputs":[
  {"name":"tokenId","type":"uint256"},{"name":"reason","type":"string"},{"name":"actor","type":"address"}],"outputs":[]},
 {"type":"function","name":"registerStakeholder","stateMutability":"nonpayable","inputs":[
  {"name":"account","type":"address"},{"name":"name","type":"string"},
  {"name":"license","type":"string"},{"name":"role","type":"uint8"}],"outputs":[]},
 {"type":"function","name":"verifyStakeholder","stateMutability":"nonpayable","inputs":[
  {"name":"account","type":"address"}],"outputs":[]},
 {"type":"function","name":"getBatch","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[
  {"name":"","type":"tuple","components":[
   {"name":"tokenId","type":"uint256"},{"name":"drugName","type":"string"},{"name":"batchNumber","type":"string"},
   {"name":"manufacturingDate","type":"uint256"},{"name":"expiryDate","type":"uint256"},
   {"name":"manufacturer","type":"address"},{"name":"currentHolder","type":"address"},
   {"name":"currentLocation","type":"string"},{"name":"documentRef","type":"string"},
   {"name":"quantity","type":"uint256"},{"name":"qrHash","type":"string"},
   {"name":"status","type":"uint8"},{"name":"createdAt","type":"uint256"}]}]},
 {"type":"function","name":"getTransferHistory","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[
  {"name":"","type":"tuple[]","components":[
   {"name":"from","type":"address"},{"name":"to","type":"address"},
   {"name":"location","type":"string"},{"name":"timestamp","type":"uint256"}]}]},
 {"type":"function","name":"getStakeholder","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[
  {"name":"","type":"tuple","components":[
   {"name":"account","type":"address"},{"name":"name","type":"string"},{"name":"license","type":"string"},
   {"name":"role","type":"uint8"},{"name":"verified","type":"bool"},{"name":"registeredAt","type":"uint256"}]}]},
 {"type":"function","name":"verifyByFingerprint","stateMutability":"view","inputs":[{"name":"qrHash","type":"string"}],"outputs":[
  {"name":"","type":"uint256"}]},
 {"type":"event","name":"BatchMinted","anonymous":false,"inputs":[
  {"name":"tokenId","type":"uint256","indexed":true},{"name":"batchNumber","type":"string","indexed":false},
  {"name":"manufacturer","type":"address","indexed":true}]},
 {"type":"event","name":"BatchTransferred","anonymous":false,"inputs":[
  {"name":"tokenId","type":"uint256","indexed":true},{"name":"from","type":"address","indexed":true},
  {"name":"to","type":"address","indexed":true},{"name":"location","type":"string","indexed":false}]},
 {"type":"event","name":"BatchStatusUpdated","anonymous":false,"inputs":[
  {"name":"tokenId","type":"uint256","indexed":true},{"name":"status","type":"uint8","indexed":false}]},
 {"type":"event","name":"BatchRecalled","anonymous":false,"inputs":[
  {"name":"tokenId","type":"uint256","indexed":true},{"name":"reason","type":"string","indexed":false}]},
 {"type":"event","name":"StakeholderRegistered","anonymous":false,"inputs":[
  {"name":"account","type":"address","indexed":true},{"name":"role","type":"uint8","indexed":false}]},
 {"type":"event","name":"StakeholderVerified","anonymous":false,"inputs":[
  {"name":"account","type":"address","indexed":true}]},
 {"type":"error","name":"BatchNotFound","inputs":[]},
 {"type":"error","name":"BatchAlreadyExists","inputs":[]},
 {"type":"error","name":"StakeholderNotFound","inputs":[]},
 {"type":"error","name":"StakeholderAlreadyExists","inputs":[]},
 {"type":"error","name":"NotCurrentHolder","inputs":[]},
 {"type":"error","name":"InvalidStatusTransition","inputs":[]},
 {"type":"error","name":"BatchAlreadyRecalled","inputs":[]}
]`

// Go shapes of the tuple outputs. Field names and order follow the ABI
// components so abi.ConvertType can map them.
type batchTuple struct {
	TokenId           *big.Int
	DrugName          string
	BatchNumber       string
	ManufacturingDate *big.Int
	ExpiryDate        *big.Int
	Manufacturer      common.Address
	CurrentHolder     common.Address
	CurrentLocation   string
	DocumentRef       string
	Quantity          *big.Int
	QrHash            string
	Status            uint8
	CreatedAt         *big.Int
}

type transferTuple struct {
	From      common.Address
	To        common.Address
	Location  string
	Timestamp *big.Int
}

type stakeholderTuple struct {
	Account      common.Address
	Name         string
	License      string
	Role         uint8
	Verified     bool
	RegisteredAt *big.Int
}

func (t batchTuple) raw() RawBatch {
	return RawBatch{
		TokenID:           t.TokenId.Uint64(),
		DrugName:          t.DrugName,
		BatchNumber:       t.BatchNumber,
		ManufacturingDate: t.ManufacturingDate.Int64(),
		ExpiryDate:        t.ExpiryDate.Int64(),
		Manufacturer:      t.Manufacturer.Hex(),
		CurrentHolder:     t.CurrentHolder.Hex(),
		CurrentLocation:   t.CurrentLocation,
		DocumentRef:       t.DocumentRef,
		Quantity:          t.Quantity.Uint64(),
		QRHash:            t.QrHash,
		Status:            t.Status,
		CreatedAt:         t.CreatedAt.Int64(),
	}
}

func (t transferTuple) raw() RawTransfer {
	return RawTransfer{
		From:      t.From.Hex(),
		To:        t.To.Hex(),
		Location:  t.Location,
		Timestamp: t.Timestamp.Int64(),
	}
}

func (t stakeholderTuple) raw() RawStakeholder {
	return RawStakeholder{
		Address:      t.Account.Hex(),
		Name:         t.Name,
		License:      t.License,
		Role:         t.Role,
		Verified:     t.Verified,
		RegisteredAt: t.RegisteredAt.Int64(),
	}
}
