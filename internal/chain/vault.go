package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrUnsupported marks a vault operation a legacy variant does not expose.
var ErrUnsupported = errors.New("operation not supported by this vault variant")

// ErrReverted is returned when a mined transaction has a failed status.
var ErrReverted = errors.New("transaction reverted")

const vaultABIJSON = `[
  {"type":"function","name":"createPool","stateMutability":"nonpayable","inputs":[
    {"name":"description","type":"string"},
    {"name":"evidenceSource","type":"string"},
    {"name":"coverageAmount","type":"uint256"},
    {"name":"premiumRateBps","type":"uint256"},
    {"name":"deadline","type":"uint256"}],
   "outputs":[{"name":"poolId","type":"uint256"}]},
  {"type":"function","name":"resolvePool","stateMutability":"nonpayable","inputs":[
    {"name":"poolId","type":"uint256"},{"name":"claimApproved","type":"bool"}],"outputs":[]},
  {"type":"function","name":"cancelAndRefund","stateMutability":"nonpayable","inputs":[
    {"name":"poolId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"emergencyResolve","stateMutability":"nonpayable","inputs":[
    {"name":"poolId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[
    {"name":"poolId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"getPool","stateMutability":"view","inputs":[
    {"name":"poolId","type":"uint256"}],
   "outputs":[
    {"name":"description","type":"string"},
    {"name":"evidenceSource","type":"string"},
    {"name":"coverageAmount","type":"uint256"},
    {"name":"premiumRateBps","type":"uint256"},
    {"name":"deadline","type":"uint256"},
    {"name":"status","type":"uint8"},
    {"name":"premiumPaid","type":"bool"},
    {"name":"totalCollateral","type":"uint256"}]},
  {"type":"function","name":"nextPoolId","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"event","name":"PoolCreated","inputs":[
    {"name":"poolId","type":"uint256","indexed":true},
    {"name":"creator","type":"address","indexed":true},
    {"name":"coverageAmount","type":"uint256","indexed":false},
    {"name":"deadline","type":"uint256","indexed":false}]},
  {"type":"event","name":"AgentJoined","inputs":[
    {"name":"poolId","type":"uint256","indexed":true},
    {"name":"participant","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false}]},
  {"type":"event","name":"PoolActivated","inputs":[
    {"name":"poolId","type":"uint256","indexed":true}]},
  {"type":"event","name":"PoolResolved","inputs":[
    {"name":"poolId","type":"uint256","indexed":true},
    {"name":"claimApproved","type":"bool","indexed":false}]},
  {"type":"event","name":"PoolCancelled","inputs":[
    {"name":"poolId","type":"uint256","indexed":true}]},
  {"type":"event","name":"EmergencyResolved","inputs":[
    {"name":"poolId","type":"uint256","indexed":true}]},
  {"type":"event","name":"Withdrawn","inputs":[
    {"name":"poolId","type":"uint256","indexed":true},
    {"name":"recipient","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false}]}
]`

var vaultABI = mustParseABI(vaultABIJSON)

func mustParseABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic(fmt.Sprintf("vault ABI: %v", err))
	}
	return parsed
}

// Fixed gas limits per write. Creation dodges estimation entirely: estimating
// simulates against a possibly rate-limited read endpoint and falsely reverts.
const (
	gasResolve   = 300000
	gasCancel    = 200000
	gasEmergency = 300000
	gasWithdraw  = 200000
)

// CreateParams are the immutable pool parameters sent on-chain.
type CreateParams struct {
	Description    string
	EvidenceSource string
	Coverage       *big.Int
	PremiumBps     *big.Int
	Deadline       *big.Int
}

// OnchainPool mirrors the vault's pool struct as returned by getPool.
type OnchainPool struct {
	Description     string
	EvidenceSource  string
	Coverage        *big.Int
	PremiumBps      *big.Int
	Deadline        *big.Int
	Status          uint8
	PremiumPaid     bool
	TotalCollateral *big.Int
}

// PoolVault is the single capability set all vault variants implement.
// Exactly one variant is selected at startup.
type PoolVault interface {
	CreatePool(ctx context.Context, p CreateParams) (poolID uint64, txHash string, err error)
	ResolvePool(ctx context.Context, poolID uint64, claimApproved bool) (string, error)
	CancelAndRefund(ctx context.Context, poolID uint64) (string, error)
	EmergencyResolve(ctx context.Context, poolID uint64) (string, error)
	Withdraw(ctx context.Context, poolID uint64) (string, error)
	GetPool(ctx context.Context, poolID uint64) (*OnchainPool, error)
	NextPoolID(ctx context.Context) (uint64, error)
}

// ContractCaller is the read surface the vault needs from the fabric.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Submitter is the write surface; the Coordinator implements it.
type Submitter interface {
	Submit(ctx context.Context, build BuildFn) (*types.Receipt, error)
	Address() common.Address
}

// NewPoolVault selects one vault variant at startup.
func NewPoolVault(variant string, addr common.Address, chainID *big.Int, caller ContractCaller, sub Submitter, createGasLimit uint64) (PoolVault, error) {
	base := vaultBase{
		addr:           addr,
		chainID:        chainID,
		caller:         caller,
		sub:            sub,
		createGasLimit: createGasLimit,
	}
	switch variant {
	case "v1":
		return &vaultV1{vaultBase: base}, nil
	case "v3":
		return &vaultV3{vaultBase: base}, nil
	case "standalone":
		return &vaultStandalone{vaultBase: base}, nil
	}
	return nil, fmt.Errorf("unknown vault variant %q", variant)
}

// vaultBase carries the ABI plumbing shared by every variant.
type vaultBase struct {
	addr           common.Address
	chainID        *big.Int
	caller         ContractCaller
	sub            Submitter
	createGasLimit uint64
}

// feeCaps derives EIP-1559 fee caps: tip from the node, fee cap at twice the
// current base fee plus the tip.
func (v *vaultBase) feeCaps(ctx context.Context) (tip, feeCap *big.Int, err error) {
	tip, err = v.caller.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("suggest gas tip: %w", err)
	}
	head, err := v.caller.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch head: %w", err)
	}
	feeCap = new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)
	return tip, feeCap, nil
}

// write packs a method call and pushes it through the coordinator.
func (v *vaultBase) write(ctx context.Context, method string, gasLimit uint64, args ...interface{}) (*types.Receipt, error) {
	data, err := vaultABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	tip, feeCap, err := v.feeCaps(ctx)
	if err != nil {
		return nil, err
	}
	receipt, err := v.sub.Submit(ctx, func(nonce uint64) (*types.Transaction, error) {
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   v.chainID,
			Nonce:     nonce,
			To:        &v.addr,
			Gas:       gasLimit,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Data:      data,
		}), nil
	})
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%s: %w", method, ErrReverted)
	}
	return receipt, nil
}

func (v *vaultBase) read(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := vaultABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := v.caller.CallContract(ctx, ethereum.CallMsg{To: &v.addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	vals, err := vaultABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return vals, nil
}

// createPool submits the creation write and recovers the chain-assigned pool
// id from the PoolCreated log in the receipt.
func (v *vaultBase) createPool(ctx context.Context, p CreateParams) (uint64, string, error) {
	receipt, err := v.write(ctx, "createPool", v.createGasLimit,
		p.Description, p.EvidenceSource, p.Coverage, p.PremiumBps, p.Deadline)
	if err != nil {
		return 0, "", err
	}
	poolID, err := ParsePoolCreated(receipt)
	if err != nil {
		return 0, receipt.TxHash.Hex(), err
	}
	return poolID, receipt.TxHash.Hex(), nil
}

func (v *vaultBase) resolvePool(ctx context.Context, poolID uint64, claimApproved bool) (string, error) {
	receipt, err := v.write(ctx, "resolvePool", gasResolve, new(big.Int).SetUint64(poolID), claimApproved)
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}

func (v *vaultBase) getPool(ctx context.Context, poolID uint64) (*OnchainPool, error) {
	vals, err := v.read(ctx, "getPool", new(big.Int).SetUint64(poolID))
	if err != nil {
		return nil, err
	}
	if len(vals) != 8 {
		return nil, fmt.Errorf("getPool: expected 8 fields, got %d", len(vals))
	}
	return &OnchainPool{
		Description:     vals[0].(string),
		EvidenceSource:  vals[1].(string),
		Coverage:        vals[2].(*big.Int),
		PremiumBps:      vals[3].(*big.Int),
		Deadline:        vals[4].(*big.Int),
		Status:          vals[5].(uint8),
		PremiumPaid:     vals[6].(bool),
		TotalCollateral: vals[7].(*big.Int),
	}, nil
}

func (v *vaultBase) nextPoolID(ctx context.Context) (uint64, error) {
	vals, err := v.read(ctx, "nextPoolId")
	if err != nil {
		return 0, err
	}
	if len(vals) != 1 {
		return 0, fmt.Errorf("nextPoolId: unexpected output arity %d", len(vals))
	}
	return vals[0].(*big.Int).Uint64(), nil
}

// ParsePoolCreated extracts the chain-assigned pool id from a creation
// receipt's PoolCreated event.
func ParsePoolCreated(receipt *types.Receipt) (uint64, error) {
	topic := vaultABI.Events["PoolCreated"].ID
	for _, lg := range receipt.Logs {
		if len(lg.Topics) >= 2 && lg.Topics[0] == topic {
			return new(big.Int).SetBytes(lg.Topics[1].Bytes()).Uint64(), nil
		}
	}
	return 0, fmt.Errorf("PoolCreated event not found in receipt %s", receipt.TxHash.Hex())
}

// vaultV3 is the mature deployment: full capability set.
type vaultV3 struct{ vaultBase }

func (v *vaultV3) CreatePool(ctx context.Context, p CreateParams) (uint64, string, error) {
	return v.createPool(ctx, p)
}
func (v *vaultV3) ResolvePool(ctx context.Context, poolID uint64, approved bool) (string, error) {
	return v.resolvePool(ctx, poolID, approved)
}
func (v *vaultV3) CancelAndRefund(ctx context.Context, poolID uint64) (string, error) {
	receipt, err := v.write(ctx, "cancelAndRefund", gasCancel, new(big.Int).SetUint64(poolID))
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}
func (v *vaultV3) EmergencyResolve(ctx context.Context, poolID uint64) (string, error) {
	receipt, err := v.write(ctx, "emergencyResolve", gasEmergency, new(big.Int).SetUint64(poolID))
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}
func (v *vaultV3) Withdraw(ctx context.Context, poolID uint64) (string, error) {
	receipt, err := v.write(ctx, "withdraw", gasWithdraw, new(big.Int).SetUint64(poolID))
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}
func (v *vaultV3) GetPool(ctx context.Context, poolID uint64) (*OnchainPool, error) {
	return v.getPool(ctx, poolID)
}
func (v *vaultV3) NextPoolID(ctx context.Context) (uint64, error) {
	return v.nextPoolID(ctx)
}

// vaultV1 is the first deployment. It predates the emergency-resolve and
// withdraw entrypoints.
type vaultV1 struct{ vaultBase }

func (v *vaultV1) CreatePool(ctx context.Context, p CreateParams) (uint64, string, error) {
	return v.createPool(ctx, p)
}
func (v *vaultV1) ResolvePool(ctx context.Context, poolID uint64, approved bool) (string, error) {
	return v.resolvePool(ctx, poolID, approved)
}
func (v *vaultV1) CancelAndRefund(ctx context.Context, poolID uint64) (string, error) {
	receipt, err := v.write(ctx, "cancelAndRefund", gasCancel, new(big.Int).SetUint64(poolID))
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}
func (v *vaultV1) EmergencyResolve(ctx context.Context, poolID uint64) (string, error) {
	return "", ErrUnsupported
}
func (v *vaultV1) Withdraw(ctx context.Context, poolID uint64) (string, error) {
	return "", ErrUnsupported
}
func (v *vaultV1) GetPool(ctx context.Context, poolID uint64) (*OnchainPool, error) {
	return v.getPool(ctx, poolID)
}
func (v *vaultV1) NextPoolID(ctx context.Context) (uint64, error) {
	return v.nextPoolID(ctx)
}

// vaultStandalone is the single-owner deployment without the shared
// collateral withdraw path.
type vaultStandalone struct{ vaultBase }

func (v *vaultStandalone) CreatePool(ctx context.Context, p CreateParams) (uint64, string, error) {
	return v.createPool(ctx, p)
}
func (v *vaultStandalone) ResolvePool(ctx context.Context, poolID uint64, approved bool) (string, error) {
	return v.resolvePool(ctx, poolID, approved)
}
func (v *vaultStandalone) CancelAndRefund(ctx context.Context, poolID uint64) (string, error) {
	receipt, err := v.write(ctx, "cancelAndRefund", gasCancel, new(big.Int).SetUint64(poolID))
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}
func (v *vaultStandalone) EmergencyResolve(ctx context.Context, poolID uint64) (string, error) {
	receipt, err := v.write(ctx, "emergencyResolve", gasEmergency, new(big.Int).SetUint64(poolID))
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}
func (v *vaultStandalone) Withdraw(ctx context.Context, poolID uint64) (string, error) {
	return "", ErrUnsupported
}
func (v *vaultStandalone) GetPool(ctx context.Context, poolID uint64) (*OnchainPool, error) {
	return v.getPool(ctx, poolID)
}
func (v *vaultStandalone) NextPoolID(ctx context.Context) (uint64, error) {
	return v.nextPoolID(ctx)
}
