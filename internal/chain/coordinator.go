package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Backend is the fabric surface the coordinator needs. Narrowed to an
// interface so tests can run against a scripted chain.
type Backend interface {
	PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// BuildFn assembles an unsigned transaction for the nonce the coordinator
// has allocated.
type BuildFn func(nonce uint64) (*types.Transaction, error)

// Coordinator owns the wallet. It guarantees at most one pending transaction
// at a time and a locally-optimistic monotonic nonce: the nonce is queried
// from the chain once, incremented after each successful broadcast, and
// forgotten after any failure so the next call re-queries.
type Coordinator struct {
	mu      sync.Mutex // the one queue slot
	backend Backend
	key     *ecdsa.PrivateKey
	signer  types.Signer
	address common.Address

	confirmations uint64
	pollInterval  time.Duration
	waitTimeout   time.Duration

	pendingNonce *uint64
}

// NewCoordinator derives the wallet address from the hex-encoded private key.
func NewCoordinator(backend Backend, privateKeyHex string, chainID *big.Int, confirmations uint64) (*Coordinator, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Coordinator{
		backend:       backend,
		key:           key,
		signer:        types.LatestSignerForChainID(chainID),
		address:       crypto.PubkeyToAddress(key.PublicKey),
		confirmations: confirmations,
		pollInterval:  2 * time.Second,
		waitTimeout:   3 * time.Minute,
	}, nil
}

// Address returns the wallet address.
func (c *Coordinator) Address() common.Address {
	return c.address
}

// Submit serializes one write: allocate nonce, build, sign, broadcast, wait
// for the configured confirmations. The slot is released on both success and
// error. Any failure resets the cached nonce.
func (c *Coordinator) Submit(ctx context.Context, build BuildFn) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pendingNonce == nil {
		n, err := c.backend.PendingNonceAt(ctx, c.address)
		if err != nil {
			return nil, fmt.Errorf("query pending nonce: %w", err)
		}
		c.pendingNonce = &n
	}
	nonce := *c.pendingNonce

	tx, err := build(nonce)
	if err != nil {
		c.pendingNonce = nil
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	signed, err := types.SignTx(tx, c.signer, c.key)
	if err != nil {
		c.pendingNonce = nil
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		c.pendingNonce = nil
		return nil, fmt.Errorf("broadcast transaction: %w", err)
	}
	next := nonce + 1
	c.pendingNonce = &next
	log.Printf("[INFO] broadcast tx %s nonce=%d", signed.Hash().Hex(), nonce)

	receipt, err := c.waitMined(ctx, signed.Hash())
	if err != nil {
		c.pendingNonce = nil
		return nil, fmt.Errorf("await receipt for %s: %w", signed.Hash().Hex(), err)
	}
	return receipt, nil
}

func (c *Coordinator) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.waitTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, txHash)
		if err == nil {
			if c.confirmations <= 1 {
				return receipt, nil
			}
			head, err := c.backend.BlockNumber(ctx)
			if err == nil && head >= receipt.BlockNumber.Uint64()+c.confirmations-1 {
				return receipt, nil
			}
		} else if !errors.Is(err, ethereum.NotFound) && !isTransient(err) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
