package chain

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

const bypassWindow = 30 * time.Second

// endpointClient wraps one dialed endpoint with its stall bookkeeping.
type endpointClient struct {
	cfg EndpointConfig
	eth *ethclient.Client

	mu          sync.Mutex
	bypassUntil time.Time
}

func (e *endpointClient) bypassed(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return now.Before(e.bypassUntil)
}

func (e *endpointClient) markStalled(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bypassUntil = now.Add(bypassWindow)
}

// Fabric is a multi-endpoint RPC broker. Every public call routes to the
// highest-weight responsive endpoint, wrapped with exponential backoff on
// transient failures. With a single endpoint it degrades to a passthrough.
type Fabric struct {
	endpoints   []*endpointClient
	totalWeight int
	backoffBase time.Duration
	maxRetries  int
}

// Dial connects the fabric to the configured endpoints. Endpoints that fail
// to dial are skipped with a warning; at least one must survive.
func Dial(ctx context.Context, cfgs []EndpointConfig) (*Fabric, error) {
	f := &Fabric{backoffBase: time.Second, maxRetries: 4}
	for _, cfg := range cfgs {
		eth, err := ethclient.DialContext(ctx, cfg.URL)
		if err != nil {
			log.Printf("[WARN] dial endpoint %s: %v", cfg.URL, err)
			continue
		}
		f.endpoints = append(f.endpoints, &endpointClient{cfg: cfg, eth: eth})
		f.totalWeight += cfg.Weight
	}
	if len(f.endpoints) == 0 {
		return nil, fmt.Errorf("no RPC endpoint reachable")
	}
	sort.SliceStable(f.endpoints, func(i, j int) bool {
		return f.endpoints[i].cfg.Weight > f.endpoints[j].cfg.Weight
	})
	return f, nil
}

// Close releases all endpoint connections.
func (f *Fabric) Close() {
	for _, e := range f.endpoints {
		e.eth.Close()
	}
}

// quorumThreshold is the weight a read must gather to count as confirmed
// in multi-endpoint mode: ceil(total/2).
func quorumThreshold(totalWeight int) int {
	return (totalWeight + 1) / 2
}

// pick returns the highest-weight endpoint not currently bypassed,
// falling back to the best endpoint when everything is bypassed.
func (f *Fabric) pick(now time.Time) *endpointClient {
	for _, e := range f.endpoints {
		if !e.bypassed(now) {
			return e
		}
	}
	return f.endpoints[0]
}

// do runs op against one endpoint with backoff on transient errors.
// An endpoint exceeding its stall timeout is bypassed for a window.
func (f *Fabric) do(ctx context.Context, op func(ctx context.Context, eth *ethclient.Client) error) error {
	var lastErr error
	for attempt := 0; attempt < f.maxRetries; attempt++ {
		if attempt > 0 {
			delay := f.backoffBase * (1 << uint(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		e := f.pick(time.Now())
		opCtx, cancel := context.WithTimeout(ctx, e.cfg.StallTimeout)
		err := op(opCtx, e.eth)
		cancel()
		if err == nil {
			return nil
		}
		if opCtx.Err() == context.DeadlineExceeded {
			e.markStalled(time.Now())
			log.Printf("[WARN] endpoint %s stalled, bypassing", e.cfg.URL)
		}
		if !isTransient(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("all %d attempts failed: %w", f.maxRetries, lastErr)
}

func (f *Fabric) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := f.do(ctx, func(ctx context.Context, eth *ethclient.Client) error {
		var err error
		id, err = eth.ChainID(ctx)
		return err
	})
	return id, err
}

func (f *Fabric) PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	var nonce uint64
	err := f.do(ctx, func(ctx context.Context, eth *ethclient.Client) error {
		var err error
		nonce, err = eth.PendingNonceAt(ctx, addr)
		return err
	})
	return nonce, err
}

func (f *Fabric) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return f.do(ctx, func(ctx context.Context, eth *ethclient.Client) error {
		return eth.SendTransaction(ctx, tx)
	})
}

func (f *Fabric) BlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := f.do(ctx, func(ctx context.Context, eth *ethclient.Client) error {
		var err error
		n, err = eth.BlockNumber(ctx)
		return err
	})
	return n, err
}

func (f *Fabric) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	var head *types.Header
	err := f.do(ctx, func(ctx context.Context, eth *ethclient.Client) error {
		var err error
		head, err = eth.HeaderByNumber(ctx, number)
		return err
	})
	return head, err
}

func (f *Fabric) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	var tip *big.Int
	err := f.do(ctx, func(ctx context.Context, eth *ethclient.Client) error {
		var err error
		tip, err = eth.SuggestGasTipCap(ctx)
		return err
	})
	return tip, err
}

func (f *Fabric) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := f.do(ctx, func(ctx context.Context, eth *ethclient.Client) error {
		var err error
		price, err = eth.SuggestGasPrice(ctx)
		return err
	})
	return price, err
}

func (f *Fabric) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := f.do(ctx, func(ctx context.Context, eth *ethclient.Client) error {
		var err error
		out, err = eth.CallContract(ctx, msg, blockNumber)
		return err
	})
	return out, err
}

// TransactionReceipt fetches a receipt. In multi-endpoint mode the receipt
// must be corroborated by endpoints carrying at least quorum weight; a
// receipt only one minority endpoint has seen is treated as not yet found.
func (f *Fabric) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if len(f.endpoints) == 1 {
		var r *types.Receipt
		err := f.do(ctx, func(ctx context.Context, eth *ethclient.Client) error {
			var err error
			r, err = eth.TransactionReceipt(ctx, txHash)
			return err
		})
		return r, err
	}

	now := time.Now()
	quorum := quorumThreshold(f.totalWeight)
	agree := make(map[common.Hash]int) // receipt block hash -> weight
	receipts := make(map[common.Hash]*types.Receipt)
	var lastErr error

	for _, e := range f.endpoints {
		if e.bypassed(now) {
			continue
		}
		opCtx, cancel := context.WithTimeout(ctx, e.cfg.StallTimeout)
		r, err := e.eth.TransactionReceipt(opCtx, txHash)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		agree[r.BlockHash] += e.cfg.Weight
		receipts[r.BlockHash] = r
		if agree[r.BlockHash] >= quorum {
			return receipts[r.BlockHash], nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ethereum.NotFound
}
