package chain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("connection refused"), true},
		{errors.New("read tcp: connection reset by peer"), true},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("429 too many requests"), true},
		{errors.New("503 service unavailable"), true},
		{errors.New("request timed out"), true},
		{errors.New("missing revert data in call exception"), true},
		{errors.New("could not coalesce error"), true},
		{context.DeadlineExceeded, true},
		{errors.New("execution reverted: pool exists"), false},
		{errors.New("insufficient funds for gas"), false},
		{errors.New("nonce too low"), false},
	}
	for _, tt := range tests {
		if got := isTransient(tt.err); got != tt.want {
			t.Errorf("isTransient(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestQuorumThreshold(t *testing.T) {
	tests := []struct {
		total, want int
	}{
		{1, 1},
		{2, 1},
		{3, 2},
		{4, 2},
		{5, 3},
		{6, 3},
	}
	for _, tt := range tests {
		if got := quorumThreshold(tt.total); got != tt.want {
			t.Errorf("quorumThreshold(%d) = %d, want %d", tt.total, got, tt.want)
		}
	}
}

func TestPick_PrefersWeightAndSkipsBypassed(t *testing.T) {
	mk := func(url string, weight int) *endpointClient {
		return &endpointClient{cfg: EndpointConfig{URL: url, Weight: weight, StallTimeout: time.Second}}
	}
	heavy := mk("heavy", 3)
	light := mk("light", 1)
	f := &Fabric{endpoints: []*endpointClient{heavy, light}, totalWeight: 4}

	now := time.Now()
	if got := f.pick(now); got != heavy {
		t.Fatalf("expected highest-weight endpoint first, got %s", got.cfg.URL)
	}

	heavy.markStalled(now)
	if got := f.pick(now); got != light {
		t.Fatalf("expected bypass of stalled endpoint, got %s", got.cfg.URL)
	}

	// All bypassed: fall back to the best one rather than failing.
	light.markStalled(now)
	if got := f.pick(now); got != heavy {
		t.Fatalf("expected fallback to best endpoint, got %s", got.cfg.URL)
	}

	// Bypass expires.
	later := now.Add(bypassWindow + time.Second)
	if got := f.pick(later); got != heavy {
		t.Fatalf("expected bypass to expire, got %s", got.cfg.URL)
	}
}

func TestDo_BackoffRetriesTransientOnly(t *testing.T) {
	newFabric := func() *Fabric {
		return &Fabric{
			endpoints:   []*endpointClient{{cfg: EndpointConfig{URL: "a", Weight: 1, StallTimeout: time.Second}}},
			totalWeight: 1,
			backoffBase: time.Millisecond,
			maxRetries:  3,
		}
	}

	// Transient errors are retried until success.
	calls := 0
	err := newFabric().do(context.Background(), func(ctx context.Context, _ *ethclient.Client) error {
		calls++
		if calls < 3 {
			return errors.New("503 service unavailable")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}

	// Non-transient errors fail fast, no retry.
	calls = 0
	err = newFabric().do(context.Background(), func(ctx context.Context, _ *ethclient.Client) error {
		calls++
		return errors.New("execution reverted: bad pool")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected fail-fast single attempt, got %d", calls)
	}

	// Retries exhaust: exactly one outcome surfaced.
	calls = 0
	err = newFabric().do(context.Background(), func(ctx context.Context, _ *ethclient.Client) error {
		calls++
		return fmt.Errorf("attempt %d: timeout", calls)
	})
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if calls != 3 {
		t.Fatalf("expected maxRetries attempts, got %d", calls)
	}
}
