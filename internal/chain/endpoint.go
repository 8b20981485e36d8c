package chain

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// EndpointConfig describes one RPC endpoint of the fabric.
type EndpointConfig struct {
	URL          string
	Priority     int
	StallTimeout time.Duration
	Weight       int
}

// transientMarkers are substrings that identify retryable RPC failures.
// Anything else fails fast.
var transientMarkers = []string{
	"connection refused",
	"connection reset",
	"429",
	"too many requests",
	"502",
	"503",
	"504",
	"server error",
	"service unavailable",
	"timeout",
	"timed out",
	"missing revert data",
	"could not coalesce",
	"EOF",
}

// isTransient reports whether err is worth retrying with backoff.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
