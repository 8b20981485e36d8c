package model

import "time"

// DayCounters are the per-UTC-day write budgets. They reset by virtue of the
// map being keyed on the ISO date.
type DayCounters struct {
	Posts    int `json:"posts"`
	Comments int `json:"comments"`
	Follows  int `json:"follows"`
	DMs      int `json:"dms"`
}

// PlatformFlags track one-time per-platform milestones.
type PlatformFlags struct {
	Registered   bool `json:"registered"`
	WalletLinked bool `json:"wallet_linked"`
	IntroPosted  bool `json:"intro_posted"`
}

// Stats are monotonic lifetime totals, kept for the health endpoint.
type Stats struct {
	PoolsCreated  int `json:"pools_created"`
	PoolsResolved int `json:"pools_resolved"`
	PoolsFailed   int `json:"pools_failed"`
	PostsSent     int `json:"posts_sent"`
	RepliesSent   int `json:"replies_sent"`
}

// ContentLedgerCap bounds the outbound content-hash FIFO.
const ContentLedgerCap = 500

// AgentState is the single durable document. It is loaded at heartbeat start
// and rewritten atomically at heartbeat end. Missing keys default to
// zero/empty on load; unknown keys are preserved by the store.
type AgentState struct {
	Pools          []*Pool                   `json:"pools"`
	Stats          Stats                     `json:"stats"`
	Counters       map[string]*DayCounters   `json:"counters,omitempty"`
	ContentHashes  []string                  `json:"content_hashes,omitempty"`
	Platforms      map[string]*PlatformFlags `json:"platforms,omitempty"`
	LastPostAt     map[string]int64          `json:"last_post_at,omitempty"`
	SuspendedUntil map[string]int64          `json:"suspended_until,omitempty"`
	LastHeartbeat  int64                     `json:"last_heartbeat,omitempty"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

// NonTerminalPools returns the pools the lifecycle manager still drives.
func (s *AgentState) NonTerminalPools() []*Pool {
	out := make([]*Pool, 0, len(s.Pools))
	for _, p := range s.Pools {
		if !p.Status.Terminal() {
			out = append(out, p)
		}
	}
	return out
}

// FindPool looks a pool up by its internal reference.
func (s *AgentState) FindPool(ref string) *Pool {
	for _, p := range s.Pools {
		if p.Ref == ref {
			return p
		}
	}
	return nil
}

// Suspended reports whether writes to the named platform are short-circuited.
func (s *AgentState) Suspended(platform string, now time.Time) bool {
	if s.SuspendedUntil == nil {
		return false
	}
	return now.Unix() < s.SuspendedUntil[platform]
}

// Flags returns (allocating if needed) the flag block for a platform.
func (s *AgentState) Flags(platform string) *PlatformFlags {
	if s.Platforms == nil {
		s.Platforms = make(map[string]*PlatformFlags)
	}
	f, ok := s.Platforms[platform]
	if !ok {
		f = &PlatformFlags{}
		s.Platforms[platform] = f
	}
	return f
}
