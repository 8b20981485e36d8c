package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// PoolStatus is the lifecycle state of an insurance pool.
type PoolStatus string

const (
	StatusProposed  PoolStatus = "PROPOSED"
	StatusPending   PoolStatus = "PENDING"
	StatusOpen      PoolStatus = "OPEN"
	StatusActive    PoolStatus = "ACTIVE"
	StatusResolved  PoolStatus = "RESOLVED"
	StatusCancelled PoolStatus = "CANCELLED"
	StatusFailed    PoolStatus = "FAILED"
	StatusExpired   PoolStatus = "EXPIRED"
)

// Terminal reports whether the status admits no further transitions.
func (s PoolStatus) Terminal() bool {
	switch s {
	case StatusResolved, StatusCancelled, StatusFailed, StatusExpired:
		return true
	}
	return false
}

// DepositLeadSeconds is how long before the deadline collateral deposits close.
const DepositLeadSeconds = 7200

// MaxPoolRetries bounds on-chain creation attempts before a pool goes FAILED.
const MaxPoolRetries = 3

// EmergencyResolveDelay is how long past the deadline the emergency path waits.
const EmergencyResolveDelay = 24 * time.Hour

// Pool is a parametric insurance pool tracked by the agent. Parameters are
// immutable after creation; only progress, retry, and resolution fields move.
type Pool struct {
	Ref     string  `json:"ref"`
	ChainID *uint64 `json:"chain_id,omitempty"`

	Description     string `json:"description"`
	EvidenceSource  string `json:"evidence_source"`
	ProductID       string `json:"product_id,omitempty"`
	CoverageAmount  uint64 `json:"coverage_amount"`
	PremiumRateBps  uint32 `json:"premium_rate_bps"`
	Deadline        int64  `json:"deadline"`
	DepositDeadline int64  `json:"deposit_deadline"`

	Status          PoolStatus `json:"status"`
	Participants    []string   `json:"participants,omitempty"`
	PremiumPaid     bool       `json:"premium_paid"`
	TotalCollateral uint64     `json:"total_collateral"`
	CreationTx      string     `json:"creation_tx,omitempty"`
	ResolutionTx    string     `json:"resolution_tx,omitempty"`

	Retries        int    `json:"retries"`
	LastRetryError string `json:"last_retry_error,omitempty"`
	LastRetryAt    int64  `json:"last_retry_at,omitempty"`
	FailedAt       int64  `json:"failed_at,omitempty"`
	FailReason     string `json:"fail_reason,omitempty"`

	ClaimApproved      *bool           `json:"claim_approved,omitempty"`
	ResolutionEvidence string          `json:"resolution_evidence,omitempty"`
	DualAuth           *DualAuthResult `json:"dual_auth_result,omitempty"`
	ResolvedAt         int64           `json:"resolved_at,omitempty"`

	CreatedAt int64 `json:"created_at"`
}

// NewPool constructs a PROPOSED pool with the deposit deadline derived from
// the resolution deadline.
func NewPool(description, evidenceSource, productID string, coverage uint64, premiumBps uint32, deadline int64) *Pool {
	return &Pool{
		Ref:             uuid.NewString(),
		Description:     description,
		EvidenceSource:  evidenceSource,
		ProductID:       productID,
		CoverageAmount:  coverage,
		PremiumRateBps:  premiumBps,
		Deadline:        deadline,
		DepositDeadline: deadline - DepositLeadSeconds,
		Status:          StatusProposed,
		CreatedAt:       time.Now().Unix(),
	}
}

// Validate checks pool field constraints.
func (p *Pool) Validate() error {
	if p.Description == "" {
		return errors.New("pool description must not be empty")
	}
	if p.EvidenceSource == "" {
		return errors.New("pool evidence source must not be empty")
	}
	if p.CoverageAmount == 0 {
		return errors.New("pool coverage must be positive")
	}
	if p.PremiumRateBps == 0 || p.PremiumRateBps >= 10000 {
		return errors.New("premium rate must be in (0, 10000) bps")
	}
	if p.DepositDeadline >= p.Deadline {
		return errors.New("deposit deadline must precede the resolution deadline")
	}
	return nil
}

// PastDeadline reports whether the pool deadline has been reached.
// A deadline exactly equal to now counts as past.
func (p *Pool) PastDeadline(now time.Time) bool {
	return now.Unix() >= p.Deadline
}

// PastDepositDeadline reports whether the collateral window has closed.
func (p *Pool) PastDepositDeadline(now time.Time) bool {
	return now.Unix() >= p.DepositDeadline
}

// AddParticipant records a collateral provider address once.
func (p *Pool) AddParticipant(addr string) {
	for _, a := range p.Participants {
		if a == addr {
			return
		}
	}
	p.Participants = append(p.Participants, addr)
}

// StatusFromChain maps the vault's small status enum to a PoolStatus.
func StatusFromChain(v uint8) PoolStatus {
	switch v {
	case 0:
		return StatusPending
	case 1:
		return StatusOpen
	case 2:
		return StatusActive
	case 3:
		return StatusResolved
	case 4:
		return StatusCancelled
	}
	return StatusPending
}
