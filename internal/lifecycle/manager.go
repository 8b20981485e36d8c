package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"poolwarden/internal/chain"
	"poolwarden/internal/evidence"
	"poolwarden/internal/model"
	"poolwarden/internal/oracle"
	"poolwarden/internal/recorder"
)

// MaxActivePools caps the number of concurrently tracked non-terminal pools.
const MaxActivePools = 15

// EvidenceFetcher is the URL evidence surface the resolution pipeline uses.
type EvidenceFetcher interface {
	FetchURL(ctx context.Context, url string) (*evidence.Evidence, error)
}

// StructuredSource provides machine-readable evidence per event type.
type StructuredSource interface {
	FetchGas(ctx context.Context) (*model.StructuredData, error)
	FetchPriceChange7d(ctx context.Context, coinID string) (*model.StructuredData, error)
	FetchWeather(ctx context.Context, lat, lon float64) (*model.StructuredData, error)
}

// GateChecker validates a proposal before any on-chain activity.
type GateChecker interface {
	Validate(ctx context.Context, description, evidenceSource string) error
}

// Manager drives the pool state machine. It is invoked once per heartbeat
// cycle, single-threaded; all on-chain writes go through the vault, which
// serializes them behind the transaction coordinator.
type Manager struct {
	Vault      chain.PoolVault
	Gate       GateChecker
	Fetcher    EvidenceFetcher
	Structured StructuredSource
	Judge      oracle.Judge
	Auditor    oracle.Auditor
	Recorder   recorder.Recorder

	// Weather pools are evaluated at a fixed deployment location.
	WeatherLat float64
	WeatherLon float64

	Now func() time.Time
}

func NewManager(vault chain.PoolVault, gate GateChecker, fetcher EvidenceFetcher, structured StructuredSource, rec recorder.Recorder) *Manager {
	return &Manager{
		Vault:      vault,
		Gate:       gate,
		Fetcher:    fetcher,
		Structured: structured,
		Recorder:   rec,
		Now:        time.Now,
	}
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// ErrCapacity is returned when the non-terminal pool cap is reached.
var ErrCapacity = errors.New("pool capacity reached")

// Propose validates a new pool through the verifiability gate and adds it to
// state as PROPOSED. A rejected proposal produces zero on-chain activity.
func (m *Manager) Propose(ctx context.Context, st *model.AgentState, description, evidenceSource, productID string, coverage uint64, premiumBps uint32, deadline int64) (*model.Pool, error) {
	if len(st.NonTerminalPools()) >= MaxActivePools {
		return nil, ErrCapacity
	}
	if err := m.Gate.Validate(ctx, description, evidenceSource); err != nil {
		log.Printf("[WARN] proposal rejected by gate: %v", err)
		return nil, err
	}
	p := model.NewPool(description, evidenceSource, productID, coverage, premiumBps, deadline)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	st.Pools = append(st.Pools, p)
	m.record(&recorder.PoolEvent{
		PoolRef: p.Ref, EventType: "PROPOSED", Status: string(p.Status),
		Coverage: p.CoverageAmount, PremiumBps: p.PremiumRateBps, Deadline: p.Deadline,
	})
	log.Printf("[INFO] pool proposed: ref=%s coverage=%d deadline=%d", p.Ref, p.CoverageAmount, p.Deadline)
	return p, nil
}

// StepReport summarizes one lifecycle pass for the heartbeat recorder.
type StepReport struct {
	Tracked  int
	Created  int
	Resolved int
	Errors   int
}

// Step advances every non-terminal pool by at most one transition.
func (m *Manager) Step(ctx context.Context, st *model.AgentState) StepReport {
	var rep StepReport
	now := m.now()
	for _, p := range st.NonTerminalPools() {
		rep.Tracked++
		switch p.Status {
		case model.StatusProposed:
			m.stepProposed(ctx, st, p, now, &rep)
		case model.StatusPending, model.StatusOpen:
			m.stepFunding(ctx, p, now, &rep)
		case model.StatusActive:
			m.stepActive(ctx, st, p, now, &rep)
		}
	}
	return rep
}

func (m *Manager) stepProposed(ctx context.Context, st *model.AgentState, p *model.Pool, now time.Time, rep *StepReport) {
	if p.PastDeadline(now) {
		p.Status = model.StatusExpired
		m.record(&recorder.PoolEvent{PoolRef: p.Ref, EventType: "EXPIRED", Status: string(p.Status)})
		log.Printf("[INFO] pool expired before creation: ref=%s", p.Ref)
		return
	}
	if p.Retries >= model.MaxPoolRetries {
		p.Status = model.StatusFailed
		p.FailedAt = now.Unix()
		p.FailReason = fmt.Sprintf("creation failed after %d attempts: %s", p.Retries, p.LastRetryError)
		st.Stats.PoolsFailed++
		m.record(&recorder.PoolEvent{PoolRef: p.Ref, EventType: "FAILED", Status: string(p.Status), Note: p.FailReason})
		log.Printf("[ERROR] pool failed permanently: ref=%s reason=%s", p.Ref, p.FailReason)
		return
	}

	poolID, txHash, err := m.Vault.CreatePool(ctx, chain.CreateParams{
		Description:    p.Description,
		EvidenceSource: p.EvidenceSource,
		Coverage:       new(big.Int).SetUint64(p.CoverageAmount),
		PremiumBps:     big.NewInt(int64(p.PremiumRateBps)),
		Deadline:       big.NewInt(p.Deadline),
	})
	if err != nil {
		p.Retries++
		p.LastRetryError = err.Error()
		p.LastRetryAt = now.Unix()
		rep.Errors++
		m.record(&recorder.PoolEvent{PoolRef: p.Ref, EventType: "RETRY", Status: string(p.Status), Note: err.Error()})
		log.Printf("[WARN] createPool failed (attempt %d/%d): ref=%s err=%v", p.Retries, model.MaxPoolRetries, p.Ref, err)
		if p.Retries >= model.MaxPoolRetries {
			p.Status = model.StatusFailed
			p.FailedAt = now.Unix()
			p.FailReason = fmt.Sprintf("creation failed after %d attempts: %s", p.Retries, p.LastRetryError)
			st.Stats.PoolsFailed++
			m.record(&recorder.PoolEvent{PoolRef: p.Ref, EventType: "FAILED", Status: string(p.Status), Note: p.FailReason})
			log.Printf("[ERROR] pool failed permanently: ref=%s reason=%s", p.Ref, p.FailReason)
		}
		return
	}

	p.ChainID = &poolID
	p.CreationTx = txHash
	p.Status = model.StatusPending
	p.Retries = 0
	p.LastRetryError = ""
	st.Stats.PoolsCreated++
	rep.Created++
	m.record(&recorder.PoolEvent{
		PoolRef: p.Ref, ChainID: p.ChainID, EventType: "CREATED", Status: string(p.Status),
		Coverage: p.CoverageAmount, PremiumBps: p.PremiumRateBps, Deadline: p.Deadline, TxHash: txHash,
	})
	log.Printf("[INFO] pool created on-chain: ref=%s id=%d tx=%s", p.Ref, poolID, txHash)
}

// stepFunding syncs a Pending/Open pool against the chain and cancels pools
// stuck Pending past the collateral window.
func (m *Manager) stepFunding(ctx context.Context, p *model.Pool, now time.Time, rep *StepReport) {
	if p.ChainID == nil {
		return
	}
	oc, err := m.Vault.GetPool(ctx, *p.ChainID)
	if err != nil {
		rep.Errors++
		log.Printf("[WARN] getPool failed: ref=%s id=%d err=%v", p.Ref, *p.ChainID, err)
		return
	}
	prev := p.Status
	p.Status = model.StatusFromChain(oc.Status)
	p.PremiumPaid = oc.PremiumPaid
	if oc.TotalCollateral != nil {
		p.TotalCollateral = oc.TotalCollateral.Uint64()
	}
	if p.Status != prev {
		m.record(&recorder.PoolEvent{PoolRef: p.Ref, ChainID: p.ChainID, EventType: string(p.Status), Status: string(p.Status)})
		log.Printf("[INFO] pool status synced: ref=%s %s -> %s", p.Ref, prev, p.Status)
	}
	if p.Status.Terminal() || p.Status == model.StatusActive {
		return
	}

	if p.Status == model.StatusPending && p.PastDepositDeadline(now) {
		txHash, err := m.Vault.CancelAndRefund(ctx, *p.ChainID)
		if err != nil {
			rep.Errors++
			log.Printf("[WARN] cancelAndRefund failed: ref=%s err=%v", p.Ref, err)
			return
		}
		p.Status = model.StatusCancelled
		p.ResolutionTx = txHash
		m.record(&recorder.PoolEvent{PoolRef: p.Ref, ChainID: p.ChainID, EventType: "CANCELLED", Status: string(p.Status), TxHash: txHash})
		log.Printf("[INFO] unfunded pool cancelled: ref=%s tx=%s", p.Ref, txHash)
	}
}

func (m *Manager) stepActive(ctx context.Context, st *model.AgentState, p *model.Pool, now time.Time, rep *StepReport) {
	if !p.PastDeadline(now) {
		return
	}

	res := m.Resolve(ctx, p)
	if !res.ShouldResolve {
		// No usable evidence this cycle. The emergency path takes over once
		// the pool has sat unresolvable long enough.
		if now.Sub(time.Unix(p.Deadline, 0)) >= model.EmergencyResolveDelay {
			m.emergencyResolve(ctx, st, p, now, rep)
			return
		}
		log.Printf("[INFO] resolution deferred, evidence unavailable: ref=%s", p.Ref)
		return
	}

	if p.ChainID == nil {
		return
	}
	txHash, err := m.Vault.ResolvePool(ctx, *p.ChainID, res.ClaimApproved)
	if err != nil {
		rep.Errors++
		log.Printf("[WARN] resolvePool failed: ref=%s err=%v", p.Ref, err)
		return
	}

	approved := res.ClaimApproved
	p.Status = model.StatusResolved
	p.ClaimApproved = &approved
	p.ResolutionEvidence = res.Evidence
	p.DualAuth = &res.DualAuth
	p.ResolutionTx = txHash
	p.ResolvedAt = now.Unix()
	st.Stats.PoolsResolved++
	rep.Resolved++
	m.record(&recorder.PoolEvent{PoolRef: p.Ref, ChainID: p.ChainID, EventType: "RESOLVED", Status: string(p.Status), TxHash: txHash})
	m.recordResolution(p, res, false, txHash)
	log.Printf("[INFO] pool resolved: ref=%s id=%d approved=%v tx=%s", p.Ref, *p.ChainID, approved, txHash)
}

// emergencyResolve is the escape hatch for pools whose evidence never became
// available. The contract side settles conservatively.
func (m *Manager) emergencyResolve(ctx context.Context, st *model.AgentState, p *model.Pool, now time.Time, rep *StepReport) {
	if p.ChainID == nil {
		return
	}
	txHash, err := m.Vault.EmergencyResolve(ctx, *p.ChainID)
	if errors.Is(err, chain.ErrUnsupported) {
		log.Printf("[WARN] emergency resolve unsupported by vault variant: ref=%s", p.Ref)
		return
	}
	if err != nil {
		rep.Errors++
		log.Printf("[WARN] emergencyResolve failed: ref=%s err=%v", p.Ref, err)
		return
	}
	approved := false
	p.Status = model.StatusResolved
	p.ClaimApproved = &approved
	p.ResolutionTx = txHash
	p.ResolvedAt = now.Unix()
	st.Stats.PoolsResolved++
	rep.Resolved++
	m.record(&recorder.PoolEvent{PoolRef: p.Ref, ChainID: p.ChainID, EventType: "RESOLVED", Status: string(p.Status), TxHash: txHash, Note: "emergency"})
	m.recordResolution(p, model.Resolution{}, true, txHash)
	log.Printf("[INFO] pool emergency-resolved: ref=%s id=%d tx=%s", p.Ref, *p.ChainID, txHash)
}

// Resolve runs the full oracle pipeline for one pool without touching the
// chain: fetch evidence, sanitize, evaluate both components, demand consensus.
func (m *Manager) Resolve(ctx context.Context, p *model.Pool) model.Resolution {
	ev := oracle.ParseEvent(p.Description)

	structured := m.fetchStructured(ctx, ev)

	var sanitized string
	evidenceAvailable := false
	if m.Fetcher != nil {
		fetched, err := m.Fetcher.FetchURL(ctx, p.EvidenceSource)
		if err != nil {
			log.Printf("[WARN] evidence fetch failed: ref=%s url=%s err=%v", p.Ref, p.EvidenceSource, err)
		} else if fetched.OK {
			sanitized = oracle.Sanitize(fetched.Body)
			evidenceAvailable = true
		}
	}

	judge := m.Judge.Evaluate(ev, sanitized, structured)
	auditor := m.Auditor.Evaluate(ev, sanitized, structured)

	res := oracle.Decide(oracle.ConsensusInput{
		Judge:             judge,
		Auditor:           auditor,
		Structured:        structured,
		EvidenceAvailable: evidenceAvailable,
		Evidence:          sanitized,
	}, m.now())
	return res
}

func (m *Manager) fetchStructured(ctx context.Context, ev oracle.ParsedEvent) *model.StructuredData {
	if m.Structured == nil {
		return nil
	}
	var (
		data *model.StructuredData
		err  error
	)
	switch ev.Type {
	case model.EventGas:
		data, err = m.Structured.FetchGas(ctx)
	case model.EventPrice:
		data, err = m.Structured.FetchPriceChange7d(ctx, ev.CoinID)
	case model.EventWeather:
		data, err = m.Structured.FetchWeather(ctx, m.WeatherLat, m.WeatherLon)
	default:
		return nil
	}
	if err != nil {
		log.Printf("[WARN] structured fetch failed for %s event: %v", ev.Type, err)
		return nil
	}
	return data
}

func (m *Manager) record(evt *recorder.PoolEvent) {
	if m.Recorder == nil {
		return
	}
	if err := m.Recorder.RecordPoolEvent(evt); err != nil {
		log.Printf("[WARN] record pool event: %v", err)
	}
}

func (m *Manager) recordResolution(p *model.Pool, res model.Resolution, emergency bool, txHash string) {
	if m.Recorder == nil {
		return
	}
	evt := &recorder.ResolutionEvent{
		PoolRef:         p.Ref,
		ChainID:         p.ChainID,
		JudgeVerdict:    res.DualAuth.Judge.Verdict,
		JudgeConfidence: res.DualAuth.Judge.Confidence,
		AuditorVerdict:  res.DualAuth.Auditor.Verdict,
		Consensus:       res.DualAuth.Consensus,
		ClaimApproved:   res.ClaimApproved,
		SecurityDefault: res.DualAuth.SecurityDefault,
		Emergency:       emergency,
		TxHash:          txHash,
		EvidenceBytes:   len(res.Evidence),
	}
	if err := m.Recorder.RecordResolution(evt); err != nil {
		log.Printf("[WARN] record resolution: %v", err)
	}
}
