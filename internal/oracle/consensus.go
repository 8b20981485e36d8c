package oracle

import (
	"time"

	"poolwarden/internal/model"
)

// ConsensusInput is everything the consensus engine needs for one decision.
type ConsensusInput struct {
	Judge             model.JudgeVerdict
	Auditor           model.AuditorVerdict
	Structured        *model.StructuredData
	EvidenceAvailable bool // the URL fetch produced a usable body
	Evidence          string
}

// Decide applies the dual-auth rule: a claim is approved only when judge and
// auditor agree on true. Disagreement is the security default (no claim).
// With no evidence at all the pool is left for the next heartbeat.
func Decide(in ConsensusInput, now time.Time) model.Resolution {
	record := model.DualAuthResult{
		Judge:       in.Judge,
		Auditor:     in.Auditor,
		Structured:  in.Structured,
		Rules:       model.GoverningRules,
		EvaluatedAt: now.Unix(),
	}

	if !in.EvidenceAvailable && in.Structured == nil {
		// Nothing observed: do not resolve, retry next heartbeat.
		return model.Resolution{
			ShouldResolve: false,
			ClaimApproved: false,
			DualAuth:      record,
		}
	}

	record.Consensus = in.Judge.Verdict == in.Auditor.Verdict
	if record.Consensus {
		record.ClaimApproved = in.Judge.Verdict
	} else {
		record.ClaimApproved = false
		record.SecurityDefault = true
	}

	return model.Resolution{
		ShouldResolve: true,
		ClaimApproved: record.ClaimApproved,
		DualAuth:      record,
		Evidence:      in.Evidence,
	}
}
