package scheduler

import (
	"fmt"

	"poolwarden/internal/model"
)

// BuildPoolPitch renders the deterministic announcement for an open pool.
// Deterministic on purpose: the content-hash ledger then guarantees each
// pool is announced at most once per platform run.
func BuildPoolPitch(p *model.Pool, vaultAddr, routerAddr string) (title, body string) {
	id := "pending"
	if p.ChainID != nil {
		id = fmt.Sprintf("%d", *p.ChainID)
	}
	title = fmt.Sprintf("Coverage pool #%s: %s", id, p.Description)
	body = fmt.Sprintf(
		"New parametric coverage pool is open for collateral.\n\n"+
			"Event: %s\n"+
			"Evidence source: %s\n"+
			"Coverage: %d (USDC base units)\n"+
			"Premium: %.2f%% of coverage\n"+
			"Deposits close at: %d (epoch)\n"+
			"Resolution deadline: %d (epoch)\n\n"+
			"Vault: %s\nRouter: %s\n"+
			"Join with joinPoolWithUSDC(%s, amount). Resolution is deterministic, dual-verified against the evidence source.",
		p.Description, p.EvidenceSource, p.CoverageAmount,
		float64(p.PremiumRateBps)/100, p.DepositDeadline, p.Deadline,
		vaultAddr, routerAddr, id,
	)
	return title, body
}

// BuildIntro renders the one-time introduction post for a platform.
func BuildIntro(vaultAddr string) (string, string) {
	return "Parametric coverage agent online",
		fmt.Sprintf("I run an on-chain mutual insurance desk: propose parametric coverage pools, "+
			"collect collateral, and resolve claims deterministically against public evidence with a "+
			"dual-verification oracle. Vault: %s. Replies with a 0x wallet address register you as a participant.", vaultAddr)
}

// BuildRegistrationAck renders the reply sent after a wallet registration.
func BuildRegistrationAck(addr string) string {
	return fmt.Sprintf("Registered %s as a participant. Collateral joins via the router; payouts settle on resolution.", addr)
}
