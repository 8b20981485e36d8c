package oracle

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// trustedDomains is the curated allowlist of infrastructure sources the
// oracle can actually check: block explorers, operator status pages, price
// APIs, bridge and gas dashboards. Exact or parent-domain match.
var trustedDomains = []string{
	"etherscan.io",
	"basescan.org",
	"arbiscan.io",
	"optimistic.etherscan.io",
	"polygonscan.com",
	"status.base.org",
	"status.optimism.io",
	"status.arbitrum.io",
	"githubstatus.com",
	"status.openai.com",
	"status.cloud.google.com",
	"status.aws.amazon.com",
	"coingecko.com",
	"coinmarketcap.com",
	"openweathermap.org",
	"l2beat.com",
	"defillama.com",
	"dune.com",
}

// capabilities are the declared oracle capability categories; a proposal
// must hit at least one keyword in at least one category to be verifiable.
var capabilities = map[string][]string{
	"operational":    {"status", "outage", "uptime", "operational", "incident", "downtime", "degraded"},
	"gas":            {"gas", "gwei", "basefee", "gastracker"},
	"compute":        {"compute", "gpu", "inference", "latency"},
	"sla":            {"sla", "availability", "response time"},
	"rate-limit":     {"rate limit", "rate-limit", "429", "throttl"},
	"oracle-price":   {"price", "usd", "market", "token", "coin"},
	"bridge":         {"bridge", "withdrawal", "deposit", "finalization"},
	"yield":          {"yield", "apy", "apr", "vault"},
	"data-integrity": {"feed", "stale", "integrity", "data"},
	"exploit":        {"exploit", "hack", "vulnerability", "drain"},
}

// GateError reports which gate rejected a proposal and why. Rejections are
// logged locally and produce zero on-chain activity.
type GateError struct {
	Gate   string
	Reason string
}

func (e *GateError) Error() string {
	return fmt.Sprintf("gate %s: %s", e.Gate, e.Reason)
}

// Gate is the semantic verifiability pre-creation validator: trusted domain,
// oracle capability, URL reachability, in that order, short-circuiting.
type Gate struct {
	Trusted []string
	Client  *http.Client
}

// NewGate builds the gate with the curated allowlist and a probe client that
// does not follow redirects (a 3xx answer is itself a pass).
func NewGate() *Gate {
	return &Gate{
		Trusted: trustedDomains,
		Client: &http.Client{
			Timeout: 15 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Validate runs the three gates. A nil return means the proposal may proceed
// to on-chain creation.
func (g *Gate) Validate(ctx context.Context, description, evidenceSource string) error {
	host, err := parseHost(evidenceSource)
	if err != nil {
		return &GateError{Gate: "A", Reason: err.Error()}
	}
	if !g.domainTrusted(host) {
		return &GateError{Gate: "A", Reason: fmt.Sprintf("domain %q not in trusted allowlist", host)}
	}

	if cat := matchCapability(description + " " + evidenceSource); cat == "" {
		return &GateError{Gate: "B", Reason: "event is unverifiable: no oracle capability matches"}
	}

	if err := g.checkReachable(ctx, evidenceSource); err != nil {
		return &GateError{Gate: "C", Reason: err.Error()}
	}
	return nil
}

func parseHost(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("unparseable evidence URL: %v", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", fmt.Errorf("evidence URL must be http(s), got %q", u.Scheme)
	}
	return strings.ToLower(u.Hostname()), nil
}

// domainTrusted accepts an exact match or a subdomain of an allowlisted
// parent.
func (g *Gate) domainTrusted(host string) bool {
	for _, d := range g.Trusted {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// matchCapability returns the first capability category whose keywords hit
// the proposal text, or "".
func matchCapability(text string) string {
	lower := strings.ToLower(text)
	for cat, words := range capabilities {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return cat
			}
		}
	}
	return ""
}

// reachableStatus classifies a probe response. 2xx and 3xx pass; 405 means
// HEAD is unsupported but the URL exists; 403 is a common bot-block on
// pages that render fine.
func reachableStatus(code int) bool {
	if code >= 200 && code < 400 {
		return true
	}
	return code == http.StatusForbidden || code == http.StatusMethodNotAllowed
}

func (g *Gate) checkReachable(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build probe: %v", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; poolwarden/1.0)")
	resp, err := g.Client.Do(req)
	if err != nil {
		return fmt.Errorf("unreachable: %v", err)
	}
	resp.Body.Close()
	if !reachableStatus(resp.StatusCode) {
		return fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	return nil
}
