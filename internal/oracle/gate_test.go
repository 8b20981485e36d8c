package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func testGate(trusted ...string) *Gate {
	return &Gate{
		Trusted: trusted,
		Client: &http.Client{
			Timeout: time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func TestGateA_RejectsUntrustedDomain(t *testing.T) {
	g := NewGate()
	err := g.Validate(context.Background(), "operator status outage", "https://example-attacker.com/status")
	var gateErr *GateError
	if !errors.As(err, &gateErr) || gateErr.Gate != "A" {
		t.Fatalf("expected gate A rejection, got %v", err)
	}
}

func TestGateA_ParentDomainMatch(t *testing.T) {
	g := testGate("etherscan.io")
	if !g.domainTrusted("etherscan.io") {
		t.Error("exact match must pass")
	}
	if !g.domainTrusted("api.etherscan.io") {
		t.Error("subdomain of trusted parent must pass")
	}
	if g.domainTrusted("evil-etherscan.io") {
		t.Error("lookalike domain must fail")
	}
	if g.domainTrusted("etherscan.io.attacker.net") {
		t.Error("suffix-spoofed domain must fail")
	}
}

func TestGateB_RejectsUnverifiableEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	host, _ := url.Parse(srv.URL)

	g := testGate(host.Hostname())
	err := g.Validate(context.Background(), "my neighbor seemed sad this morning", srv.URL+"/mood")
	var gateErr *GateError
	if !errors.As(err, &gateErr) || gateErr.Gate != "B" {
		t.Fatalf("expected gate B rejection, got %v", err)
	}
}

func TestGateB_CapabilityCategories(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"rpc endpoint returns 429 under load", true},       // rate-limit
		{"gas above 80 gwei on l2", true},                   // gas
		{"bridge withdrawal finalization delayed", true},    // bridge
		{"vault apy under 3 percent", true},                 // yield
		{"price of the token dips", true},                   // oracle-price
		{"status page reports an outage", true},             // operational
		{"oracle feed goes stale", true},                    // data-integrity
		{"protocol exploit drains funds", true},             // exploit
		{"someone wins the local chess tournament", false},
	}
	for _, tt := range tests {
		got := matchCapability(tt.text) != ""
		if got != tt.want {
			t.Errorf("matchCapability(%q) hit=%v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestGateC_StatusClassification(t *testing.T) {
	tests := []struct {
		code int
		pass bool
	}{
		{200, true},
		{204, true},
		{301, true},
		{302, true},
		{304, true},
		{403, true}, // common bot-block
		{405, true}, // HEAD unsupported
		{400, false},
		{404, false},
		{410, false},
		{500, false},
		{503, false},
	}
	for _, tt := range tests {
		if got := reachableStatus(tt.code); got != tt.pass {
			t.Errorf("reachableStatus(%d) = %v, want %v", tt.code, got, tt.pass)
		}
	}
}

func TestGateC_ProbesURL(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()
	host, _ := url.Parse(srv.URL)
	g := testGate(host.Hostname())

	if err := g.Validate(context.Background(), "status outage coverage", srv.URL+"/status"); err != nil {
		t.Fatalf("expected pass for 200, got %v", err)
	}

	status = http.StatusNotFound
	err := g.Validate(context.Background(), "status outage coverage", srv.URL+"/status")
	var gateErr *GateError
	if !errors.As(err, &gateErr) || gateErr.Gate != "C" {
		t.Fatalf("expected gate C rejection for 404, got %v", err)
	}
}

func TestGate_ShortCircuitsBeforeNetwork(t *testing.T) {
	// Untrusted domain must never be probed.
	g := testGate("etherscan.io")
	g.Client = &http.Client{
		Timeout: time.Millisecond, // any probe would fail loudly
	}
	err := g.Validate(context.Background(), "gas gwei", "https://attacker.example/gas")
	var gateErr *GateError
	if !errors.As(err, &gateErr) || gateErr.Gate != "A" {
		t.Fatalf("expected gate A before any probe, got %v", err)
	}
}
