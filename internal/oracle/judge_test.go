package oracle

import (
	"testing"

	"poolwarden/internal/model"
)

func gasData(gwei float64) *model.StructuredData {
	return &model.StructuredData{Kind: model.EventGas, GasGwei: &gwei, Source: "etherscan_api"}
}

func priceData(change float64) *model.StructuredData {
	return &model.StructuredData{Kind: model.EventPrice, PriceChange7dPct: &change, Source: "price_api"}
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		description string
		wantType    model.EventType
	}{
		{"Base gas > 50 gwei in 7d", model.EventGas},
		{"ETH price drops 15% within the week", model.EventPrice},
		{"Rain in Lisbon on settlement day", model.EventWeather},
		{"Sequencer outage lasting one hour", model.EventGeneric},
	}
	for _, tt := range tests {
		if ev := ParseEvent(tt.description); ev.Type != tt.wantType {
			t.Errorf("ParseEvent(%q).Type = %s, want %s", tt.description, ev.Type, tt.wantType)
		}
	}

	ev := ParseEvent("Base gas > 50 gwei in 7d")
	if ev.GasThresholdGwei != 50 {
		t.Errorf("gas threshold = %v, want 50", ev.GasThresholdGwei)
	}

	ev = ParseEvent("ETH price drops 15% within the week")
	if ev.CoinID != "ethereum" || ev.ThresholdPct != 15 || !ev.Below {
		t.Errorf("price event parsed wrong: %+v", ev)
	}
}

func TestJudge_GasAboveThreshold(t *testing.T) {
	ev := ParseEvent("Base gas > 50 gwei in 7d")
	v := Judge{}.Evaluate(ev, "", gasData(82.5))
	if !v.Verdict {
		t.Error("expected true verdict for 82.5 > 50")
	}
	if v.Confidence != 1.0 {
		t.Errorf("expected confidence 1.0 with structured data, got %v", v.Confidence)
	}
}

func TestJudge_GasBelowThreshold(t *testing.T) {
	ev := ParseEvent("Base gas > 50 gwei in 7d")
	v := Judge{}.Evaluate(ev, "", gasData(31.0))
	if v.Verdict {
		t.Error("expected false verdict for 31 < 50")
	}
}

func TestJudge_GasNoStructuredDataNeverGuesses(t *testing.T) {
	ev := ParseEvent("Base gas > 50 gwei in 7d")
	v := Judge{}.Evaluate(ev, "gas prices went crazy today, huge gas spike", nil)
	if v.Verdict {
		t.Error("judge must not guess without structured gas data")
	}
	if v.Confidence >= 0.5 {
		t.Errorf("expected low confidence, got %v", v.Confidence)
	}
}

func TestJudge_PriceBelowDirection(t *testing.T) {
	ev := ParseEvent("ETH price drops 15% within the week")

	if v := (Judge{}).Evaluate(ev, "", priceData(-20.0)); !v.Verdict {
		t.Error("-20% breaches a 15% drop threshold")
	}
	if v := (Judge{}).Evaluate(ev, "", priceData(-10.0)); v.Verdict {
		t.Error("-10% does not breach a 15% drop threshold")
	}
	if v := (Judge{}).Evaluate(ev, "", priceData(20.0)); v.Verdict {
		t.Error("a rally is not a drop")
	}
}

func TestJudge_PriceMissingFieldCapsConfidence(t *testing.T) {
	ev := ParseEvent("ETH price drops 15% within the week")
	v := Judge{}.Evaluate(ev, "{}", nil)
	if v.Verdict {
		t.Error("missing percentage field must give false")
	}
	if v.Confidence > 0.5 {
		t.Errorf("confidence must be <= 0.5 without the field, got %v", v.Confidence)
	}
}

func TestJudge_WeatherMembership(t *testing.T) {
	ev := ParseEvent("Rain in Lisbon on settlement day")
	wet := &model.StructuredData{Kind: model.EventWeather, WeatherCondition: "thunderstorm", Source: "openweathermap"}
	dry := &model.StructuredData{Kind: model.EventWeather, WeatherCondition: "clear", Source: "openweathermap"}

	if v := (Judge{}).Evaluate(ev, "", wet); !v.Verdict {
		t.Error("thunderstorm is a wet condition")
	}
	if v := (Judge{}).Evaluate(ev, "", dry); v.Verdict {
		t.Error("clear is not a wet condition")
	}
}

func TestJudge_GenericKeywordTally(t *testing.T) {
	ev := ParsedEvent{Type: model.EventGeneric}

	// Overwhelming incident evidence.
	v := Judge{}.Evaluate(ev, "major outage confirmed, service down, incident ongoing, API unavailable", nil)
	if !v.Verdict {
		t.Errorf("expected incident verdict, reasoning: %s", v.Reasoning)
	}

	// One incident mention against repeated operational statements.
	v = Judge{}.Evaluate(ev, "major outage rumored. all systems operational. all systems operational.", nil)
	if v.Verdict {
		t.Errorf("counter-evidence must dominate, reasoning: %s", v.Reasoning)
	}

	// Nothing at all: no guessing.
	v = Judge{}.Evaluate(ev, "quarterly newsletter about roadmaps", nil)
	if v.Verdict {
		t.Error("empty tallies must give false")
	}
	if v.Confidence != 0 {
		t.Errorf("confidence must be 0 with no signal, got %v", v.Confidence)
	}
}
