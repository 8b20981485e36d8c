package oracle

import (
	"fmt"
	"math"
	"strings"

	"poolwarden/internal/model"
)

// incidentLexicon and noIncidentLexicon are the two disjoint weighted keyword
// sets of the generic fallback. Weights reflect how unambiguous a phrase is.
var incidentLexicon = map[string]int{
	"major outage": 3,
	"outage":       2,
	"downtime":     2,
	"degraded":     1,
	"incident":     2,
	"disruption":   2,
	"unavailable":  2,
	"service down": 2,
	"exploit":      3,
	"hacked":       3,
	"breach":       2,
	"rate limited": 2,
	"gas spike":    3,
	"halted":       2,
	"crashed":      2,
	"emergency":    1,
	"postmortem":   1,
}

var noIncidentLexicon = map[string]int{
	"all systems operational": 3,
	"operational":             2,
	"no issues":               2,
	"no incidents":            2,
	"healthy":                 1,
	"stable":                  1,
	"normal":                  1,
	"uptime":                  1,
	"fully recovered":         1,
}

// Generic fallback thresholds: the incident side must clear an absolute floor
// and outweigh the counter-evidence three to one.
const (
	incidentFloor     = 3
	incidentDominance = 3
)

// Judge is the primary verdict producer. Deterministic comparison when
// structured data exists; weighted keyword tally otherwise. It never guesses:
// ambiguous evidence is a false verdict.
type Judge struct{}

// Evaluate returns the primary verdict for one pool resolution.
func (Judge) Evaluate(ev ParsedEvent, sanitized string, structured *model.StructuredData) model.JudgeVerdict {
	switch ev.Type {
	case model.EventGas:
		return judgeGas(ev, structured)
	case model.EventPrice:
		return judgePrice(ev, structured)
	case model.EventWeather:
		return judgeWeather(structured)
	}
	return judgeGeneric(sanitized)
}

func judgeGas(ev ParsedEvent, structured *model.StructuredData) model.JudgeVerdict {
	if structured == nil || structured.GasGwei == nil {
		return model.JudgeVerdict{
			Verdict:    false,
			Confidence: 0.2,
			Reasoning:  "no structured gas data available; refusing to guess",
		}
	}
	observed := *structured.GasGwei
	return model.JudgeVerdict{
		Verdict:    observed > ev.GasThresholdGwei,
		Confidence: 1.0,
		Reasoning:  fmt.Sprintf("observed gas %.2f gwei vs threshold %.2f gwei (%s)", observed, ev.GasThresholdGwei, structured.Source),
	}
}

func judgePrice(ev ParsedEvent, structured *model.StructuredData) model.JudgeVerdict {
	if structured == nil || structured.PriceChange7dPct == nil {
		return model.JudgeVerdict{
			Verdict:    false,
			Confidence: 0.4,
			Reasoning:  "price_change_percentage_7d absent from evidence; refusing to guess",
		}
	}
	change := *structured.PriceChange7dPct
	var verdict bool
	if ev.Below {
		verdict = change <= -ev.ThresholdPct
	} else {
		verdict = change >= ev.ThresholdPct
	}
	return model.JudgeVerdict{
		Verdict:    verdict,
		Confidence: 1.0,
		Reasoning:  fmt.Sprintf("7d change %.2f%% vs threshold %.2f%% (below=%v)", change, ev.ThresholdPct, ev.Below),
	}
}

// wetConditions is the membership set for weather claims.
var wetConditions = map[string]bool{
	"rain":         true,
	"drizzle":      true,
	"thunderstorm": true,
	"shower":       true,
}

func judgeWeather(structured *model.StructuredData) model.JudgeVerdict {
	if structured == nil || structured.WeatherCondition == "" {
		return model.JudgeVerdict{
			Verdict:    false,
			Confidence: 0.3,
			Reasoning:  "no structured weather condition available",
		}
	}
	cond := structured.WeatherCondition
	return model.JudgeVerdict{
		Verdict:    wetConditions[cond],
		Confidence: 1.0,
		Reasoning:  fmt.Sprintf("observed condition %q (%s)", cond, structured.Source),
	}
}

func judgeGeneric(sanitized string) model.JudgeVerdict {
	lower := strings.ToLower(sanitized)

	incident := 0
	for phrase, weight := range incidentLexicon {
		incident += strings.Count(lower, phrase) * weight
	}
	noIncident := 0
	for phrase, weight := range noIncidentLexicon {
		noIncident += strings.Count(lower, phrase) * weight
	}

	verdict := incident >= incidentFloor && incident > incidentDominance*noIncident

	var confidence float64
	if total := incident + noIncident; total > 0 {
		confidence = math.Abs(float64(incident-noIncident)) / float64(total)
	}

	return model.JudgeVerdict{
		Verdict:    verdict,
		Confidence: confidence,
		Reasoning:  fmt.Sprintf("incident score %d vs no-incident score %d", incident, noIncident),
	}
}
