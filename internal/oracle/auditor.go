package oracle

import (
	"fmt"
	"regexp"
	"strings"

	"poolwarden/internal/model"
)

// criticalPatterns is the auditor's own matcher set. Deliberately not shared
// with the judge's lexicons: the two components must fail independently.
var criticalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)major\s+outage`),
	regexp.MustCompile(`(?i)\boutage\b`),
	regexp.MustCompile(`(?i)service\s+(?:is\s+)?down`),
	regexp.MustCompile(`(?i)429\s+too\s+many\s+requests`),
	regexp.MustCompile(`(?i)gas\s+spike`),
	regexp.MustCompile(`(?i)price\s+(?:drop|crash)`),
	regexp.MustCompile(`(?i)\bexploit(?:ed)?\b`),
	regexp.MustCompile(`(?i)\bhack(?:ed)?\b`),
	regexp.MustCompile(`(?i)severe\s+degradation`),
	regexp.MustCompile(`(?i)downtime\s+(?:of\s+)?\d+`),
	regexp.MustCompile(`(?i)funds\s+(?:at\s+risk|drained|lost)`),
	regexp.MustCompile(`(?i)emergency\s+(?:maintenance|shutdown)`),
}

// auditorMinMatches is how many distinct critical patterns must fire before
// the auditor corroborates an incident.
const auditorMinMatches = 2

// Auditor is the independent secondary verdict producer. Same inputs as the
// judge, distinct algorithm, no confidence score.
type Auditor struct{}

// Evaluate returns the secondary verdict for one pool resolution.
func (Auditor) Evaluate(ev ParsedEvent, sanitized string, structured *model.StructuredData) model.AuditorVerdict {
	switch ev.Type {
	case model.EventGas:
		return auditGas(ev, structured)
	case model.EventPrice:
		return auditPrice(ev, structured)
	case model.EventWeather:
		return auditWeather(structured)
	}
	return auditGeneric(sanitized)
}

func auditGas(ev ParsedEvent, structured *model.StructuredData) model.AuditorVerdict {
	if structured == nil || structured.GasGwei == nil {
		return model.AuditorVerdict{Verdict: false, Reasoning: "audit: no gas reading"}
	}
	// Re-derive the comparison from scratch rather than trusting the judge.
	exceeded := *structured.GasGwei-ev.GasThresholdGwei > 0
	return model.AuditorVerdict{
		Verdict:   exceeded,
		Reasoning: fmt.Sprintf("audit: gas %.2f gwei, threshold %.2f gwei, exceeded=%v", *structured.GasGwei, ev.GasThresholdGwei, exceeded),
	}
}

func auditPrice(ev ParsedEvent, structured *model.StructuredData) model.AuditorVerdict {
	if structured == nil || structured.PriceChange7dPct == nil {
		return model.AuditorVerdict{Verdict: false, Reasoning: "audit: no price reading"}
	}
	change := *structured.PriceChange7dPct
	var breached bool
	if ev.Below {
		breached = -change >= ev.ThresholdPct
	} else {
		breached = change >= ev.ThresholdPct
	}
	return model.AuditorVerdict{
		Verdict:   breached,
		Reasoning: fmt.Sprintf("audit: 7d change %.2f%%, threshold %.2f%%, breached=%v", change, ev.ThresholdPct, breached),
	}
}

var wetConditionPattern = regexp.MustCompile(`(?i)\b(rain|drizzle|thunderstorm|shower)\b`)

func auditWeather(structured *model.StructuredData) model.AuditorVerdict {
	if structured == nil || structured.WeatherCondition == "" {
		return model.AuditorVerdict{Verdict: false, Reasoning: "audit: no weather reading"}
	}
	wet := wetConditionPattern.MatchString(structured.WeatherCondition)
	return model.AuditorVerdict{
		Verdict:   wet,
		Reasoning: fmt.Sprintf("audit: condition %q, wet=%v", structured.WeatherCondition, wet),
	}
}

func auditGeneric(sanitized string) model.AuditorVerdict {
	var matched []string
	for _, p := range criticalPatterns {
		if p.MatchString(sanitized) {
			matched = append(matched, p.String())
		}
	}
	return model.AuditorVerdict{
		Verdict:   len(matched) >= auditorMinMatches,
		Reasoning: fmt.Sprintf("audit: %d critical patterns matched: %s", len(matched), strings.Join(matched, ", ")),
	}
}
