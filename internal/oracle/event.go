package oracle

import (
	"regexp"
	"strconv"
	"strings"

	"poolwarden/internal/model"
)

// ParsedEvent is the typed reading of a pool description: what kind of
// parametric event it covers and the thresholds it names.
type ParsedEvent struct {
	Type model.EventType

	// Gas events
	GasThresholdGwei float64

	// Price events
	CoinID       string
	ThresholdPct float64
	Below        bool
}

var (
	gweiThreshold = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*gwei`)
	pctThreshold  = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	belowWords    = regexp.MustCompile(`(?i)\b(below|under|drop|drops|fall|falls|crash|crashes|down|decline|declines)\b`)
)

// coinAliases maps description tokens to price API coin ids.
var coinAliases = map[string]string{
	"btc":      "bitcoin",
	"bitcoin":  "bitcoin",
	"eth":      "ethereum",
	"ether":    "ethereum",
	"ethereum": "ethereum",
	"sol":      "solana",
	"solana":   "solana",
	"usdc":     "usd-coin",
	"degen":    "degen-base",
}

var weatherWords = regexp.MustCompile(`(?i)\b(rain|rains|rainfall|storm|thunderstorm|precipitation|weather|drizzle)\b`)

// ParseEvent derives the event type and thresholds from a pool description.
// Anything unrecognized is a generic free-text event.
func ParseEvent(description string) ParsedEvent {
	lower := strings.ToLower(description)

	if m := gweiThreshold.FindStringSubmatch(description); m != nil && strings.Contains(lower, "gas") {
		threshold, _ := strconv.ParseFloat(m[1], 64)
		return ParsedEvent{Type: model.EventGas, GasThresholdGwei: threshold}
	}

	if coin := findCoin(lower); coin != "" {
		if m := pctThreshold.FindStringSubmatch(description); m != nil {
			threshold, _ := strconv.ParseFloat(m[1], 64)
			return ParsedEvent{
				Type:         model.EventPrice,
				CoinID:       coin,
				ThresholdPct: threshold,
				Below:        belowWords.MatchString(description),
			}
		}
	}

	if weatherWords.MatchString(description) {
		return ParsedEvent{Type: model.EventWeather}
	}

	return ParsedEvent{Type: model.EventGeneric}
}

func findCoin(lower string) string {
	for _, tok := range strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '-')
	}) {
		if id, ok := coinAliases[tok]; ok {
			return id
		}
	}
	return ""
}
