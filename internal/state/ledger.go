package state

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"poolwarden/internal/model"
)

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeContent lowercases and collapses whitespace so trivially restyled
// duplicates hash identically.
func NormalizeContent(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(strings.ToLower(text), " "))
}

// HashContent returns the dedup hash of an outbound message.
func HashContent(text string) string {
	sum := sha256.Sum256([]byte(NormalizeContent(text)))
	return hex.EncodeToString(sum[:])
}

// SeenContent reports whether the message's hash is already in the ledger.
func SeenContent(st *model.AgentState, text string) bool {
	h := HashContent(text)
	for _, existing := range st.ContentHashes {
		if existing == h {
			return true
		}
	}
	return false
}

// RememberContent appends the message's hash to the bounded FIFO, evicting
// the oldest entries past capacity.
func RememberContent(st *model.AgentState, text string) {
	st.ContentHashes = append(st.ContentHashes, HashContent(text))
	if over := len(st.ContentHashes) - model.ContentLedgerCap; over > 0 {
		st.ContentHashes = st.ContentHashes[over:]
	}
}
