package oracle

import "regexp"

// filtered is what every matched injection pattern collapses to. The token
// itself matches none of the patterns, which keeps sanitization idempotent.
const filtered = "[FILTERED]"

// injectionPatterns is the fixed family of prompt-injection shapes removed
// from evidence before any decision logic reads it.
var injectionPatterns = []*regexp.Regexp{
	// instruction override
	regexp.MustCompile(`(?i)ignore\s+(?:all\s+|any\s+)?(?:previous|above|all|prior)\s+(?:instructions?|rules?|prompts?)`),
	// role reassignment
	regexp.MustCompile(`(?i)you\s+are\s+now\b`),
	regexp.MustCompile(`(?i)new\s+instructions?\s*:`),
	regexp.MustCompile(`(?i)override\s+previous`),
	// conversational-channel hijacks
	regexp.MustCompile(`(?i)\b(?:system|assistant|human)\s*:`),
	regexp.MustCompile(`\[INST\]`),
	regexp.MustCompile(`<<SYS>>`),
	// persuasion / command verbs
	regexp.MustCompile(`(?i)forget\s+everything`),
	regexp.MustCompile(`(?i)pretend\s+(?:you\s+are|to\s+be)`),
	regexp.MustCompile(`(?i)\bact\s+as\b`),
	regexp.MustCompile(`(?i)\broleplay\b`),
	regexp.MustCompile(`(?i)\bjailbreak\b`),
	regexp.MustCompile(`(?i)bypass\s+security`),
	// outcome coercion
	regexp.MustCompile(`(?i)claim\s+is\s+(?:always\s+|definitely\s+)?true`),
	regexp.MustCompile(`(?i)approve\s+(?:this\s+|the\s+)?claim`),
	regexp.MustCompile(`(?i)the\s+(?:incident|event)\s+definitely\s+(?:happened|occurred)`),
	// bribery framing
	regexp.MustCompile(`(?i)trust\s+me\b`),
	regexp.MustCompile(`(?i)\bi\s+promise\b`),
	regexp.MustCompile(`(?i)reward\s+you`),
	regexp.MustCompile(`(?i)pay\s+you\s+extra`),
}

var (
	scriptBlocks = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	styleBlocks  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
)

// Sanitize filters prompt-injection patterns out of raw evidence and strips
// script/style blocks. Pure function, no I/O; its output is the only view of
// the evidence the judge and auditor ever see.
func Sanitize(evidence string) string {
	out := scriptBlocks.ReplaceAllString(evidence, "")
	out = styleBlocks.ReplaceAllString(out, "")
	for _, p := range injectionPatterns {
		out = p.ReplaceAllString(out, filtered)
	}
	return out
}
