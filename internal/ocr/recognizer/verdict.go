package recognizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var verdictStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// ParseVerdict interprets a vision model's yes/no answer about a document's
// authenticity check. Only an answer starting with SI (accent-insensitive,
// any case) counts as acceptance; NO, hedged prose, and anything ambiguous
// all reject, because a false accept is the expensive failure here.
func ParseVerdict(answer string) bool {
	stripped, _, err := transform.String(verdictStripper, answer)
	if err != nil {
		stripped = answer
	}
	normalized := strings.ToUpper(strings.TrimSpace(stripped))
	normalized = strings.Trim(normalized, `"'¡!()[]{}*`)

	if normalized == "SI" {
		return true
	}
	for _, sep := range []string{" ", ",", ".", ":", ";", "\n"} {
		if strings.HasPrefix(normalized, "SI"+sep) {
			return true
		}
	}
	return false
}
