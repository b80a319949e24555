// Package extract implements the schema-driven field extraction engine that
// turns raw OCR fragments into structured document fields. It never fails:
// whatever cannot be located comes back as a null field with zero confidence.
package extract

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// accentStripper removes combining marks after canonical decomposition, so
// NACIÓN and NACION compare equal.
var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeText prepares fragment text for keyword comparison: accents
// stripped, uppercased, interior whitespace collapsed to single spaces.
func NormalizeText(s string) string {
	stripped, _, err := transform.String(accentStripper, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(strings.ToUpper(stripped)), " ")
}

// containsKeyword reports whether normalized text matches the normalized
// keyword under the given match mode, and returns the byte offset just past
// the match for same-line value slicing (-1 when not found).
func containsKeyword(normText, normKeyword string, token bool) int {
	if normKeyword == "" {
		return -1
	}
	if !token {
		if i := strings.Index(normText, normKeyword); i >= 0 {
			return i + len(normKeyword)
		}
		return -1
	}

	// labels often carry attached punctuation (USO:, NRO.), which must not
	// defeat a whole-token match
	offset := 0
	for _, tok := range strings.Split(normText, " ") {
		if strings.Trim(tok, ":.-") == normKeyword {
			return offset + len(tok)
		}
		offset += len(tok) + 1
	}
	return -1
}
