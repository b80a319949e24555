package extract

// ocrConfusions maps characters that recognition engines routinely swap on
// embossed or worn print. The relation is symmetric; both directions are
// listed so lookup stays a flat table.
var ocrConfusions = map[rune][]rune{
	'0': {'O', 'D', 'Q'},
	'O': {'0', 'D', 'Q'},
	'D': {'0', 'O'},
	'Q': {'0', 'O'},
	'1': {'I', 'L'},
	'I': {'1', 'L'},
	'L': {'1', 'I'},
	'5': {'S'},
	'S': {'5'},
	'8': {'B'},
	'B': {'8'},
	'2': {'Z'},
	'Z': {'2'},
	'6': {'G'},
	'G': {'6'},
}

// MatchVocabulary corrects a candidate against a closed vocabulary.
// An exact normalized match returns (entry, true). Failing that, entries are
// compared character by character tolerating the usual OCR confusions; a
// unique tolerant match returns (entry, false) so the caller can penalize the
// field's confidence. No match at all returns ("", false).
func MatchVocabulary(candidate string, vocab []string) (string, bool) {
	normCandidate := NormalizeText(candidate)
	if normCandidate == "" {
		return "", false
	}

	for _, entry := range vocab {
		if NormalizeText(entry) == normCandidate {
			return entry, true
		}
	}

	match := ""
	for _, entry := range vocab {
		if confusableEqual(normCandidate, NormalizeText(entry)) {
			if match != "" {
				// ambiguous between two entries
				return "", false
			}
			match = entry
		}
	}
	return match, false
}

// confusableEqual compares two equal-length strings treating OCR-confusable
// characters as identical.
func confusableEqual(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	if len(ra) != len(rb) {
		return false
	}
	for i := range ra {
		if ra[i] == rb[i] {
			continue
		}
		if !confusable(ra[i], rb[i]) {
			return false
		}
	}
	return true
}

func confusable(a, b rune) bool {
	for _, c := range ocrConfusions[a] {
		if c == b {
			return true
		}
	}
	return false
}
