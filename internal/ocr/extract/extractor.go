package extract

import (
	"strings"

	"github.com/venedoc/ocr-backend/internal/ocr/domain"
	"github.com/venedoc/ocr-backend/pkg/config"
)

// Options tunes the extraction heuristics. Penalties multiply a field's
// confidence when a lower-certainty path produced its value.
type Options struct {
	// MinConfidence is the floor under which a field lands in the
	// low-confidence list.
	MinConfidence float64
	// FallbackPenalty applies when the value came from a bare pattern scan
	// instead of a keyword anchor.
	FallbackPenalty float64
	// ValidatorPenalty applies when a validator rejected the value or a
	// vocabulary lookup needed correction (or found nothing).
	ValidatorPenalty float64
	// SameLineTolerance is the vertical band, as a fraction of the keyword
	// fragment's height, within which another fragment counts as same-line.
	SameLineTolerance float64
}

// OptionsFromConfig builds extraction options from process configuration
func OptionsFromConfig(cfg *config.ExtractionConfig) Options {
	return Options{
		MinConfidence:     cfg.MinConfidence,
		FallbackPenalty:   cfg.FallbackPenalty,
		ValidatorPenalty:  cfg.ValidatorPenalty,
		SameLineTolerance: cfg.SameLineTolerance,
	}
}

// Extract runs every field spec of the schema against the fragment sequence
// and assembles a parsed document. Extraction never fails: fields that cannot
// be located are null with zero confidence, and an empty fragment sequence
// yields a document with every field null and overall confidence 0.
func Extract(docType domain.DocumentType, fragments []domain.Fragment, schema []domain.FieldSpec, opts Options) *domain.ParsedDocument {
	doc := &domain.ParsedDocument{
		DocumentType:        docType,
		Fields:              make(map[string]domain.ParsedField, len(schema)),
		LowConfidenceFields: []string{},
		RawText:             make([]string, 0, len(fragments)),
	}
	for _, f := range fragments {
		doc.RawText = append(doc.RawText, f.Text)
	}

	var confSum float64
	var matched int
	for _, spec := range schema {
		field := extractField(spec, fragments, opts)
		doc.Fields[spec.Name] = field

		if field.Matched {
			confSum += field.Confidence
			matched++
		}
		if field.Confidence < opts.MinConfidence {
			doc.LowConfidenceFields = append(doc.LowConfidenceFields, spec.Name)
		}
	}

	if matched > 0 {
		doc.OverallConfidence = confSum / float64(matched)
	}
	return doc
}

// Finalize recomputes the document rollups after post-processing has added
// or rewritten fields: overall confidence is the mean over matched fields,
// and the low-confidence list covers every field under the floor.
func Finalize(doc *domain.ParsedDocument, names []string, opts Options) {
	var confSum float64
	var matched int
	doc.LowConfidenceFields = []string{}

	for _, name := range names {
		f := doc.Fields[name]
		if f.Matched {
			confSum += f.Confidence
			matched++
		}
		if f.Confidence < opts.MinConfidence {
			doc.LowConfidenceFields = append(doc.LowConfidenceFields, name)
		}
	}

	doc.OverallConfidence = 0
	if matched > 0 {
		doc.OverallConfidence = confSum / float64(matched)
	}
}

// extractField locates one field: keyword anchor first, bare pattern scan as
// the penalized fallback.
func extractField(spec domain.FieldSpec, fragments []domain.Fragment, opts Options) domain.ParsedField {
	value, conf, sources, found := keywordValue(spec, fragments, opts)

	if found && spec.Pattern != nil {
		if m := spec.Pattern.FindString(value); m != "" {
			value = m
		} else {
			found = false
		}
	}

	if !found && spec.Pattern != nil {
		for _, frag := range fragments {
			if m := spec.Pattern.FindString(NormalizeText(frag.Text)); m != "" {
				value = m
				conf = frag.Confidence * opts.FallbackPenalty
				sources = []int{frag.Index}
				found = true
				break
			}
		}
	}

	if !found {
		return domain.ParsedField{}
	}

	if spec.Clean != nil {
		value = spec.Clean(value)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return domain.ParsedField{}
	}

	if len(spec.Vocabulary) > 0 {
		corrected, exact := MatchVocabulary(value, spec.Vocabulary)
		switch {
		case exact:
			value = corrected
		case corrected != "":
			value = corrected
			conf *= opts.ValidatorPenalty
		default:
			conf *= opts.ValidatorPenalty
		}
	}

	if spec.Validate != nil {
		if err := spec.Validate(value); err != nil {
			conf *= opts.ValidatorPenalty
		}
	}

	return domain.ParsedField{
		Value:           value,
		Matched:         true,
		Confidence:      conf,
		SourceFragments: sources,
	}
}

// keywordValue finds the field's keyword anchor and resolves the value via
// the field's positional heuristic. Confidence is the mean over contributing fragments:
// when the value lives in a separate fragment, an uncertain keyword read
// lowers the field too.
func keywordValue(spec domain.FieldSpec, fragments []domain.Fragment, opts Options) (string, float64, []int, bool) {
	if len(spec.Keywords) == 0 {
		return "", 0, nil, false
	}

	for i, frag := range fragments {
		normText := NormalizeText(frag.Text)
		for _, kw := range spec.Keywords {
			end := containsKeyword(normText, NormalizeText(kw), spec.Match == domain.MatchToken)
			if end < 0 {
				continue
			}

			switch spec.Heuristic {
			case domain.HeuristicNearestBelow:
				if j, ok := nearestBelow(fragments, i); ok {
					conf := (frag.Confidence + fragments[j].Confidence) / 2
					return NormalizeText(fragments[j].Text), conf, []int{frag.Index, fragments[j].Index}, true
				}
			default:
				// value on the keyword's own line, after the keyword
				if rest := trimSeparators(normText[end:]); rest != "" {
					return rest, frag.Confidence, []int{frag.Index}, true
				}
				if j, ok := nextOnSameLine(fragments, i, opts.SameLineTolerance); ok {
					conf := (frag.Confidence + fragments[j].Confidence) / 2
					return NormalizeText(fragments[j].Text), conf, []int{frag.Index, fragments[j].Index}, true
				}
			}
		}
	}
	return "", 0, nil, false
}

func trimSeparators(s string) string {
	return strings.TrimSpace(strings.TrimLeft(s, " :.-"))
}

// nextOnSameLine returns the first later fragment whose vertical midpoint
// falls within the tolerance band of the keyword fragment. Fragments without
// geometry always qualify, so engines that return plain ordered text resolve
// to the next fragment.
func nextOnSameLine(fragments []domain.Fragment, kwIdx int, tolerance float64) (int, bool) {
	kw := fragments[kwIdx].Quad
	for j := kwIdx + 1; j < len(fragments); j++ {
		if onSameLine(kw, fragments[j].Quad, tolerance) {
			return j, true
		}
	}
	return 0, false
}

func onSameLine(kw, other domain.Quad, tolerance float64) bool {
	if kw.IsZero() || other.IsZero() {
		return true
	}
	band := tolerance * kw.Height()
	if band < 1 {
		band = 1
	}
	diff := other.MidY() - kw.MidY()
	if diff < 0 {
		diff = -diff
	}
	return diff <= band
}

// nearestBelow picks the fragment under the keyword with the largest
// horizontal overlap, closest vertical gap breaking ties. Without geometry it
// falls back to the next fragment in engine order.
func nearestBelow(fragments []domain.Fragment, kwIdx int) (int, bool) {
	kw := fragments[kwIdx].Quad
	if kw.IsZero() {
		if kwIdx+1 < len(fragments) {
			return kwIdx + 1, true
		}
		return 0, false
	}

	best := -1
	bestOverlap := -1.0
	bestGap := 0.0
	for j, frag := range fragments {
		if j == kwIdx || frag.Quad.IsZero() {
			continue
		}
		if frag.Quad.Top() < kw.Bottom() {
			continue
		}
		overlap := kw.HorizontalOverlap(frag.Quad)
		gap := frag.Quad.Top() - kw.Bottom()
		if overlap > bestOverlap || (overlap == bestOverlap && gap < bestGap) {
			best = j
			bestOverlap = overlap
			bestGap = gap
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}
