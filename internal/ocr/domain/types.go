package domain

import (
	"encoding/json"
	"regexp"
)

// DocumentType identifies the document schema used for extraction
type DocumentType string

const (
	DocumentTypeCedula  DocumentType = "cedula"
	DocumentTypeVehicle DocumentType = "vehicle"
)

// Point is a 2D coordinate in image pixel space
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Quad is a bounding quadrilateral, clockwise from top-left
type Quad [4]Point

// Top returns the smallest Y coordinate of the quad
func (q Quad) Top() float64 {
	top := q[0].Y
	for _, p := range q[1:] {
		if p.Y < top {
			top = p.Y
		}
	}
	return top
}

// Bottom returns the largest Y coordinate of the quad
func (q Quad) Bottom() float64 {
	bottom := q[0].Y
	for _, p := range q[1:] {
		if p.Y > bottom {
			bottom = p.Y
		}
	}
	return bottom
}

// Left returns the smallest X coordinate of the quad
func (q Quad) Left() float64 {
	left := q[0].X
	for _, p := range q[1:] {
		if p.X < left {
			left = p.X
		}
	}
	return left
}

// Right returns the largest X coordinate of the quad
func (q Quad) Right() float64 {
	right := q[0].X
	for _, p := range q[1:] {
		if p.X > right {
			right = p.X
		}
	}
	return right
}

// MidY returns the vertical midpoint of the quad
func (q Quad) MidY() float64 {
	return (q.Top() + q.Bottom()) / 2
}

// Height returns the vertical extent of the quad
func (q Quad) Height() float64 {
	return q.Bottom() - q.Top()
}

// HorizontalOverlap returns the horizontal overlap in pixels with another quad
func (q Quad) HorizontalOverlap(other Quad) float64 {
	left := q.Left()
	if other.Left() > left {
		left = other.Left()
	}
	right := q.Right()
	if other.Right() < right {
		right = other.Right()
	}
	if right <= left {
		return 0
	}
	return right - left
}

// IsZero reports whether the quad carries no geometry (engines that return
// text without layout produce zero-valued quads).
func (q Quad) IsZero() bool {
	for _, p := range q {
		if p.X != 0 || p.Y != 0 {
			return false
		}
	}
	return true
}

// Fragment is one line/word detected by the recognition engine.
// Index is the zero-based order as returned by the engine, which is NOT
// guaranteed to be reading order. Fragments are immutable once constructed.
type Fragment struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Quad       Quad    `json:"quad"`
	Index      int     `json:"index"`
}

// Heuristic selects how a field's value fragment is located relative to its
// keyword fragment.
type Heuristic int

const (
	// HeuristicSameLine takes the value from the keyword fragment itself
	// (text after the keyword) or the next fragment on the same text line.
	HeuristicSameLine Heuristic = iota
	// HeuristicNearestBelow takes the fragment below the keyword with the
	// largest horizontal overlap, closest vertical gap breaking ties.
	HeuristicNearestBelow
)

// MatchMode controls how keywords are matched against fragment text
type MatchMode int

const (
	// MatchSubstring matches the keyword anywhere in the normalized text
	MatchSubstring MatchMode = iota
	// MatchToken matches the keyword only as a whole whitespace-separated token
	MatchToken
)

// ValidatorFunc validates a candidate field value. A non-nil error marks the
// value as a format near-miss: the field keeps its value at reduced confidence.
type ValidatorFunc func(value string) error

// CleanFunc normalizes a raw candidate value before validation
type CleanFunc func(value string) string

// FieldSpec declares how one field of a document schema is located and
// validated. Specs are data: parsers differ only in their FieldSpec tables.
type FieldSpec struct {
	Name      string
	Keywords  []string
	Match     MatchMode
	Heuristic Heuristic

	// Pattern cuts the value out of a candidate fragment. When Keywords is
	// empty, or no keyword matched, all fragments are scanned for Pattern
	// directly (the latter at fallback-penalized confidence).
	Pattern *regexp.Regexp

	// Vocabulary is an optional dictionary of known values; candidates are
	// corrected against it tolerating common OCR substitutions.
	Vocabulary []string

	Clean    CleanFunc
	Validate ValidatorFunc
}

// ParsedField is the extraction result for one FieldSpec
type ParsedField struct {
	Value           string
	Matched         bool
	Confidence      float64
	SourceFragments []int
}

// MarshalJSON renders the value as null when the field is unmatched
func (f ParsedField) MarshalJSON() ([]byte, error) {
	type wire struct {
		Value           *string `json:"value"`
		Confidence      float64 `json:"confidence"`
		SourceFragments []int   `json:"source_fragments,omitempty"`
	}
	w := wire{Confidence: f.Confidence, SourceFragments: f.SourceFragments}
	if f.Matched {
		v := f.Value
		w.Value = &v
	}
	return json.Marshal(w)
}

// ParsedDocument is the schema-shaped result of extracting one document.
// It is constructed once per request from a frozen fragment sequence and is
// immutable thereafter; it is never persisted.
type ParsedDocument struct {
	DocumentType        DocumentType           `json:"document_type"`
	Fields              map[string]ParsedField `json:"fields"`
	OverallConfidence   float64                `json:"overall_confidence"`
	LowConfidenceFields []string               `json:"low_confidence_fields"`
	RawText             []string               `json:"raw_text"`
}

// Field returns the parsed field by name, with a zero field for unknown names
func (d *ParsedDocument) Field(name string) ParsedField {
	return d.Fields[name]
}

// ExtractionResult pairs a parsed document with processing metadata for the
// HTTP surface.
type ExtractionResult struct {
	Document             *ParsedDocument    `json:"data"`
	Engine               string             `json:"engine"`
	PreprocessingSteps   []string           `json:"preprocessing_applied"`
	PreprocessingTimings map[string]float64 `json:"preprocessing_timings,omitempty"`
	ProcessingTimeMs     int64              `json:"processing_time_ms"`
}
