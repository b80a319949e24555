// Package parser holds the document-type parsers. A parser is a field schema
// plus a post-processing pass; the extraction engine does the actual work, so
// adding a document type means writing a schema table, not an algorithm.
package parser

import (
	"fmt"
	"sort"

	"github.com/venedoc/ocr-backend/internal/ocr/domain"
	"github.com/venedoc/ocr-backend/internal/ocr/extract"
)

// Parser declares how one document type is parsed
type Parser interface {
	// DocumentType identifies the schema
	DocumentType() domain.DocumentType
	// Schema returns the field specs, in output order
	Schema() []domain.FieldSpec
	// PostProcess derives dependent fields (formatted cedula, ISO dates)
	// after extraction and refreshes the document rollups.
	PostProcess(doc *domain.ParsedDocument, opts extract.Options)
}

// Registry maps document types to parsers
type Registry struct {
	parsers map[domain.DocumentType]Parser
}

// NewRegistry creates a registry with the built-in document parsers
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[domain.DocumentType]Parser)}
	r.Register(NewCedulaParser())
	r.Register(NewVehicleParser())
	return r
}

// Register adds a parser, replacing any previous one for the same type
func (r *Registry) Register(p Parser) {
	r.parsers[p.DocumentType()] = p
}

// Get returns the parser for a document type
func (r *Registry) Get(docType domain.DocumentType) (Parser, error) {
	p, ok := r.parsers[docType]
	if !ok {
		return nil, fmt.Errorf("no parser registered for document type %q", docType)
	}
	return p, nil
}

// Types returns the registered document types, sorted for stable output
func (r *Registry) Types() []domain.DocumentType {
	types := make([]domain.DocumentType, 0, len(r.parsers))
	for t := range r.parsers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Parse runs extraction with the parser's schema and post-processing
func Parse(p Parser, fragments []domain.Fragment, opts extract.Options) *domain.ParsedDocument {
	doc := extract.Extract(p.DocumentType(), fragments, p.Schema(), opts)
	p.PostProcess(doc, opts)
	return doc
}

// fieldNames lists schema field names plus any derived names, preserving order
func fieldNames(schema []domain.FieldSpec, derived ...string) []string {
	names := make([]string, 0, len(schema)+len(derived))
	for _, s := range schema {
		names = append(names, s.Name)
	}
	return append(names, derived...)
}
