package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/venedoc/ocr-backend/internal/ocr/domain"
	"github.com/venedoc/ocr-backend/internal/ocr/extract"
	"github.com/venedoc/ocr-backend/internal/ocr/validators"
)

// Derived cedula field names, produced in post-processing
const (
	fieldTipoDocumento    = "tipo_documento"
	fieldCedulaFormateada = "cedula_formateada"
)

var (
	// typed cedula or a bare digit run, either works as a raw candidate
	cedulaValuePattern = regexp.MustCompile(`[VEJGP][-.\s]?\d{1,2}[.\s]?\d{3}[.\s]?\d{3}|\d{6,8}`)
	datePattern        = regexp.MustCompile(`\d{1,2}[/.-]\d{1,2}[/.-]\d{4}|\d{4}-\d{2}-\d{2}`)
	letterRun          = regexp.MustCompile(`[^A-ZÑ ]`)
)

var estadosCiviles = []string{
	"SOLTERO", "SOLTERA",
	"CASADO", "CASADA",
	"DIVORCIADO", "DIVORCIADA",
	"VIUDO", "VIUDA",
}

// CedulaParser parses the Venezuelan identity card
type CedulaParser struct {
	schema []domain.FieldSpec
}

// NewCedulaParser builds the cedula field schema
func NewCedulaParser() *CedulaParser {
	return &CedulaParser{
		schema: []domain.FieldSpec{
			{
				Name:     "numero_cedula",
				Keywords: []string{"CEDULA DE IDENTIDAD", "CEDULA", "N°", "NRO"},
				Pattern:  cedulaValuePattern,
				Validate: func(v string) error {
					if _, _, _, ok := validators.ExtractCedula(v); !ok {
						return fmt.Errorf("no cedula in %q", v)
					}
					return nil
				},
			},
			{
				Name:     "nombres",
				Keywords: []string{"NOMBRES", "NOMBRE"},
				Match:    domain.MatchToken,
				Clean:    cleanName,
			},
			{
				Name:     "apellidos",
				Keywords: []string{"APELLIDOS", "APELLIDO"},
				Match:    domain.MatchToken,
				Clean:    cleanName,
			},
			{
				Name:     "fecha_nacimiento",
				Keywords: []string{"FECHA DE NACIMIENTO", "F. NACIMIENTO", "NACIMIENTO"},
				Pattern:  datePattern,
				Validate: func(v string) error {
					_, err := validators.ValidateFecha(v)
					return err
				},
			},
			{
				Name:       "estado_civil",
				Keywords:   []string{"ESTADO CIVIL", "EDO. CIVIL", "EDO CIVIL"},
				Vocabulary: estadosCiviles,
			},
		},
	}
}

func (p *CedulaParser) DocumentType() domain.DocumentType {
	return domain.DocumentTypeCedula
}

func (p *CedulaParser) Schema() []domain.FieldSpec {
	return p.schema
}

// PostProcess splits the raw cedula candidate into its type and number,
// derives the canonical V-XX.XXX.XXX form, and normalizes the birth date to
// ISO-8601. Derived fields inherit the confidence of the field they come
// from; when the type prefix was unreadable they stay null rather than guess.
func (p *CedulaParser) PostProcess(doc *domain.ParsedDocument, opts extract.Options) {
	tipoField := domain.ParsedField{}
	formateadaField := domain.ParsedField{}

	if f := doc.Field("numero_cedula"); f.Matched {
		tipo, numero, fallback, ok := validators.ExtractCedula(f.Value)
		if ok {
			f.Value = numero
			conf := f.Confidence
			if fallback {
				conf *= opts.FallbackPenalty
				f.Confidence = conf
			}
			doc.Fields["numero_cedula"] = f

			if tipo != "" {
				tipoField = domain.ParsedField{
					Value:           tipo,
					Matched:         true,
					Confidence:      conf,
					SourceFragments: f.SourceFragments,
				}
				formateadaField = domain.ParsedField{
					Value:           validators.FormatCedula(tipo, numero),
					Matched:         true,
					Confidence:      conf,
					SourceFragments: f.SourceFragments,
				}
			}
		}
	}
	doc.Fields[fieldTipoDocumento] = tipoField
	doc.Fields[fieldCedulaFormateada] = formateadaField

	if f := doc.Field("fecha_nacimiento"); f.Matched {
		if iso, err := validators.ValidateFecha(f.Value); err == nil {
			f.Value = iso
			doc.Fields["fecha_nacimiento"] = f
		}
	}

	extract.Finalize(doc, fieldNames(p.schema, fieldTipoDocumento, fieldCedulaFormateada), opts)
}

// cleanName keeps letter runs only, dropping OCR punctuation and stray digits
func cleanName(v string) string {
	return strings.Join(strings.Fields(letterRun.ReplaceAllString(strings.ToUpper(v), " ")), " ")
}
