package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/venedoc/ocr-backend/internal/ocr/domain"
	"github.com/venedoc/ocr-backend/internal/ocr/extract"
	"github.com/venedoc/ocr-backend/internal/ocr/validators"
)

var (
	yearPattern = regexp.MustCompile(`(19|20)\d{2}`)

	// VIN character set (no I, O, Q), which also keeps bare pattern scans
	// from latching onto ordinary Spanish words
	bodySerialPattern  = regexp.MustCompile(`[A-HJ-NPR-Z0-9]{10,17}`)
	motorSerialPattern = regexp.MustCompile(`[A-HJ-NPR-Z0-9]{6,17}`)
)

// Vehicle brands circulating in Venezuela, including the national assemblers
var vehicleBrands = []string{
	"TOYOTA", "CHEVROLET", "FORD", "CHRYSLER", "JEEP", "DODGE", "RAM",
	"HYUNDAI", "KIA", "MITSUBISHI", "NISSAN", "MAZDA", "HONDA",
	"RENAULT", "PEUGEOT", "FIAT", "VOLKSWAGEN",
	"CHERY", "JAC", "DONGFENG", "GREAT WALL",
	"BERA", "EMPIRE", "YAMAHA", "SUZUKI", "KAWASAKI", "SKYGO",
}

var vehicleColors = []string{
	"BLANCO", "NEGRO", "GRIS", "PLATA", "PLATEADO", "ROJO", "AZUL",
	"VERDE", "AMARILLO", "MARRON", "BEIGE", "NARANJA", "VINOTINTO",
	"DORADO", "MORADO",
}

var vehicleClasses = []string{
	"AUTOMOVIL", "CAMIONETA", "CAMION", "MOTOCICLETA", "AUTOBUS",
	"MINIBUS", "RUSTICO",
}

var vehicleUses = []string{
	"PARTICULAR", "TRANSPORTE PUBLICO", "CARGA", "OFICIAL",
}

// VehicleParser parses the Venezuelan vehicle registration certificate
type VehicleParser struct {
	schema []domain.FieldSpec
}

// NewVehicleParser builds the vehicle registration field schema
func NewVehicleParser() *VehicleParser {
	return &VehicleParser{
		schema: []domain.FieldSpec{
			{
				Name:     "placa",
				Keywords: []string{"PLACA", "PLACAS"},
				Clean: func(v string) string {
					if m, ok := validators.ExtractPlaca(v); ok {
						return m
					}
					return strings.TrimSpace(v)
				},
				Validate: validators.ValidatePlaca,
			},
			{
				Name:       "marca",
				Keywords:   []string{"MARCA"},
				Match:      domain.MatchToken,
				Vocabulary: vehicleBrands,
			},
			{
				Name:     "modelo",
				Keywords: []string{"MODELO"},
				Match:    domain.MatchToken,
			},
			{
				Name:     "año",
				Keywords: []string{"AÑO", "ANO"},
				Match:    domain.MatchToken,
				// registrations often print the year twice (2025/2025)
				Pattern: yearPattern,
			},
			{
				Name:     "serial_carroceria",
				Keywords: []string{"SERIAL DE CARROCERIA", "SERIAL CARROCERIA", "S/CARROCERIA", "CARROCERIA"},
				Pattern:  bodySerialPattern,
				Validate: validateSerial,
			},
			{
				Name:     "serial_motor",
				Keywords: []string{"SERIAL DEL MOTOR", "SERIAL MOTOR", "S/MOTOR", "MOTOR"},
				Pattern:  motorSerialPattern,
			},
			{
				Name:       "color",
				Keywords:   []string{"COLOR"},
				Match:      domain.MatchToken,
				Vocabulary: vehicleColors,
			},
			{
				Name:       "clase",
				Keywords:   []string{"CLASE"},
				Match:      domain.MatchToken,
				Vocabulary: vehicleClasses,
			},
			{
				Name:     "tipo",
				Keywords: []string{"TIPO"},
				Match:    domain.MatchToken,
			},
			{
				Name:       "uso",
				Keywords:   []string{"USO"},
				Match:      domain.MatchToken,
				Vocabulary: vehicleUses,
			},
		},
	}
}

func (p *VehicleParser) DocumentType() domain.DocumentType {
	return domain.DocumentTypeVehicle
}

func (p *VehicleParser) Schema() []domain.FieldSpec {
	return p.schema
}

// PostProcess canonicalizes the plate (separators removed, uppercase) and
// refreshes the rollups.
func (p *VehicleParser) PostProcess(doc *domain.ParsedDocument, opts extract.Options) {
	if f := doc.Field("placa"); f.Matched {
		if m, ok := validators.ExtractPlaca(f.Value); ok {
			f.Value = m
			doc.Fields["placa"] = f
		}
	}

	extract.Finalize(doc, fieldNames(p.schema), opts)
}

// validateSerial enforces the VIN-like body serial length
func validateSerial(v string) error {
	if len(v) < 10 || len(v) > 17 {
		return fmt.Errorf("body serial %q is not 10-17 characters", v)
	}
	return nil
}
