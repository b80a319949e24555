package validators

import (
	"strings"
	"testing"
)

func TestValidateCedula(t *testing.T) {
	tests := []struct {
		name    string
		tipo    string
		numero  string
		wantErr bool
	}{
		{"simple V", "V", "12345678", false},
		{"lowercase type", "v", "12345678", false},
		{"with separators", "E", "12.345.678", false},
		{"minimum", "V", "1", false},
		{"maximum", "P", "99999999", false},
		{"all types G", "G", "5000000", false},
		{"all types J", "J", "305678", false},
		{"invalid type", "X", "12345678", true},
		{"empty number", "V", "", true},
		{"no digits", "V", "abc", true},
		{"nine digits", "V", "123456789", true},
		{"zero", "V", "0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCedula(tt.tipo, tt.numero)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCedula(%q, %q) error = %v, wantErr %v", tt.tipo, tt.numero, err, tt.wantErr)
			}
		})
	}
}

func TestFormatCedula(t *testing.T) {
	tests := []struct {
		tipo   string
		numero string
		want   string
	}{
		{"V", "12345678", "V-12.345.678"},
		{"V", "24757906", "V-24.757.906"},
		{"E", "1234567", "E-1.234.567"},
		{"V", "123456", "V-123.456"},
		{"V", "1234", "V-1.234"},
		{"V", "123", "V-123"},
		{"V", "1", "V-1"},
		{"v", "12.345.678", "V-12.345.678"},
		{"G", "00123456", "G-123.456"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatCedula(tt.tipo, tt.numero); got != tt.want {
				t.Errorf("FormatCedula(%q, %q) = %q, want %q", tt.tipo, tt.numero, got, tt.want)
			}
		})
	}
}

// Formatting then stripping separators must recover the original type and number.
func TestFormatCedula_RoundTrip(t *testing.T) {
	numbers := []string{"1", "42", "999", "7250", "305678", "1234567", "12345678", "99999999"}
	for _, tipo := range DocumentTypes {
		for _, numero := range numbers {
			if err := ValidateCedula(tipo, numero); err != nil {
				t.Fatalf("ValidateCedula(%s, %s) = %v, want nil", tipo, numero, err)
			}
			formatted := FormatCedula(tipo, numero)
			parts := strings.SplitN(formatted, "-", 2)
			if parts[0] != tipo {
				t.Errorf("round-trip type: got %q, want %q", parts[0], tipo)
			}
			recovered := strings.ReplaceAll(parts[1], ".", "")
			if recovered != numero {
				t.Errorf("round-trip number: got %q, want %q", recovered, numero)
			}
		}
	}
}

func TestValidatePlaca(t *testing.T) {
	valid := []string{
		"ABC123",    // legacy
		"AB123CD",   // current
		"AAA000A",   // motorcycle
		"abc123",    // case-insensitive
		"AB-123-CD", // dash tolerant
		"AB 123 CD", // space tolerant
	}
	for _, p := range valid {
		if err := ValidatePlaca(p); err != nil {
			t.Errorf("ValidatePlaca(%q) = %v, want nil", p, err)
		}
	}

	invalid := []string{
		"",
		"AB12CD",   // wrong arrangement
		"ABCD123",  // four letters
		"AB1234CD", // four digits
		"A123BC",   // one leading letter
		"ABC123AB", // too long
		"123ABC",   // digits first
	}
	for _, p := range invalid {
		if err := ValidatePlaca(p); err == nil {
			t.Errorf("ValidatePlaca(%q) = nil, want error", p)
		}
	}
}

func TestValidateFecha(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"15/03/1990", "1990-03-15", false},
		{"15-03-1990", "1990-03-15", false},
		{"15.03.1990", "1990-03-15", false},
		{"1990-03-15", "1990-03-15", false},
		{"5/3/1990", "1990-03-05", false}, // non-padded day and month
		{"31/02/2020", "", true},          // calendar-invalid
		{"01/01/2999", "", true},          // future
		{"01/01/1899", "", true},          // before floor
		{"not a date", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ValidateFecha(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateFecha(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ValidateFecha(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeFecha(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"15/03/1990", "1990-03-15", false},
		{"10/01/2030", "2030-01-10", false}, // future expiry dates are fine
		{"01/01/1850", "1850-01-01", false}, // no birth-year floor
		{"31/02/2020", "", true},
		{"not a date", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeFecha(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeFecha(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeFecha(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExtractCedula(t *testing.T) {
	tests := []struct {
		input        string
		wantTipo     string
		wantNumero   string
		wantFallback bool
		wantOK       bool
	}{
		{"V-12.345.678", "V", "12345678", false, true},
		{"v 12.345.678", "V", "12345678", false, true},
		{"E-1.234.567", "E", "1234567", false, true},
		{"CEDULA 7654321", "", "7654321", true, true},
		{"NOMBRES", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tipo, numero, fallback, ok := ExtractCedula(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if tipo != tt.wantTipo || numero != tt.wantNumero || fallback != tt.wantFallback {
				t.Errorf("ExtractCedula(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.input, tipo, numero, fallback, tt.wantTipo, tt.wantNumero, tt.wantFallback)
			}
		})
	}
}

func TestExtractPlaca(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{"PLACA: AB123CD", "AB123CD", true},
		{"abc123", "ABC123", true},
		{"AAA-000-A", "AAA000A", true},
		{"sin placa", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ExtractPlaca(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ExtractPlaca(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
