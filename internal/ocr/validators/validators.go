// Package validators holds pure format validators for Venezuelan documents.
// No I/O, no state: every function is deterministic on its input.
package validators

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// CedulaMin and CedulaMax bound valid Venezuelan cedula numbers
	CedulaMin = 1
	CedulaMax = 99_999_999

	// MinBirthYear is the floor for plausible birth dates
	MinBirthYear = 1900
)

// DocumentTypes are the valid cedula type prefixes
var DocumentTypes = []string{"V", "E", "J", "G", "P"}

var (
	nonDigits = regexp.MustCompile(`[^0-9]`)

	// Plate shapes: legacy (ABC123), current (AB123CD), motorcycle (AAA000A)
	plateLegacy  = regexp.MustCompile(`^[A-Z]{3}\d{3}$`)
	plateCurrent = regexp.MustCompile(`^[A-Z]{2}\d{3}[A-Z]{2}$`)
	plateMoto    = regexp.MustCompile(`^[A-Z]{3}\d{3}[A-Z]$`)

	// cedulaPattern matches a typed cedula like V-12.345.678 in OCR text
	cedulaPattern = regexp.MustCompile(`[VvEeJjGgPp][-.\s]?\d{1,2}[.\s]?\d{3}[.\s]?\d{3}`)
	digitRun      = regexp.MustCompile(`\d{6,8}`)

	plateCandidates = []*regexp.Regexp{
		regexp.MustCompile(`[A-Z]{2}\d{3}[A-Z]{2}`),
		regexp.MustCompile(`[A-Z]{3}\d{3}[A-Z]`),
		regexp.MustCompile(`[A-Z]{3}\d{3}`),
	}

	// non-padded layouts accept both "5/3/1990" and "05/03/1990"
	dateLayouts = []string{
		"2/1/2006",
		"2-1-2006",
		"2.1.2006",
		"2006-01-02",
		"2006/01/02",
	}
)

// ValidateCedulaType reports whether tipo is one of V, E, J, G, P
func ValidateCedulaType(tipo string) bool {
	tipo = strings.ToUpper(strings.TrimSpace(tipo))
	for _, t := range DocumentTypes {
		if tipo == t {
			return true
		}
	}
	return false
}

// ValidateCedula validates a cedula type prefix and number. The number may
// contain separators; only digits are considered.
func ValidateCedula(tipo, numero string) error {
	if !ValidateCedulaType(tipo) {
		return fmt.Errorf("invalid cedula type %q", tipo)
	}
	digits := nonDigits.ReplaceAllString(numero, "")
	if digits == "" {
		return fmt.Errorf("cedula number %q contains no digits", numero)
	}
	if len(digits) > 8 {
		return fmt.Errorf("cedula number %q exceeds 8 digits", numero)
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return fmt.Errorf("cedula number %q is not numeric", numero)
	}
	if n < CedulaMin || n > CedulaMax {
		return fmt.Errorf("cedula number %d out of range [%d, %d]", n, CedulaMin, CedulaMax)
	}
	return nil
}

// FormatCedula renders the standard Venezuelan format <tipo>-XX.XXX.XXX,
// grouping digits in threes from the least-significant end. Input with no
// digits is returned with just the type prefix attached.
func FormatCedula(tipo, numero string) string {
	tipo = strings.ToUpper(strings.TrimSpace(tipo))
	digits := nonDigits.ReplaceAllString(numero, "")
	if digits == "" || len(digits) > 8 {
		return fmt.Sprintf("%s-%s", tipo, numero)
	}
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		digits = "0"
	}

	var groups []string
	for len(digits) > 3 {
		groups = append([]string{digits[len(digits)-3:]}, groups...)
		digits = digits[:len(digits)-3]
	}
	groups = append([]string{digits}, groups...)

	return fmt.Sprintf("%s-%s", tipo, strings.Join(groups, "."))
}

// ValidatePlaca validates a Venezuelan license plate. Spaces and dashes are
// tolerated; matching is case-insensitive.
func ValidatePlaca(placa string) error {
	cleaned := normalizePlate(placa)
	if cleaned == "" {
		return fmt.Errorf("empty plate")
	}
	if plateLegacy.MatchString(cleaned) || plateCurrent.MatchString(cleaned) || plateMoto.MatchString(cleaned) {
		return nil
	}
	return fmt.Errorf("plate %q does not match any Venezuelan format", placa)
}

func normalizePlate(placa string) string {
	placa = strings.ToUpper(strings.TrimSpace(placa))
	placa = strings.ReplaceAll(placa, " ", "")
	return strings.ReplaceAll(placa, "-", "")
}

// NormalizeFecha parses a date string against the accepted day-first and ISO
// layouts and returns the ISO-8601 (YYYY-MM-DD) form. Calendar-invalid dates
// are rejected; no plausibility range is applied, so expiry dates in the
// future normalize fine.
func NormalizeFecha(fecha string) (string, error) {
	fecha = strings.TrimSpace(fecha)
	if fecha == "" {
		return "", fmt.Errorf("empty date")
	}

	for _, layout := range dateLayouts {
		dt, err := time.Parse(layout, fecha)
		if err != nil {
			continue
		}
		return dt.Format("2006-01-02"), nil
	}

	return "", fmt.Errorf("date %q does not match any accepted format", fecha)
}

// ValidateFecha validates a birth date and returns the normalized ISO form.
// On top of NormalizeFecha, dates after now and years before 1900 are
// rejected.
func ValidateFecha(fecha string) (string, error) {
	iso, err := NormalizeFecha(fecha)
	if err != nil {
		return "", err
	}

	dt, _ := time.Parse("2006-01-02", iso)
	if dt.After(time.Now()) {
		return "", fmt.Errorf("date %q is in the future", fecha)
	}
	if dt.Year() < MinBirthYear {
		return "", fmt.Errorf("date %q is before %d", fecha, MinBirthYear)
	}
	return iso, nil
}

// ExtractCedula pulls a cedula type and number out of free OCR text. It first
// looks for the typed pattern (V-12.345.678 and variants); failing that, a
// bare 6-8 digit run is accepted and reported as a fallback (lower certainty,
// type unknown).
func ExtractCedula(text string) (tipo, numero string, fallback, ok bool) {
	if m := cedulaPattern.FindString(text); m != "" {
		tipo = strings.ToUpper(m[:1])
		numero = nonDigits.ReplaceAllString(m, "")
		return tipo, numero, false, true
	}
	if m := digitRun.FindString(nonDigits.ReplaceAllString(text, "")); m != "" {
		return "", m, true, true
	}
	return "", "", false, false
}

// ExtractPlaca pulls a license plate out of free OCR text, trying the longer
// shapes first so AB123CD is not truncated to a legacy match.
func ExtractPlaca(text string) (string, bool) {
	cleaned := normalizePlate(text)
	for _, re := range plateCandidates {
		if m := re.FindString(cleaned); m != "" && ValidatePlaca(m) == nil {
			return m, true
		}
	}
	return "", false
}
