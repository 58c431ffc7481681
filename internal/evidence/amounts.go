package evidence

import (
	"regexp"
	"strconv"
	"strings"
)

// currencySymbols maps a leading symbol to its ISO 4217 code.
var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"¥": "JPY",
	"£": "GBP",
}

var isoCurrencyCodes = map[string]bool{
	"USD": true, "EUR": true, "JPY": true, "GBP": true,
	"CNY": true, "CHF": true, "CAD": true, "AUD": true,
}

// magnitudeSuffixes maps a trailing magnitude word/letter to its multiplier
// (§4.6: "k/m/b/thousand/million/billion").
var magnitudeSuffixes = []struct {
	suffix     string
	multiplier float64
}{
	{"thousand", 1_000},
	{"million", 1_000_000},
	{"billion", 1_000_000_000},
	{"k", 1_000},
	{"m", 1_000_000},
	{"b", 1_000_000_000},
}

// amountPattern captures an optional leading currency symbol or ISO code,
// a numeric literal (using either '.' or ',' as the decimal separator),
// and an optional trailing magnitude word.
var amountPattern = regexp.MustCompile(`(?i)([$€¥£]|[A-Z]{3}\s)?\s*([0-9]+(?:[.,][0-9]+)?)\s*(thousand|million|billion|k|m|b)?`)

// NormalizeAmount parses the first amount-looking substring of text and
// returns (normalizedAmount, normalizedCurrency, ok). Accepts $/€/¥/£, ISO
// currency codes, k/m/b/thousand/million/billion magnitude suffixes, and
// European decimal commas (§4.6).
func NormalizeAmount(text string) (amount float64, currency string, ok bool) {
	m := amountPattern.FindStringSubmatch(text)
	if m == nil || m[2] == "" {
		return 0, "", false
	}

	currencyTok := strings.TrimSpace(m[1])
	switch {
	case currencyTok == "":
		currency = ""
	case isoCurrencyCodes[strings.ToUpper(currencyTok)]:
		currency = strings.ToUpper(currencyTok)
	default:
		currency = currencySymbols[currencyTok]
	}

	numTok := m[2]
	numTok = normalizeDecimalSeparator(numTok)
	val, err := strconv.ParseFloat(numTok, 64)
	if err != nil {
		return 0, "", false
	}

	suffix := strings.ToLower(m[3])
	for _, ms := range magnitudeSuffixes {
		if ms.suffix == suffix {
			val *= ms.multiplier
			break
		}
	}
	return val, currency, true
}

// normalizeDecimalSeparator converts a European decimal-comma literal such
// as "1234,56" to Go-parseable "1234.56". A single comma followed by one or
// two digits is treated as the decimal point; every other comma (including
// any comma in a literal that also contains a '.') is dropped as a
// thousands separator, so "1.234,56" is not read as 1234.56.
func normalizeDecimalSeparator(tok string) string {
	if !strings.Contains(tok, ",") {
		return tok
	}
	if strings.Contains(tok, ".") {
		return strings.ReplaceAll(tok, ",", "")
	}
	parts := strings.Split(tok, ",")
	if len(parts) == 2 && len(parts[1]) <= 2 {
		return parts[0] + "." + parts[1]
	}
	return strings.ReplaceAll(tok, ",", "")
}

// SameDayAmountVariant reports whether a and b carry the same amount once
// currency symbols and magnitude suffixes are normalised. Only the parsed
// amounts are compared; the rest of the two texts is not.
func SameDayAmountVariant(a, b string) bool {
	av, _, aok := NormalizeAmount(a)
	bv, _, bok := NormalizeAmount(b)
	if !aok || !bok {
		return false
	}
	return av == bv
}
