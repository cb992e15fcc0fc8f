package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MaxFractionDigits is the finest precision stored for quantities, prices and fees
const MaxFractionDigits = 8

// HasValidScale reports whether d has at most MaxFractionDigits fractional digits
func HasValidScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MaxFractionDigits))
}

// NormalizeCurrency upper-cases a currency code and checks it is three letters.
// A non-empty allowed set further restricts the accepted codes.
func NormalizeCurrency(raw string, allowed map[string]bool) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != 3 {
		return "", NewValidationError("currency", raw, "must be a 3-letter ISO 4217 code")
	}
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return "", NewValidationError("currency", raw, "must be a 3-letter ISO 4217 code")
		}
	}
	if len(allowed) > 0 && !allowed[code] {
		return "", NewValidationError("currency", raw, "is not supported")
	}
	return code, nil
}

// CurrencySet builds the allowlist used by NormalizeCurrency
func CurrencySet(codes []string) map[string]bool {
	set := make(map[string]bool, len(codes))
	for _, c := range codes {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			set[c] = true
		}
	}
	return set
}

// NormalizeTags trims tags and drops duplicates. Blank tags are rejected.
func NormalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return nil, NewValidationError("tags", tags, "tags must be non-empty strings")
		}
		if seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out, nil
}
