package imports

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/holdings/internal/domain"
)

const dateLayout = "2006-01-02"

// validRow is a row that passed every check, in typed form
type validRow struct {
	Row      int
	Date     time.Time
	Type     domain.TransactionType
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Fee      decimal.Decimal
	Currency string
	Tags     []string
	Notes    string
}

// Validator checks import rows without stopping at the first violation
type Validator struct {
	currencies map[string]bool
	now        func() time.Time
}

// NewValidator creates a validator accepting the given currencies
func NewValidator(supportedCurrencies []string) *Validator {
	return &Validator{
		currencies: domain.CurrencySet(supportedCurrencies),
		now:        time.Now,
	}
}

// Validate checks every field of every row and returns either all rows in typed form
// or the complete list of violations. A row without a currency takes defaultCurrency.
func (v *Validator) Validate(rows []Row, defaultCurrency string) ([]validRow, []RowError) {
	if len(rows) == 0 {
		return nil, []RowError{{Row: 0, Field: "rows", Message: "no rows to import"}}
	}
	if len(rows) > MaxRows {
		return nil, []RowError{{Row: 0, Field: "rows", Value: len(rows),
			Message: fmt.Sprintf("at most %d rows per import", MaxRows)}}
	}

	now := v.now().UTC()
	valid := make([]validRow, 0, len(rows))
	var errs []RowError

	for i, row := range rows {
		n := i + 1
		vr := validRow{Row: n, Notes: strings.TrimSpace(row.Notes)}
		rowErrs := len(errs)

		fail := func(field string, value interface{}, message string) {
			errs = append(errs, RowError{Row: n, Field: field, Value: value, Message: message})
		}

		if date, msg := parseDate(string(row.Date), now); msg != "" {
			fail("date", string(row.Date), msg)
		} else {
			vr.Date = date
		}

		if typ, err := domain.ParseTransactionType(string(row.Type)); err != nil {
			fail("type", string(row.Type), "must be one of the supported transaction types")
		} else {
			vr.Type = typ
		}

		if d, msg := parseAmount(row.Quantity, true, true); msg != "" {
			fail("quantity", string(row.Quantity), msg)
		} else {
			vr.Quantity = d
		}

		if d, msg := parseAmount(row.Price, true, false); msg != "" {
			fail("price", string(row.Price), msg)
		} else {
			vr.Price = d
		}

		currency := strings.TrimSpace(string(row.Currency))
		if currency == "" {
			currency = defaultCurrency
		}
		if code, err := domain.NormalizeCurrency(currency, v.currencies); err != nil {
			fail("currency", string(row.Currency), err.(*domain.ValidationError).Message)
		} else {
			vr.Currency = code
		}

		if d, msg := parseAmount(row.Fee, false, false); msg != "" {
			fail("fee", string(row.Fee), msg)
		} else {
			vr.Fee = d
		}

		if row.Tags.Invalid != "" {
			fail("tags", row.Tags.Invalid, "must be an array of strings")
		} else if tags, err := domain.NormalizeTags(row.Tags.Values); err != nil {
			fail("tags", row.Tags.Values, "tags must be non-empty strings")
		} else {
			vr.Tags = tags
		}

		// Sell-class totals are net of the fee and must stay a non-negative amount
		if len(errs) == rowErrs && !vr.Type.IsBuyClass() && vr.Fee.GreaterThan(vr.Quantity.Mul(vr.Price)) {
			fail("fee", string(row.Fee), "must not exceed quantity times price on a sell-class row")
		}

		if len(errs) == rowErrs {
			valid = append(valid, vr)
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return valid, nil
}

// parseDate accepts YYYY-MM-DD or RFC3339 and rejects dates after now
func parseDate(raw string, now time.Time) (time.Time, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, "is required"
	}

	if t, err := time.Parse(dateLayout, raw); err == nil {
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if t.After(today) {
			return time.Time{}, "must not be in the future"
		}
		return t, ""
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, "must be a date (YYYY-MM-DD) or RFC3339 timestamp"
	}
	t = t.UTC().Truncate(time.Second)
	if t.After(now) {
		return time.Time{}, "must not be in the future"
	}
	return t, ""
}

// parseAmount parses a decimal cell. Optional empty cells yield zero.
func parseAmount(raw Value, required, positive bool) (decimal.Decimal, string) {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		if required {
			return decimal.Zero, "is required"
		}
		return decimal.Zero, ""
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, "must be a number"
	}
	if positive && !d.IsPositive() {
		return decimal.Zero, "must be greater than 0"
	}
	if d.IsNegative() {
		return decimal.Zero, "must not be negative"
	}
	if !domain.HasValidScale(d) {
		return decimal.Zero, fmt.Sprintf("must have at most %d decimal places", domain.MaxFractionDigits)
	}
	return d, ""
}
