// Package imports is the batch import coordinator: validate every row, commit the whole
// batch atomically, then repair positions row by row on a best-effort basis.
package imports

import (
	"encoding/json"
	"strings"
)

// MaxRows bounds the size of one import batch
const MaxRows = 5000

// SystemField marks the synthetic error entry of a batch that failed for a non-validation reason
const SystemField = "system"

// Context identifies where every row of a batch is booked
type Context struct {
	OwnerID          string `json:"-"`
	PortfolioID      string `json:"portfolio_id"`
	TradingAccountID string `json:"trading_account_id"`
	AssetID          string `json:"asset_id"`
}

// Value is a raw scalar cell. JSON strings and numbers both decode into it, so a malformed
// cell becomes a row violation instead of failing the whole request.
type Value string

// UnmarshalJSON accepts strings, numbers and null
func (v *Value) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*v = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = Value(s)
		return nil
	}
	*v = Value(raw)
	return nil
}

// TagList is a raw tags cell. An array of strings decodes into Values; any other JSON
// is kept verbatim in Invalid so the row reports it instead of failing the request.
type TagList struct {
	Values  []string
	Invalid string
}

// UnmarshalJSON accepts an array of strings or null and records anything else
func (t *TagList) UnmarshalJSON(b []byte) error {
	*t = TagList{}
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		return nil
	}
	var values []string
	if err := json.Unmarshal(b, &values); err != nil {
		t.Invalid = raw
		return nil
	}
	t.Values = values
	return nil
}

// Row is one parsed input row. Row numbers in errors are 1-based.
type Row struct {
	Date     Value   `json:"date"`
	Type     Value   `json:"type"`
	Quantity Value   `json:"quantity"`
	Price    Value   `json:"price"`
	Currency Value   `json:"currency,omitempty"`
	Fee      Value   `json:"fee,omitempty"`
	Tags     TagList `json:"tags"`
	Notes    string  `json:"notes,omitempty"`
}

// RowError is one violation. Row 0 is reserved for batch-level errors.
type RowError struct {
	Row     int         `json:"row"`
	Field   string      `json:"field"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message"`
}

// Summary describes what a batch did
type Summary struct {
	BatchID          string `json:"batch_id,omitempty"`
	TotalRows        int    `json:"total_rows"`
	Imported         int    `json:"imported"`
	InvalidRows      int    `json:"invalid_rows"`
	PositionsUpdated int    `json:"positions_updated"`
	PositionFailures int    `json:"position_failures"`
	// Degraded is set when the ledger commit succeeded but some positions could not be updated
	Degraded bool `json:"degraded"`
}

// Result is the outcome of an import
type Result struct {
	Success bool       `json:"success"`
	Count   int        `json:"count,omitempty"`
	Errors  []RowError `json:"errors,omitempty"`
	Summary Summary    `json:"summary"`
}

// IsSystemFailure reports whether the batch failed for a non-validation reason
func (r *Result) IsSystemFailure() bool {
	return !r.Success && len(r.Errors) == 1 && r.Errors[0].Row == 0 && r.Errors[0].Field == SystemField
}
