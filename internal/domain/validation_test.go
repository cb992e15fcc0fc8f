package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasValidScale(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"1", true},
		{"0.12345678", true},
		{"0.123456789", false},
		{"100.10000000", true},
		{"-3.5", true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, HasValidScale(decimal.RequireFromString(tt.value)))
		})
	}
}

func TestNormalizeCurrency(t *testing.T) {
	allowed := CurrencySet([]string{"usd", "EUR"})

	code, err := NormalizeCurrency(" usd ", allowed)
	require.NoError(t, err)
	assert.Equal(t, "USD", code)

	_, err = NormalizeCurrency("GBP", allowed)
	assert.True(t, IsValidation(err))

	_, err = NormalizeCurrency("US1", nil)
	assert.True(t, IsValidation(err))

	_, err = NormalizeCurrency("USDT", nil)
	assert.True(t, IsValidation(err))

	code, err = NormalizeCurrency("gbp", nil)
	require.NoError(t, err)
	assert.Equal(t, "GBP", code)
}

func TestNormalizeTags(t *testing.T) {
	tags, err := NormalizeTags([]string{" core ", "dca", "core"})
	require.NoError(t, err)
	assert.Equal(t, []string{"core", "dca"}, tags)

	tags, err = NormalizeTags(nil)
	require.NoError(t, err)
	assert.Empty(t, tags)
	assert.NotNil(t, tags)

	_, err = NormalizeTags([]string{"ok", "  "})
	assert.True(t, IsValidation(err))
}
