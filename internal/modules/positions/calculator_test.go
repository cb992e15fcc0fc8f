package positions

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/holdings/internal/domain"
)

var day0 = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func effect(typ domain.TransactionType, qty, price string, daysAfter int) domain.Effect {
	return domain.Effect{
		Type:     typ,
		Quantity: dec(qty),
		Price:    dec(price),
		Date:     day0.AddDate(0, 0, daysAfter),
	}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got.String(), msgAndArgs)
}

func TestApplyEffect_NoPositionBuy(t *testing.T) {
	pos := ApplyEffect(nil, effect(domain.TypeBuy, "100", "10.00", 0))

	assertDecimal(t, "100", pos.Quantity)
	assertDecimal(t, "10", pos.AverageCost)
	assertDecimal(t, "1000", pos.TotalCost)
	require.NotNil(t, pos.FirstPurchaseDate)
	assert.Equal(t, day0, *pos.FirstPurchaseDate)
	assert.Equal(t, day0, pos.LastTransactionDate)
	assert.True(t, pos.IsActive)
}

func TestApplyEffect_NoPositionSell(t *testing.T) {
	pos := ApplyEffect(nil, effect(domain.TypeSell, "5", "10", 0))

	assertDecimal(t, "-5", pos.Quantity)
	assertDecimal(t, "0", pos.AverageCost)
	assertDecimal(t, "0", pos.TotalCost)
	assert.Nil(t, pos.FirstPurchaseDate)
	assert.Equal(t, day0, pos.LastTransactionDate)
	assert.False(t, pos.IsActive)
}

func TestApplyEffect_ScenarioA(t *testing.T) {
	pos := ApplyEffect(nil, effect(domain.TypeBuy, "100", "10.00", 0))
	assertDecimal(t, "100", pos.Quantity)
	assertDecimal(t, "10.00", pos.AverageCost)
	assertDecimal(t, "1000.00", pos.TotalCost)

	pos = ApplyEffect(&pos, effect(domain.TypeBuy, "50", "13.00", 1))
	assertDecimal(t, "150", pos.Quantity)
	assertDecimal(t, "11.00", pos.AverageCost)
	assertDecimal(t, "1650.00", pos.TotalCost)
	assert.True(t, pos.IsActive)

	sell := effect(domain.TypeSell, "150", "20.00", 2)
	pos = ApplyEffect(&pos, sell)
	assertDecimal(t, "0", pos.Quantity)
	assertDecimal(t, "11.00", pos.AverageCost)
	assertDecimal(t, "0", pos.TotalCost)
	assert.False(t, pos.IsActive)

	pos = ReverseEffect(pos, sell)
	assertDecimal(t, "150", pos.Quantity)
	assertDecimal(t, "11.00", pos.AverageCost)
	assertDecimal(t, "1650.00", pos.TotalCost)
	assert.True(t, pos.IsActive)
}

func TestApplyEffect_WeightedAverage(t *testing.T) {
	tests := []struct {
		name       string
		q1, p1     string
		q2, p2     string
		wantAvg    string
		wantActive bool
	}{
		{"integers", "100", "10", "50", "13", "11", true},
		{"fractional quantities", "0.5", "30000", "0.25", "36000", "32000", true},
		{"repeating decimal", "3", "1", "3", "2", "1.5", true},
		{"thirds", "1", "1", "2", "1.5", "1.3333333333333333", true},
		{"zero price buy", "10", "5", "10", "0", "2.5", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := ApplyEffect(nil, effect(domain.TypeBuy, tt.q1, tt.p1, 0))
			pos = ApplyEffect(&pos, effect(domain.TypeStockBuy, tt.q2, tt.p2, 1))

			// (q1·p1 + q2·p2)/(q1+q2)
			q1, p1, q2, p2 := dec(tt.q1), dec(tt.p1), dec(tt.q2), dec(tt.p2)
			expected := q1.Mul(p1).Add(q2.Mul(p2)).Div(q1.Add(q2))

			tol := dec("0.00000001")
			assert.True(t, pos.AverageCost.Sub(expected).Abs().LessThanOrEqual(tol),
				"average %s, expected %s", pos.AverageCost, expected)
			assert.True(t, pos.AverageCost.Sub(dec(tt.wantAvg)).Abs().LessThanOrEqual(tol))
			assert.True(t, pos.TotalCost.Equal(pos.Quantity.Mul(pos.AverageCost)))
			assert.Equal(t, tt.wantActive, pos.IsActive)
		})
	}
}

func TestApplyEffect_SellPreservesAverage(t *testing.T) {
	sellTypes := []domain.TransactionType{
		domain.TypeSell, domain.TypeStockSell, domain.TypeETFSell, domain.TypeFundSell,
		domain.TypeBondSell, domain.TypeCryptoSell, domain.TypeRedeem, domain.TypeWithdrawal,
		domain.TypeTransferOut,
	}
	quantities := []string{"1", "49.5", "100", "150", "1000"}

	for _, typ := range sellTypes {
		for _, q := range quantities {
			pos := ApplyEffect(nil, effect(domain.TypeBuy, "100", "7.25", 0))
			before := pos.AverageCost

			pos = ApplyEffect(&pos, effect(typ, q, "99", 1))
			assert.True(t, before.Equal(pos.AverageCost), "%s %s changed average", typ, q)
			assert.True(t, pos.TotalCost.Equal(pos.Quantity.Mul(before)))
		}
	}
}

func TestApplyEffect_DeactivationThreshold(t *testing.T) {
	tests := []struct {
		sell       string
		wantQty    string
		wantActive bool
	}{
		{"99.99999999", "0.00000001", true},
		{"100", "0", false},
		{"120", "-20", false},
	}

	for _, tt := range tests {
		t.Run(tt.sell, func(t *testing.T) {
			pos := ApplyEffect(nil, effect(domain.TypeBuy, "100", "10", 0))
			pos = ApplyEffect(&pos, effect(domain.TypeSell, tt.sell, "10", 1))
			assertDecimal(t, tt.wantQty, pos.Quantity)
			assert.Equal(t, tt.wantActive, pos.IsActive)
		})
	}
}

func TestApplyEffect_Dates(t *testing.T) {
	pos := ApplyEffect(nil, effect(domain.TypeBuy, "1", "1", 5))
	first := *pos.FirstPurchaseDate

	// Later buy does not advance the first purchase date
	pos = ApplyEffect(&pos, effect(domain.TypeBuy, "1", "1", 10))
	assert.Equal(t, first, *pos.FirstPurchaseDate)
	assert.Equal(t, day0.AddDate(0, 0, 10), pos.LastTransactionDate)

	// Back-dated buy moves it earlier
	pos = ApplyEffect(&pos, effect(domain.TypeDeposit, "1", "1", 1))
	assert.Equal(t, day0.AddDate(0, 0, 1), *pos.FirstPurchaseDate)
	assert.Equal(t, day0.AddDate(0, 0, 1), pos.LastTransactionDate)

	// Sells only move the last transaction date
	pos = ApplyEffect(&pos, effect(domain.TypeSell, "1", "1", 20))
	assert.Equal(t, day0.AddDate(0, 0, 1), *pos.FirstPurchaseDate)
	assert.Equal(t, day0.AddDate(0, 0, 20), pos.LastTransactionDate)
}

func TestApplyEffect_DoesNotAliasInput(t *testing.T) {
	pos := ApplyEffect(nil, effect(domain.TypeBuy, "1", "1", 5))
	next := ApplyEffect(&pos, effect(domain.TypeBuy, "1", "1", 1))

	assert.Equal(t, day0.AddDate(0, 0, 5), *pos.FirstPurchaseDate)
	assert.Equal(t, day0.AddDate(0, 0, 1), *next.FirstPurchaseDate)
}

func TestReverseEffect_Reversibility(t *testing.T) {
	effects := []domain.Effect{
		effect(domain.TypeBuy, "100", "10", 0),
		effect(domain.TypeETFBuy, "25.5", "11.2", 1),
		effect(domain.TypeSell, "40", "12", 2),
		effect(domain.TypeSubscribe, "0.12345678", "9.87654321", 3),
		effect(domain.TypeTransferOut, "10", "0", 4),
		effect(domain.TypeTransferIn, "3", "0", 5),
	}

	// Quantity before each effect
	var history []decimal.Decimal
	var pos *domain.Position
	for _, e := range effects {
		if pos == nil {
			history = append(history, decimal.Zero)
		} else {
			history = append(history, pos.Quantity)
		}
		next := ApplyEffect(pos, e)
		pos = &next
	}
	final := *pos

	t.Run("reverse order restores every prior quantity", func(t *testing.T) {
		cur := final
		for i := len(effects) - 1; i >= 0; i-- {
			cur = ReverseEffect(cur, effects[i])
			assert.True(t, history[i].Equal(cur.Quantity), "step %d: want %s got %s", i, history[i], cur.Quantity)
			assert.True(t, cur.TotalCost.Equal(cur.Quantity.Mul(cur.AverageCost)))
		}
	})

	t.Run("original order removes each effect exactly", func(t *testing.T) {
		cur := final
		remaining := final.Quantity
		for _, e := range effects {
			cur = ReverseEffect(cur, e)
			if e.Type.IsBuyClass() {
				remaining = remaining.Sub(e.Quantity)
			} else {
				remaining = remaining.Add(e.Quantity)
			}
			assert.True(t, remaining.Equal(cur.Quantity))
		}
		assert.True(t, cur.Quantity.IsZero())
		assert.False(t, cur.IsActive)
	})

	t.Run("apply then reverse is identity on quantity", func(t *testing.T) {
		for i, e := range effects {
			applied := ApplyEffect(&final, e)
			back := ReverseEffect(applied, e)
			assert.True(t, final.Quantity.Equal(back.Quantity), "effect %d", i)
		}
	})
}

func TestReverseEffect_UsesCurrentAverage(t *testing.T) {
	first := effect(domain.TypeBuy, "100", "10", 0)
	pos := ApplyEffect(nil, first)
	pos = ApplyEffect(&pos, effect(domain.TypeBuy, "100", "20", 1))
	assertDecimal(t, "15", pos.AverageCost)

	// Removing the first buy keeps the blended average; only a replay recovers 20
	reversed := ReverseEffect(pos, first)
	assertDecimal(t, "100", reversed.Quantity)
	assertDecimal(t, "15", reversed.AverageCost)
	assertDecimal(t, "1500", reversed.TotalCost)
	assert.Equal(t, pos.LastTransactionDate, reversed.LastTransactionDate)
}

func TestReplay(t *testing.T) {
	t.Run("empty history", func(t *testing.T) {
		assert.Nil(t, Replay(nil))
	})

	t.Run("recovers exact average after out-of-order removal", func(t *testing.T) {
		pos := Replay([]domain.Effect{effect(domain.TypeBuy, "100", "20", 1)})
		require.NotNil(t, pos)
		assertDecimal(t, "20", pos.AverageCost)
		assertDecimal(t, "2000", pos.TotalCost)
	})

	t.Run("restarts after deactivation", func(t *testing.T) {
		pos := Replay([]domain.Effect{
			effect(domain.TypeBuy, "10", "5", 0),
			effect(domain.TypeSell, "10", "6", 1),
			effect(domain.TypeBuy, "4", "8", 2),
		})
		require.NotNil(t, pos)
		assertDecimal(t, "4", pos.Quantity)
		assertDecimal(t, "8", pos.AverageCost)
		assert.Equal(t, day0.AddDate(0, 0, 2), *pos.FirstPurchaseDate)
		assert.True(t, pos.IsActive)
	})
}
