package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAmount_DollarSign(t *testing.T) {
	amt, cur, ok := NormalizeAmount("Sold assets for $500 million")
	assert.True(t, ok)
	assert.Equal(t, "USD", cur)
	assert.Equal(t, 500_000_000.0, amt)
}

func TestNormalizeAmount_EuroSymbolWithThousandsSuffix(t *testing.T) {
	amt, cur, ok := NormalizeAmount("Budget of €12k approved")
	assert.True(t, ok)
	assert.Equal(t, "EUR", cur)
	assert.Equal(t, 12_000.0, amt)
}

func TestNormalizeAmount_EuropeanDecimalComma(t *testing.T) {
	amt, _, ok := NormalizeAmount("Total 1234,56 recorded")
	assert.True(t, ok)
	assert.InDelta(t, 1234.56, amt, 0.0001)
}

func TestNormalizeAmount_ISOCode(t *testing.T) {
	amt, cur, ok := NormalizeAmount("JPY 900000 allocated")
	assert.True(t, ok)
	assert.Equal(t, "JPY", cur)
	assert.Equal(t, 900000.0, amt)
}

func TestNormalizeAmount_NoAmount(t *testing.T) {
	_, _, ok := NormalizeAmount("no numbers here")
	assert.False(t, ok)
}

func TestSameDayAmountVariant_EquivalentMagnitudes(t *testing.T) {
	assert.True(t, SameDayAmountVariant("$1 million", "1000000"))
}

func TestSameDayAmountVariant_DifferentAmounts(t *testing.T) {
	assert.False(t, SameDayAmountVariant("$1 million", "$2 million"))
}
