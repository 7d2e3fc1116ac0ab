package oracle

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/types"
)

func TestConvertPrice(t *testing.T) {
	tests := []struct {
		name     string
		raw      *big.Int
		decimals uint8
		unit     *big.Int
		expected string
	}{
		{
			name:     "fewer decimals than unit",
			raw:      big.NewInt(1111),
			decimals: 5,
			unit:     big.NewInt(100_000_000),
			expected: "1111000",
		},
		{
			name:     "same decimals as unit",
			raw:      big.NewInt(500_000_000),
			decimals: 8,
			unit:     big.NewInt(100_000_000),
			expected: "500000000",
		},
		{
			name:     "more decimals truncates",
			raw:      big.NewInt(123_456_789),
			decimals: 10,
			unit:     big.NewInt(100_000_000),
			expected: "1234567",
		},
		{
			name:     "truncates to zero",
			raw:      big.NewInt(1),
			decimals: 18,
			unit:     big.NewInt(100_000_000),
			expected: "0",
		},
		{
			name:     "18 decimals",
			raw:      mustBigInt("3150250000000000000000"),
			decimals: 18,
			unit:     big.NewInt(100_000_000),
			expected: "315025000000",
		},
		{
			name:     "zero decimals",
			raw:      big.NewInt(42),
			decimals: 0,
			unit:     big.NewInt(1_000_000),
			expected: "42000000",
		},
		{
			name:     "zero raw",
			raw:      big.NewInt(0),
			decimals: 8,
			unit:     big.NewInt(100_000_000),
			expected: "0",
		},
		{
			name:     "negative raw",
			raw:      big.NewInt(-5),
			decimals: 0,
			unit:     big.NewInt(100_000_000),
			expected: "0",
		},
		{
			name:     "nil raw",
			decimals: 8,
			unit:     big.NewInt(100_000_000),
			expected: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reading := types.FeedReading{
				RawPrice: tt.raw,
				Decimals: tt.decimals,
			}

			assert.Equal(t, tt.expected, ConvertPrice(reading, tt.unit).String())
		})
	}
}

func TestConvertPriceDoesNotMutateInput(t *testing.T) {
	raw := big.NewInt(1111)
	unit := big.NewInt(100_000_000)

	_ = ConvertPrice(types.FeedReading{RawPrice: raw, Decimals: 5}, unit)

	assert.Equal(t, "1111", raw.String())
	assert.Equal(t, "100000000", unit.String())
}

func mustBigInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("invalid integer " + s)
	}
	return v
}
