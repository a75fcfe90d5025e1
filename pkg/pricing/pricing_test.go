package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestEffectivePrice(t *testing.T) {
	cases := map[string]struct {
		price       string
		hasDiscount bool
		discount    string
		want        string
	}{
		"twenty percent off":         {"100", true, "20", "80"},
		"discount ignored when off":  {"100", false, "20", "100"},
		"full discount":              {"49.99", true, "100", "0"},
		"negative discount clamped":  {"10", true, "-5", "10"},
		"over hundred clamped":       {"10", true, "150", "0"},
		"rounds to cents":            {"9.99", true, "33", "6.69"},
		"zero discount flag enabled": {"12.50", true, "0", "12.5"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got := EffectivePrice(d(tc.price), tc.hasDiscount, d(tc.discount))
			require.True(t, got.Equal(d(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestLineTotal(t *testing.T) {
	require.True(t, LineTotal(d("2.50"), 3).Equal(d("7.5")))
}
