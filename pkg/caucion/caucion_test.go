package caucion

import (
	"errors"
	"math"
	"testing"

	"github.com/gregtusar/termarb/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculate_BorrowerWorkedExample(t *testing.T) {
	r, err := Calculate(Params{
		Days:            1,
		AnnualRate:      35,
		Notional:        1_000_000,
		BorrowerFeeRate: 10,
		LenderFeeRate:   10,
	})
	require.NoError(t, err)

	assert.Equal(t, RoleBorrower, r.Role)
	assert.InDelta(t, 958.90, r.Interest, 0.05)
	assert.InDelta(t, 343.93, r.TotalCost, 0.05)
	assert.InDelta(t, 1302.84, r.NetInterest, 0.05)
	assert.Greater(t, r.GuaranteeFee, 0.0)
	assert.InDelta(t, r.GrossPlusInterest+r.TotalCost, r.NetAmount, 1e-9)
}

func TestCalculate_LenderRole(t *testing.T) {
	r, err := Calculate(Params{Days: -1, AnnualRate: 35, Notional: 1_000_000, BorrowerFeeRate: 10, LenderFeeRate: 5})
	require.NoError(t, err)

	assert.True(t, r.IsLender())
	assert.Equal(t, 5.0, r.FeeRate)
	assert.Equal(t, 0.0, r.GuaranteeFee)
	assert.InDelta(t, r.Interest-r.TotalCost, r.NetInterest, 1e-9)
	assert.InDelta(t, r.GrossPlusInterest-r.TotalCost, r.NetAmount, 1e-9)
}

func TestCalculate_DirectionSymmetry(t *testing.T) {
	for _, d := range []int{1, 3, 7, 30} {
		borrow, err := Calculate(Params{Days: d, AnnualRate: 42, Notional: 250_000, BorrowerFeeRate: 8, LenderFeeRate: 8})
		require.NoError(t, err)
		lend, err := Calculate(Params{Days: -d, AnnualRate: 42, Notional: 250_000, BorrowerFeeRate: 8, LenderFeeRate: 8})
		require.NoError(t, err)

		assert.Equal(t, borrow.Interest, lend.Interest)
		assert.Equal(t, borrow.BrokerFee, lend.BrokerFee)
		assert.Equal(t, borrow.MarketFee, lend.MarketFee)
		assert.Equal(t, 0.0, lend.GuaranteeFee)
		assert.Equal(t, borrow.MarketFee, borrow.GuaranteeFee)
		assert.Equal(t, d, lend.AbsDays())
	}
}

func TestCalculate_ZeroDays(t *testing.T) {
	r, err := Calculate(Params{Days: 0, AnnualRate: 35, Notional: 1_000_000, BorrowerFeeRate: 10, LenderFeeRate: 10})
	require.NoError(t, err)

	assert.Equal(t, 0.0, r.Interest)
	assert.Equal(t, 0.0, r.TotalCost)
	assert.Equal(t, 0.0, r.NetInterest)
	assert.Equal(t, 1_000_000.0, r.NetAmount)
	assert.Equal(t, RoleBorrower, r.Role)
}

func TestCalculate_Deterministic(t *testing.T) {
	p := Params{Days: 3, AnnualRate: 37.25, Notional: 1234567.89, BorrowerFeeRate: 10, LenderFeeRate: 10}
	first, err := Calculate(p)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Calculate(p)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCalculate_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		p    Params
	}{
		{"nan rate", Params{Days: 1, AnnualRate: math.NaN(), Notional: 1}},
		{"inf notional", Params{Days: 1, AnnualRate: 35, Notional: math.Inf(1)}},
		{"negative notional", Params{Days: 1, AnnualRate: 35, Notional: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Calculate(tt.p)
			assert.True(t, errors.Is(err, ErrInvalidInput))
		})
	}
}

func TestCalculator_CustomSchedule(t *testing.T) {
	free := NewCalculator(models.FeeSchedule{Version: "none"})
	r, err := free.Calculate(Params{Days: 2, AnnualRate: 36.5, Notional: 100_000})
	require.NoError(t, err)

	assert.InDelta(t, 200.0, r.Interest, 1e-9)
	assert.Equal(t, 0.0, r.TotalCost)
	assert.Equal(t, "none", free.Schedule().Version)
}
