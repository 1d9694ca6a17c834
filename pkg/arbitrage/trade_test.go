package arbitrage

import (
	"testing"

	"github.com/gregtusar/termarb/pkg/caucion"
	"github.com/gregtusar/termarb/pkg/instrument"
	"github.com/gregtusar/termarb/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var zeroFees = instrument.Options{
	MarketFeeRates: map[models.AssetClass]float64{
		models.AssetClassBond:   0,
		models.AssetClassCedear: 0,
		models.AssetClassLetra:  0,
	},
}

func quote(bid, bidSize, offer, offerSize float64) models.Snapshot {
	return models.Snapshot{BidPrice: bid, BidSize: bidSize, OfferPrice: offer, OfferSize: offerSize}
}

func newInstrument(t *testing.T, ticker string, near, far models.Snapshot) *instrument.Instrument {
	t.Helper()
	inst := instrument.NewInstrument(ticker, zeroFees)
	require.True(t, inst.Apply(inst.Near.Symbol, near))
	require.True(t, inst.Apply(inst.Far.Symbol, far))
	return inst
}

func TestPrice_BorrowerWorkedExample(t *testing.T) {
	inst := newInstrument(t, "AL30", quote(99.90, 500, 100.00, 2000), quote(100.20, 3000, 100.40, 500))
	c := Candidate{Buy: inst.Near, Sell: inst.Far}
	e := NewEvaluator(nil)

	require.True(t, e.HasOpportunity(c, 36.5, 1))

	tr := e.Price(c, 1000, Pricing{AnnualRate: 36.5, FarTenorDays: 1})
	require.True(t, tr.Priced)

	assert.Equal(t, 1, tr.Days)
	assert.Equal(t, caucion.RoleBorrower, tr.FinancingRole())
	assert.InDelta(t, 100.00, tr.Financing.Interest, 0.01)
	assert.InDelta(t, 101.21, tr.Financing.NetInterest, 0.01)
	assert.InDelta(t, 98.79, tr.ProfitLoss, 0.01)
	assert.InDelta(t, 0.0989, tr.ProfitLossPct, 0.01)
	assert.InDelta(t, 73.00, tr.SpreadAnnualized, 0.01)
	assert.InDelta(t, 36.50, tr.SpreadNetOfFinancing, 0.01)
	assert.InDelta(t, 100000.0, tr.Buy.Net, 1e-6)
	assert.InDelta(t, 100200.0, tr.Sell.Net, 1e-6)
	assert.Equal(t, tr.Buy.Net, tr.Financing.Notional)
}

func TestPrice_LenderDirection(t *testing.T) {
	inst := newInstrument(t, "AL30", quote(100.50, 1000, 100.70, 1000), quote(99.80, 1000, 100.00, 1000))
	c := Candidate{Buy: inst.Far, Sell: inst.Near}
	e := NewEvaluator(nil)

	tr := e.Price(c, 1000, Pricing{AnnualRate: 36.5, FarTenorDays: 1, BorrowerFeeRate: 10, LenderFeeRate: 10})
	require.True(t, tr.Priced)

	assert.Equal(t, -1, tr.Days)
	assert.True(t, tr.IsLender())
	assert.True(t, tr.Financing.IsLender())
	assert.Equal(t, tr.Sell.Net, tr.Financing.Notional)
	assert.Equal(t, 0.0, tr.Financing.GuaranteeFee)
	assert.InDelta(t, tr.Sell.Net-tr.Buy.Net+tr.Financing.NetInterest, tr.ProfitLoss, 1e-9)
}

func TestPrice_FeesReduceSellAndIncreaseBuy(t *testing.T) {
	inst := instrument.NewInstrument("AL30", instrument.Options{CommissionRate: 0.10})
	inst.Apply(inst.Near.Symbol, quote(99, 10, 100, 10))
	inst.Apply(inst.Far.Symbol, quote(101, 10, 102, 10))
	tr := NewEvaluator(nil).Price(Candidate{Buy: inst.Near, Sell: inst.Far}, 10, Pricing{AnnualRate: 35, FarTenorDays: 1})

	require.True(t, tr.Priced)
	assert.InDelta(t, 1000*0.0011, tr.Buy.Fee, 1e-9)
	assert.InDelta(t, tr.Buy.Gross+tr.Buy.Fee, tr.Buy.Net, 1e-9)
	assert.InDelta(t, tr.Sell.Gross-tr.Sell.Fee, tr.Sell.Net, 1e-9)
}

func TestPrice_AutoSizing(t *testing.T) {
	inst := newInstrument(t, "AL30", quote(99, 10, 100, 700), quote(101, 300, 102, 10))
	c := Candidate{Buy: inst.Near, Sell: inst.Far}
	e := NewEvaluator(nil)

	tr := e.Price(c, 0, Pricing{AnnualRate: 35, FarTenorDays: 1})
	assert.Equal(t, 300.0, tr.Size)

	tr = e.Price(c, -5, Pricing{AnnualRate: 35, FarTenorDays: 1})
	assert.Equal(t, 300.0, tr.Size)

	// An explicit size is not capped by displayed liquidity.
	tr = e.Price(c, 5000, Pricing{AnnualRate: 35, FarTenorDays: 1})
	assert.Equal(t, 5000.0, tr.Size)
}

func TestPrice_MissingSizeIsUnpriced(t *testing.T) {
	inst := newInstrument(t, "AL30", quote(99, 10, 100, 0), quote(101, 300, 102, 10))
	tr := NewEvaluator(nil).Price(Candidate{Buy: inst.Near, Sell: inst.Far}, 0, Pricing{AnnualRate: 35, FarTenorDays: 1})

	assert.False(t, tr.Priced)
	assert.Equal(t, 0.0, tr.Size)
	assert.Equal(t, 0.0, tr.ProfitLoss)
	assert.Equal(t, 100.0, tr.Buy.Price)
	assert.Equal(t, 101.0, tr.Sell.Price)
}

func TestPrice_MissingQuotesIsUnpriced(t *testing.T) {
	inst := instrument.NewInstrument("AL30", zeroFees)
	inst.Apply(inst.Near.Symbol, quote(99, 10, 100, 10))
	tr := NewEvaluator(nil).Price(Candidate{Buy: inst.Near, Sell: inst.Far}, 10, Pricing{AnnualRate: 35, FarTenorDays: 1})

	assert.False(t, tr.Priced)
	assert.Equal(t, "AL30", tr.Ticker)
	assert.Equal(t, -100.0, tr.QuotedSpreadPct)
}

func TestHasOpportunity(t *testing.T) {
	tests := []struct {
		name string
		near models.Snapshot
		far  models.Snapshot
		want bool
	}{
		{"clears break-even", quote(99.9, 1, 100, 1), quote(100.2, 1, 100.4, 1), true},
		{"within margin below offer", quote(99.9, 1, 100, 1), quote(99.9, 1, 100.4, 1), true},
		{"below break-even", quote(99.9, 1, 100, 1), quote(99.8, 1, 100.4, 1), false},
		{"no sell bid", quote(99.9, 1, 100, 1), quote(0, 0, 100.4, 1), false},
		{"no buy offer", quote(99.9, 1, 0, 0), quote(100.2, 1, 100.4, 1), false},
		{"crossed sell book", quote(99.9, 1, 100, 1), quote(100.5, 1, 100.4, 1), false},
		{"locked buy book", quote(100, 1, 100, 1), quote(100.2, 1, 100.4, 1), false},
		{"one-sided sell book", quote(99.9, 1, 100, 1), quote(100.2, 1, 0, 0), false},
		{"one-sided buy book", quote(0, 0, 100, 10), quote(100.2, 10, 100.4, 10), false},
	}
	e := NewEvaluator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := newInstrument(t, "AL30", tt.near, tt.far)
			assert.Equal(t, tt.want, e.HasOpportunity(Candidate{Buy: inst.Near, Sell: inst.Far}, 36.5, 1))
		})
	}
}

func TestHasOpportunity_MissingSnapshot(t *testing.T) {
	inst := instrument.NewInstrument("AL30", zeroFees)
	assert.False(t, NewEvaluator(nil).HasOpportunity(Candidate{Buy: inst.Near, Sell: inst.Far}, 35, 1))
}

func TestScreeningConsistentWithPricing(t *testing.T) {
	e := NewEvaluator(nil)
	for _, sellBid := range []float64{99.90, 99.95, 100.00, 100.10, 100.50} {
		inst := newInstrument(t, "AL30", quote(99.5, 100, 100, 100), quote(sellBid, 100, 101, 100))
		c := Candidate{Buy: inst.Near, Sell: inst.Far}
		if !e.HasOpportunity(c, 36.5, 1) {
			continue
		}
		tr := e.Price(c, 100, Pricing{AnnualRate: 36.5, FarTenorDays: 1})
		require.True(t, tr.Priced)

		// With no trading fees the price gap can only undershoot the buy
		// outlay by the margin-adjusted financing rate.
		floor := -tr.Buy.Net * (36.5 / 365 / 100) * safetyMargin
		assert.GreaterOrEqual(t, tr.Sell.Net-tr.Buy.Net, floor-1e-9)
	}
}

func TestQuotedAndLastSpread(t *testing.T) {
	inst := instrument.NewInstrument("AL30", zeroFees)
	inst.Apply(inst.Near.Symbol, models.Snapshot{BidPrice: 99, OfferPrice: 100, LastPrice: 100})
	inst.Apply(inst.Far.Symbol, models.Snapshot{BidPrice: 101, OfferPrice: 102, LastPrice: 101})
	c := Candidate{Buy: inst.Near, Sell: inst.Far}

	assert.InDelta(t, 1.0, QuotedSpreadPct(c), 1e-9)
	assert.InDelta(t, (100.0/101.0-1)*100, LastSpreadPct(c), 1e-9)
}

func TestPrice_ZeroTenorDays(t *testing.T) {
	inst := newInstrument(t, "AL30", quote(99, 10, 100, 10), quote(101, 10, 102, 10))
	tr := NewEvaluator(nil).Price(Candidate{Buy: inst.Near, Sell: inst.Far}, 10, Pricing{AnnualRate: 35, FarTenorDays: 0})

	require.True(t, tr.Priced)
	assert.Equal(t, 0, tr.Days)
	assert.Equal(t, 0.0, tr.SpreadAnnualized)
	assert.Equal(t, 0.0, tr.Financing.NetInterest)
	assert.InDelta(t, -35.0, tr.SpreadNetOfFinancing, 1e-9)
}
