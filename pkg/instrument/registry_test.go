package instrument

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gregtusar/termarb/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbol(t *testing.T) {
	assert.Equal(t, "MERV - XMEV - AL30 - CI", Symbol("AL30", models.TenorNear))
	assert.Equal(t, "MERV - XMEV - AL30 - 24hs", Symbol("AL30", models.TenorFar))
}

func TestNewInstrument_Legs(t *testing.T) {
	inst := NewInstrument("AAPL", Options{CommissionRate: 0.1})

	assert.Equal(t, models.TenorNear, inst.Near.Tenor)
	assert.Equal(t, models.TenorFar, inst.Far.Tenor)
	assert.Equal(t, DefaultMarketID, inst.Near.MarketID)
	assert.Equal(t, DefaultCurrency, inst.Far.Currency)
	assert.Equal(t, 1.0, inst.Near.ConversionFactor)
	assert.Equal(t, 0.08, inst.Near.Fees().MarketFeeRate)
	assert.Equal(t, 0.1, inst.Far.Fees().CommissionRate)
	assert.Equal(t, 0, inst.Near.SettlementDays(2))
	assert.Equal(t, 2, inst.Far.SettlementGap(inst.Near, 2))
	assert.Equal(t, -2, inst.Near.SettlementGap(inst.Far, 2))
}

func TestNewInstrument_MarketFeeOverride(t *testing.T) {
	inst := NewInstrument("AL30", Options{MarketFeeRates: map[models.AssetClass]float64{models.AssetClassBond: 0}})
	assert.Equal(t, 0.0, inst.Near.Fees().MarketFeeRate)

	cedear := NewInstrument("SPY", Options{MarketFeeRates: map[models.AssetClass]float64{models.AssetClassBond: 0}})
	assert.Equal(t, 0.08, cedear.Far.Fees().MarketFeeRate)
}

func TestRegistry_LoadSkipsBlankCommentAndDuplicates(t *testing.T) {
	r := NewRegistry(Options{}, nil)
	added := r.Load([]string{"AL30", "", "  ", "# comment", "GD30", "AL30"})

	assert.Equal(t, 2, added)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{
		"MERV - XMEV - AL30 - CI", "MERV - XMEV - AL30 - 24hs",
		"MERV - XMEV - GD30 - CI", "MERV - XMEV - GD30 - 24hs",
	}, r.AllSymbols())
}

func TestRegistry_SymbolsDeterministic(t *testing.T) {
	tickers := []string{"AL30", "GGAL", "SPY"}
	a := NewRegistry(Options{}, nil)
	b := NewRegistry(Options{MarketID: "ROFX"}, nil)
	a.Load(tickers)
	b.Load(tickers)
	assert.Equal(t, a.AllSymbols(), b.AllSymbols())
}

func TestReadTickers_SkipsMalformedRows(t *testing.T) {
	src := strings.Join([]string{
		"AL30,bond",
		"# header comment",
		"",
		`BAD"ROW`,
		"GD30",
		" ,empty first column",
		"SPY",
	}, "\n")

	tickers, err := ReadTickers(strings.NewReader(src), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"AL30", "GD30", "SPY"}, tickers)
}

func TestRegistry_LoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tickers.csv")
	require.NoError(t, os.WriteFile(path, []byte("AL30\nGD30\n#X\n"), 0o644))

	r := NewRegistry(Options{}, nil)
	assert.Equal(t, 2, r.LoadFile(path))

	missing := NewRegistry(Options{}, nil)
	assert.Equal(t, 0, missing.LoadFile(filepath.Join(dir, "nope.csv")))
	assert.Equal(t, 0, missing.Len())
}

func TestRegistry_ApplySnapshot(t *testing.T) {
	r := NewRegistry(Options{}, nil)
	r.Load([]string{"AL30", "GD30"})

	ts := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	ok := r.ApplySnapshot("MERV - XMEV - AL30 - CI", models.Snapshot{BidPrice: 100, BidSize: 10, OfferPrice: 101, OfferSize: 5, Timestamp: ts})
	require.True(t, ok)

	inst, found := r.Instrument("AL30")
	require.True(t, found)
	require.NotNil(t, inst.Near.Snapshot())
	assert.Equal(t, "MERV - XMEV - AL30 - CI", inst.Near.Snapshot().Symbol)
	assert.Nil(t, inst.Far.Snapshot())

	other, _ := r.Instrument("GD30")
	assert.Nil(t, other.Near.Snapshot())

	assert.False(t, r.ApplySnapshot("MERV - XMEV - XXX - CI", models.Snapshot{BidPrice: 1}))
}

func TestRegistry_ApplySnapshotReplacesWholeSnapshot(t *testing.T) {
	r := NewRegistry(Options{}, nil)
	r.Load([]string{"AL30"})
	sym := Symbol("AL30", models.TenorFar)

	r.ApplySnapshot(sym, models.Snapshot{BidPrice: 100, BidSize: 10, OfferPrice: 101, OfferSize: 5})
	r.ApplySnapshot(sym, models.Snapshot{OfferPrice: 102, OfferSize: 7})

	inst, _ := r.Instrument("AL30")
	snap := inst.Far.Snapshot()
	assert.Equal(t, 0.0, snap.BidPrice)
	assert.Equal(t, 0.0, snap.BidSize)
	assert.Equal(t, 102.0, snap.OfferPrice)
}

func TestRegistry_Stats(t *testing.T) {
	r := NewRegistry(Options{}, nil)
	r.Load([]string{"AL30", "GD30", "SPY"})
	r.ApplySnapshot(Symbol("AL30", models.TenorNear), models.Snapshot{BidPrice: 1})
	r.ApplySnapshot(Symbol("AL30", models.TenorFar), models.Snapshot{BidPrice: 1})
	r.ApplySnapshot(Symbol("SPY", models.TenorFar), models.Snapshot{BidPrice: 1})

	assert.Equal(t, Stats{TotalInstruments: 3, WithNearData: 1, WithFarData: 2, TotalSymbols: 6}, r.Stats())
}
