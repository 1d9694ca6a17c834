// Package instrument tracks dual-tenor instruments and their latest quotes.
package instrument

import (
	"fmt"

	"github.com/gregtusar/termarb/pkg/models"
)

const (
	DefaultMarketID = "ROFX"
	DefaultCurrency = "ARS"
)

// Options configure how legs are built.
type Options struct {
	MarketID         string
	Currency         string
	CommissionRate   float64
	ConversionFactor float64
	// MarketFeeRates overrides the market-fee rate (%) of an asset class.
	MarketFeeRates map[models.AssetClass]float64
}

func (o Options) withDefaults() Options {
	if o.MarketID == "" {
		o.MarketID = DefaultMarketID
	}
	if o.Currency == "" {
		o.Currency = DefaultCurrency
	}
	if o.ConversionFactor <= 0 {
		o.ConversionFactor = 1
	}
	return o
}

// Symbol builds the fully-qualified market symbol for a ticker and tenor.
func Symbol(ticker string, tenor models.Tenor) string {
	return fmt.Sprintf("MERV - XMEV - %s - %s", ticker, tenor)
}

// Leg is one settlement tenor of an instrument.
type Leg struct {
	Ticker           string       `json:"ticker"`
	Tenor            models.Tenor `json:"tenor"`
	Symbol           string       `json:"symbol"`
	MarketID         string       `json:"market_id"`
	Currency         string       `json:"currency"`
	ConversionFactor float64      `json:"conversion_factor"`

	fees     models.FeeProfile
	snapshot *models.Snapshot
}

func newLeg(ticker string, tenor models.Tenor, opts Options) *Leg {
	fees := models.NewFeeProfile(ticker, opts.CommissionRate)
	if rate, ok := opts.MarketFeeRates[fees.Class]; ok {
		fees.MarketFeeRate = rate
	}
	return &Leg{
		Ticker:           ticker,
		Tenor:            tenor,
		Symbol:           Symbol(ticker, tenor),
		MarketID:         opts.MarketID,
		Currency:         opts.Currency,
		ConversionFactor: opts.ConversionFactor,
		fees:             fees,
	}
}

// Fees returns the leg's fee profile.
func (l *Leg) Fees() models.FeeProfile {
	return l.fees
}

// Snapshot returns the latest quote, or nil before the first update.
func (l *Leg) Snapshot() *models.Snapshot {
	return l.snapshot
}

func (l *Leg) HasData() bool {
	return l.snapshot != nil
}

func (l *Leg) SettlementDays(farDays int) int {
	return l.Tenor.SettlementDays(farDays)
}

// SettlementGap is the day count between l settling and other settling.
// Positive means l settles later.
func (l *Leg) SettlementGap(other *Leg, farDays int) int {
	return l.SettlementDays(farDays) - other.SettlementDays(farDays)
}

func (l *Leg) String() string {
	return fmt.Sprintf("%s-%s", l.Ticker, l.Tenor)
}

// Instrument is a ticker traded at both tenors.
type Instrument struct {
	Ticker string
	Near   *Leg
	Far    *Leg
}

// NewInstrument builds both legs for ticker.
func NewInstrument(ticker string, opts Options) *Instrument {
	opts = opts.withDefaults()
	return &Instrument{
		Ticker: ticker,
		Near:   newLeg(ticker, models.TenorNear, opts),
		Far:    newLeg(ticker, models.TenorFar, opts),
	}
}

func (i *Instrument) Legs() []*Leg {
	return []*Leg{i.Near, i.Far}
}

func (i *Instrument) Symbols() []string {
	return []string{i.Near.Symbol, i.Far.Symbol}
}

func (i *Instrument) ContainsSymbol(symbol string) bool {
	return i.Near.Symbol == symbol || i.Far.Symbol == symbol
}

// Apply replaces the snapshot of the leg whose symbol matches. It reports
// whether a leg matched.
func (i *Instrument) Apply(symbol string, snap models.Snapshot) bool {
	for _, leg := range i.Legs() {
		if leg.Symbol == symbol {
			snap.Symbol = symbol
			leg.snapshot = &snap
			return true
		}
	}
	return false
}

func (i *Instrument) String() string {
	return fmt.Sprintf("Instrument(%s, near=%t, far=%t)", i.Ticker, i.Near.HasData(), i.Far.HasData())
}
