package models

import "strings"

// AssetClass selects the market-fee rate charged on a leg.
type AssetClass string

const (
	AssetClassCedear AssetClass = "cedear"
	AssetClassBond   AssetClass = "bond"
	AssetClassLetra  AssetClass = "letra"
)

// Market-fee rates (%) per asset class.
const (
	CedearMarketFeeRate = 0.08
	BondMarketFeeRate   = 0.01
	LetraMarketFeeRate  = 0.001
)

var cedears = map[string]struct{}{}

var letras = map[string]struct{}{}

func init() {
	for _, t := range []string{
		"AAPL", "AMD", "AMZN", "BABA", "BIDU", "BRKB", "DIA", "DISN",
		"EEM", "GOLD", "GOOGL", "INTC", "KO", "MELI", "MRK", "MSFT",
		"NVDA", "PBR", "QCOM", "QQQ", "SPY", "TSLA", "XLE", "XOM",
		"META", "NFLX", "PYPL", "ADBE", "CSCO", "ORCL", "CRM",
		"SHOP", "SQ", "UBER", "ABNB", "COIN", "RIOT", "MARA",
	} {
		cedears[t] = struct{}{}
	}
	for _, t := range []string{"X18O3", "X20Y4", "S31O3", "X26A4", "X26D4"} {
		letras[t] = struct{}{}
	}
}

// ClassifyTicker maps a base ticker to its asset class. Anything not listed
// as a foreign-listed equity or a short-term note is treated as a bond.
func ClassifyTicker(ticker string) AssetClass {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if _, ok := cedears[t]; ok {
		return AssetClassCedear
	}
	if _, ok := letras[t]; ok {
		return AssetClassLetra
	}
	return AssetClassBond
}

// MarketFeeRate returns the market-fee rate (%) for the class.
func (c AssetClass) MarketFeeRate() float64 {
	switch c {
	case AssetClassCedear:
		return CedearMarketFeeRate
	case AssetClassLetra:
		return LetraMarketFeeRate
	default:
		return BondMarketFeeRate
	}
}

// FeeProfile is the per-leg trading cost, fixed when the leg is built.
type FeeProfile struct {
	CommissionRate float64    `json:"commission_rate"`
	MarketFeeRate  float64    `json:"market_fee_rate"`
	Class          AssetClass `json:"class"`
}

// NewFeeProfile builds the fee profile for ticker with the given broker
// commission rate (%).
func NewFeeProfile(ticker string, commissionRate float64) FeeProfile {
	class := ClassifyTicker(ticker)
	return FeeProfile{
		CommissionRate: commissionRate,
		MarketFeeRate:  class.MarketFeeRate(),
		Class:          class,
	}
}

// Fee is the commission plus market fee charged on a gross amount.
func (f FeeProfile) Fee(gross float64) float64 {
	rate := (f.CommissionRate + f.MarketFeeRate) / 100
	return gross * rate
}

// FeeSchedule holds the exchange's financing-leg charges. Daily rates are
// fractions, VATRate is a fraction of the fees it applies to.
type FeeSchedule struct {
	Version               string  `json:"version"`
	MarketFeeDailyRate    float64 `json:"market_fee_daily_rate"`
	GuaranteeFeeDailyRate float64 `json:"guarantee_fee_daily_rate"`
	VATRate               float64 `json:"vat_rate"`
}

// BYMASchedule returns the BYMA caución schedule: 0.045% per 90 days for both
// market and guarantee fees, 21% VAT.
func BYMASchedule() FeeSchedule {
	// Evaluated step by step in float64 so the figures match the ones shown
	// to users by the alerting side.
	pct := 0.045
	daily := pct / 100 / 90
	return FeeSchedule{
		Version:               "byma-2024",
		MarketFeeDailyRate:    daily,
		GuaranteeFeeDailyRate: daily,
		VATRate:               0.21,
	}
}
