// Package arbitrage screens and prices settlement-term arbitrage between the
// near and far tenors of an instrument.
package arbitrage

import (
	"fmt"
	"math"

	"github.com/gregtusar/termarb/pkg/caucion"
	"github.com/gregtusar/termarb/pkg/instrument"
	"github.com/gregtusar/termarb/pkg/models"
)

// safetyMargin is applied to the financing cost before a candidate passes
// screening, to leave room for slippage.
const safetyMargin = 1.10

// Candidate is a buy leg paired with a sell leg of the same instrument.
type Candidate struct {
	Buy  *instrument.Leg
	Sell *instrument.Leg
}

func (c Candidate) Ticker() string {
	return c.Sell.Ticker
}

// Pricing carries the financing inputs shared by screening and pricing.
// Rates are percentages.
type Pricing struct {
	AnnualRate      float64
	FarTenorDays    int
	BorrowerFeeRate float64
	LenderFeeRate   float64
}

// Side is the economics of one leg of a priced trade.
type Side struct {
	Tenor         models.Tenor `json:"tenor"`
	Symbol        string       `json:"symbol"`
	Price         float64      `json:"price"`
	AvailableSize float64      `json:"available_size"`
	Gross         float64      `json:"gross"`
	Fee           float64      `json:"fee"`
	Net           float64      `json:"net"`
}

// Trade is a priced candidate. A trade with Priced false carries only the
// identity and quoted prices.
type Trade struct {
	Ticker               string         `json:"ticker"`
	Priced               bool           `json:"priced"`
	Buy                  Side           `json:"buy"`
	Sell                 Side           `json:"sell"`
	Size                 float64        `json:"size"`
	Days                 int            `json:"days"`
	Financing            caucion.Result `json:"financing"`
	SpreadAnnualized     float64        `json:"spread_annualized"`
	SpreadNetOfFinancing float64        `json:"spread_net_of_financing"`
	QuotedSpreadPct      float64        `json:"quoted_spread_pct"`
	LastSpreadPct        float64        `json:"last_spread_pct"`
	ProfitLoss           float64        `json:"profit_loss"`
	ProfitLossPct        float64        `json:"profit_loss_pct"`
}

// IsLender reports whether the trade places the sale proceeds.
func (t Trade) IsLender() bool {
	return t.Days < 0
}

func (t Trade) AbsDays() int {
	if t.Days < 0 {
		return -t.Days
	}
	return t.Days
}

func (t Trade) FinancingRole() caucion.Role {
	if t.IsLender() {
		return caucion.RoleLender
	}
	return caucion.RoleBorrower
}

func (t Trade) String() string {
	return fmt.Sprintf("Trade(sell %s-%s @ %.2f, buy %s-%s @ %.2f, caucion %s %dd, P&L %.2f (%.3f%%))",
		t.Ticker, t.Sell.Tenor, t.Sell.Price, t.Ticker, t.Buy.Tenor, t.Buy.Price,
		t.FinancingRole(), t.AbsDays(), t.ProfitLoss, t.ProfitLossPct)
}

// QuotedSpreadPct is the sell bid over the buy offer in percent, or -100 when
// either side is missing.
func QuotedSpreadPct(c Candidate) float64 {
	sell, buy := c.Sell.Snapshot(), c.Buy.Snapshot()
	if !sell.HasBid() || !buy.HasOffer() {
		return -100
	}
	return (sell.BidPrice/buy.OfferPrice - 1) * 100
}

// LastSpreadPct compares last traded prices, or returns -100 when either is
// missing.
func LastSpreadPct(c Candidate) float64 {
	sell, buy := c.Sell.Snapshot(), c.Buy.Snapshot()
	if !sell.HasLast() || !buy.HasLast() {
		return -100
	}
	return (buy.LastPrice/sell.LastPrice - 1) * 100
}

// Evaluator screens and prices candidates. It holds no state beyond the
// financing calculator.
type Evaluator struct {
	calc *caucion.Calculator
}

func NewEvaluator(calc *caucion.Calculator) *Evaluator {
	if calc == nil {
		calc = caucion.NewCalculator(models.BYMASchedule())
	}
	return &Evaluator{calc: calc}
}

// HasOpportunity is the cheap pre-check: both books must be two-sided and
// uncrossed, and the sell bid must clear the buy offer discounted by the
// financing cost plus margin.
func (e *Evaluator) HasOpportunity(c Candidate, annualRate float64, farDays int) bool {
	sell, buy := c.Sell.Snapshot(), c.Buy.Snapshot()
	if !sell.HasBid() || !buy.HasOffer() {
		return false
	}
	if sell.Crossed() || buy.Crossed() {
		return false
	}

	days := c.Sell.SettlementGap(c.Buy, farDays)
	rate := annualRate / 365 * math.Abs(float64(days)) / 100
	breakEven := buy.OfferPrice * (1 - rate*safetyMargin)
	return sell.BidPrice >= breakEven
}

// Price computes the full economics of c. size <= 0 sizes the trade to the
// smaller of the displayed sell bid and buy offer sizes. Missing quotes or a
// zero resolved size give an unpriced trade.
func (e *Evaluator) Price(c Candidate, size float64, p Pricing) Trade {
	sell, buy := c.Sell.Snapshot(), c.Buy.Snapshot()
	t := Trade{
		Ticker:          c.Ticker(),
		Buy:             Side{Tenor: c.Buy.Tenor, Symbol: c.Buy.Symbol},
		Sell:            Side{Tenor: c.Sell.Tenor, Symbol: c.Sell.Symbol},
		Days:            c.Sell.SettlementGap(c.Buy, p.FarTenorDays),
		QuotedSpreadPct: QuotedSpreadPct(c),
		LastSpreadPct:   LastSpreadPct(c),
	}
	if !sell.HasBid() || !buy.HasOffer() {
		return t
	}

	t.Sell.Price, t.Sell.AvailableSize = sell.BidPrice, sell.BidSize
	t.Buy.Price, t.Buy.AvailableSize = buy.OfferPrice, buy.OfferSize

	if size <= 0 {
		size = math.Min(sell.BidSize, buy.OfferSize)
	}
	if size <= 0 || math.IsNaN(size) {
		return t
	}
	quoted := t
	t.Size = size

	t.Sell.Gross = t.Sell.Price * size * c.Sell.ConversionFactor
	t.Sell.Fee = c.Sell.Fees().Fee(t.Sell.Gross)
	t.Sell.Net = t.Sell.Gross - t.Sell.Fee

	t.Buy.Gross = t.Buy.Price * size * c.Buy.ConversionFactor
	t.Buy.Fee = c.Buy.Fees().Fee(t.Buy.Gross)
	t.Buy.Net = t.Buy.Gross + t.Buy.Fee

	notional := t.Buy.Net
	if t.IsLender() {
		notional = t.Sell.Net
	}
	fin, err := e.calc.Calculate(caucion.Params{
		Days:            t.Days,
		AnnualRate:      p.AnnualRate,
		Notional:        notional,
		BorrowerFeeRate: p.BorrowerFeeRate,
		LenderFeeRate:   p.LenderFeeRate,
	})
	if err != nil {
		return quoted
	}
	t.Financing = fin

	if t.Days != 0 {
		t.SpreadAnnualized = math.Abs((t.Sell.Price/t.Buy.Price - 1) / float64(t.AbsDays()) * 365 * 100)
	}

	if t.IsLender() {
		t.ProfitLoss = t.Sell.Net - t.Buy.Net + fin.NetInterest
	} else {
		t.ProfitLoss = t.Sell.Net - t.Buy.Net - fin.NetInterest
	}
	if t.Buy.Gross != 0 {
		t.ProfitLossPct = t.ProfitLoss / t.Buy.Gross * 100
	}
	t.SpreadNetOfFinancing = t.SpreadAnnualized - p.AnnualRate
	t.Priced = true
	return t
}
