// Package caucion prices the short-term financing leg that bridges the
// settlement gap between two tenors.
package caucion

import (
	"errors"
	"fmt"
	"math"

	"github.com/gregtusar/termarb/pkg/models"
)

var ErrInvalidInput = errors.New("caucion: invalid input")

// Role is the side of the financing leg.
type Role string

const (
	// RoleBorrower takes financing to pay for today's purchase (tomadora).
	RoleBorrower Role = "tomadora"
	// RoleLender places today's sale proceeds (colocadora).
	RoleLender Role = "colocadora"
)

// Params are the inputs of a financing leg. Rates are percentages (35 = 35%).
// A negative Days places the proceeds, a positive one borrows.
type Params struct {
	Days            int
	AnnualRate      float64
	Notional        float64
	BorrowerFeeRate float64
	LenderFeeRate   float64
}

// Result is an immutable financing-leg breakdown.
type Result struct {
	Days              int     `json:"days"`
	AnnualRate        float64 `json:"annual_rate"`
	Notional          float64 `json:"notional"`
	Role              Role    `json:"role"`
	FeeRate           float64 `json:"fee_rate"`
	PeriodRate        float64 `json:"period_rate"`
	Interest          float64 `json:"interest"`
	GrossPlusInterest float64 `json:"gross_plus_interest"`
	BrokerFee         float64 `json:"broker_fee"`
	MarketFee         float64 `json:"market_fee"`
	GuaranteeFee      float64 `json:"guarantee_fee"`
	TotalFees         float64 `json:"total_fees"`
	VAT               float64 `json:"vat"`
	TotalCost         float64 `json:"total_cost"`
	NetInterest       float64 `json:"net_interest"`
	NetAmount         float64 `json:"net_amount"`
}

func (r Result) IsLender() bool {
	return r.Role == RoleLender
}

func (r Result) AbsDays() int {
	if r.Days < 0 {
		return -r.Days
	}
	return r.Days
}

func (r Result) String() string {
	return fmt.Sprintf("Caucion(%s, days=%d, rate=%.2f%%, net_interest=%.2f)",
		r.Role, r.AbsDays(), r.AnnualRate, r.NetInterest)
}

// Calculator prices financing legs against a fee schedule.
type Calculator struct {
	schedule models.FeeSchedule
}

func NewCalculator(schedule models.FeeSchedule) *Calculator {
	return &Calculator{schedule: schedule}
}

func (c *Calculator) Schedule() models.FeeSchedule {
	return c.schedule
}

// Calculate returns the financing leg for p. It only fails on non-finite
// inputs or a negative notional; zero days yields a zero-cost leg.
func (c *Calculator) Calculate(p Params) (Result, error) {
	for _, v := range []float64{p.AnnualRate, p.Notional, p.BorrowerFeeRate, p.LenderFeeRate} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Result{}, fmt.Errorf("%w: non-finite value %v", ErrInvalidInput, v)
		}
	}
	if p.Notional < 0 {
		return Result{}, fmt.Errorf("%w: negative notional %v", ErrInvalidInput, p.Notional)
	}
	return c.calculate(p), nil
}

// calculate assumes validated input. Operation order is kept fixed so the
// figures are reproducible to the last bit.
func (c *Calculator) calculate(p Params) Result {
	daysAbs := float64(p.Days)
	if p.Days < 0 {
		daysAbs = float64(-p.Days)
	}

	r := Result{
		Days:       p.Days,
		AnnualRate: p.AnnualRate,
		Notional:   p.Notional,
		Role:       RoleBorrower,
		FeeRate:    p.BorrowerFeeRate,
	}
	if p.Days < 0 {
		r.Role = RoleLender
		r.FeeRate = p.LenderFeeRate
	}

	r.PeriodRate = math.Abs(p.AnnualRate / 100 * daysAbs / 365)
	r.Interest = p.Notional * r.PeriodRate
	r.GrossPlusInterest = p.Notional + r.Interest

	r.BrokerFee = r.GrossPlusInterest * (r.FeeRate / 100 * daysAbs / 365)
	r.MarketFee = r.GrossPlusInterest * c.schedule.MarketFeeDailyRate * daysAbs
	if !r.IsLender() {
		r.GuaranteeFee = r.GrossPlusInterest * c.schedule.GuaranteeFeeDailyRate * daysAbs
	}

	r.TotalFees = r.BrokerFee + r.MarketFee + r.GuaranteeFee
	r.VAT = r.TotalFees * c.schedule.VATRate
	r.TotalCost = r.TotalFees + r.VAT

	if r.IsLender() {
		r.NetInterest = r.Interest - r.TotalCost
		r.NetAmount = r.GrossPlusInterest - r.TotalCost
	} else {
		r.NetInterest = r.Interest + r.TotalCost
		r.NetAmount = r.GrossPlusInterest + r.TotalCost
	}
	return r
}

var defaultCalculator = NewCalculator(models.BYMASchedule())

// Calculate prices p against the BYMA schedule.
func Calculate(p Params) (Result, error) {
	return defaultCalculator.Calculate(p)
}
