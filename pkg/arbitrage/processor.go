package arbitrage

import (
	"sort"

	"github.com/gregtusar/termarb/pkg/instrument"
)

// ThresholdKind selects what a minimum-return threshold is compared with.
type ThresholdKind string

const (
	ThresholdPercent  ThresholdKind = "percent"
	ThresholdAbsolute ThresholdKind = "absolute"
)

// Threshold is a minimum return a priced trade must reach to be kept.
type Threshold struct {
	Kind  ThresholdKind
	Value float64
}

func (th Threshold) Passes(t Trade) bool {
	if th.Kind == ThresholdAbsolute {
		return t.ProfitLoss >= th.Value
	}
	return t.ProfitLossPct >= th.Value
}

// ScanOptions drive one scan pass.
type ScanOptions struct {
	Pricing
	// TradeSize <= 0 sizes each trade to visible liquidity.
	TradeSize float64
	MinReturn Threshold
	// Owned, when set, restricts buy-near/sell-far candidates to tickers it
	// accepts.
	Owned func(ticker string) bool
	// Limit caps the ranked result; 0 keeps everything.
	Limit int
}

// Processor builds, screens, prices and ranks candidates from a registry.
// It keeps no state between scans.
type Processor struct {
	registry  *instrument.Registry
	evaluator *Evaluator
}

func NewProcessor(registry *instrument.Registry, evaluator *Evaluator) *Processor {
	if evaluator == nil {
		evaluator = NewEvaluator(nil)
	}
	return &Processor{registry: registry, evaluator: evaluator}
}

func (p *Processor) Evaluator() *Evaluator {
	return p.evaluator
}

// Candidates returns the screened candidates in registry order, near-buy
// direction first for each instrument.
func (p *Processor) Candidates(opts ScanOptions) []Candidate {
	var out []Candidate
	for _, inst := range p.registry.Instruments() {
		for _, c := range directions(inst, opts.Owned) {
			if p.evaluator.HasOpportunity(c, opts.AnnualRate, opts.FarTenorDays) {
				out = append(out, c)
			}
		}
	}
	return out
}

func directions(inst *instrument.Instrument, owned func(string) bool) []Candidate {
	cands := make([]Candidate, 0, 2)
	// Selling the far tenor against a near purchase delivers before the
	// purchase settles, so it needs the position already held.
	if owned == nil || owned(inst.Ticker) {
		cands = append(cands, Candidate{Buy: inst.Near, Sell: inst.Far})
	}
	cands = append(cands, Candidate{Buy: inst.Far, Sell: inst.Near})
	return cands
}

// PriceAll prices every candidate with the scan options.
func (p *Processor) PriceAll(cands []Candidate, opts ScanOptions) []Trade {
	trades := make([]Trade, 0, len(cands))
	for _, c := range cands {
		trades = append(trades, p.evaluator.Price(c, opts.TradeSize, opts.Pricing))
	}
	return trades
}

// Scan screens, prices, filters and ranks the current registry state.
func (p *Processor) Scan(opts ScanOptions) []Trade {
	return Select(p.PriceAll(p.Candidates(opts), opts), opts)
}

// Select keeps the priced trades meeting opts.MinReturn, ranks them and
// applies opts.Limit.
func Select(trades []Trade, opts ScanOptions) []Trade {
	kept := Filter(trades, opts.MinReturn)
	Rank(kept)
	if opts.Limit > 0 && len(kept) > opts.Limit {
		kept = kept[:opts.Limit]
	}
	return kept
}

// Filter keeps priced trades meeting th.
func Filter(trades []Trade, th Threshold) []Trade {
	out := make([]Trade, 0, len(trades))
	for _, t := range trades {
		if t.Priced && th.Passes(t) {
			out = append(out, t)
		}
	}
	return out
}

// Rank sorts trades by return percentage descending, then absolute P&L
// descending, then ticker and buy tenor ascending.
func Rank(trades []Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		a, b := trades[i], trades[j]
		if a.ProfitLossPct != b.ProfitLossPct {
			return a.ProfitLossPct > b.ProfitLossPct
		}
		if a.ProfitLoss != b.ProfitLoss {
			return a.ProfitLoss > b.ProfitLoss
		}
		if a.Ticker != b.Ticker {
			return a.Ticker < b.Ticker
		}
		return a.Buy.Tenor < b.Buy.Tenor
	})
}
