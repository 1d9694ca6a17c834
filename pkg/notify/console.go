package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/gregtusar/termarb/pkg/arbitrage"
	"github.com/gregtusar/termarb/pkg/caucion"
)

// Console writes alerts and ranked tables to a terminal.
type Console struct {
	out io.Writer
}

func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter writes to w instead of stdout.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

func (c *Console) Send(_ context.Context, text string) error {
	_, err := fmt.Fprintf(c.out, "[%s] %s\n", time.Now().Format("15:04:05"), text)
	return err
}

// Table prints the ranked trades, best first.
func (c *Console) Table(trades []arbitrage.Trade) {
	if len(trades) == 0 {
		fmt.Fprintf(c.out, "[%s] no opportunities found\n", time.Now().Format("15:04:05"))
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Ticker", "Sell", "Buy", "Caucion", "Size", "Spread", "Spread TNA", "Net TNA", "P&L", "Return")
	for i, t := range trades {
		table.Append(
			fmt.Sprintf("%d", i+1),
			t.Ticker,
			fmt.Sprintf("%s @ %.2f", t.Sell.Tenor, t.Sell.Price),
			fmt.Sprintf("%s @ %.2f", t.Buy.Tenor, t.Buy.Price),
			fmt.Sprintf("%s %dd", t.FinancingRole(), t.AbsDays()),
			whole(t.Size),
			fmt.Sprintf("%.4f%%", t.QuotedSpreadPct),
			fmt.Sprintf("%.2f%%", t.SpreadAnnualized),
			fmt.Sprintf("%.2f%%", t.SpreadNetOfFinancing),
			"$"+money(t.ProfitLoss),
			fmt.Sprintf("%.3f%%", t.ProfitLossPct),
		)
	}
	table.Render()
}

// Caucion prints every component of a financing leg.
func (c *Console) Caucion(r caucion.Result) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Component", "Value")
	rows := [][2]string{
		{"Role", string(r.Role)},
		{"Days", fmt.Sprintf("%d", r.Days)},
		{"Annual rate", fmt.Sprintf("%.2f%%", r.AnnualRate)},
		{"Notional", "$" + money(r.Notional)},
		{"Period rate", fmt.Sprintf("%.6f%%", r.PeriodRate*100)},
		{"Interest", "$" + money(r.Interest)},
		{"Notional + interest", "$" + money(r.GrossPlusInterest)},
		{"Broker fee", "$" + money(r.BrokerFee)},
		{"Market fee", "$" + money(r.MarketFee)},
		{"Guarantee fee", "$" + money(r.GuaranteeFee)},
		{"Fees", "$" + money(r.TotalFees)},
		{"VAT", "$" + money(r.VAT)},
		{"Total cost", "$" + money(r.TotalCost)},
		{"Net interest", "$" + money(r.NetInterest)},
		{"Net amount", "$" + money(r.NetAmount)},
	}
	for _, row := range rows {
		table.Append(row[0], row[1])
	}
	table.Render()
}
