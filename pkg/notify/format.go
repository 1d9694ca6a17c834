package notify

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/gregtusar/termarb/pkg/arbitrage"
	"github.com/gregtusar/termarb/pkg/caucion"
)

func money(v float64) string {
	return humanize.FormatFloat("#,###.##", v)
}

func whole(v float64) string {
	return humanize.FormatFloat("#,###.", v)
}

func roleLabel(r caucion.Role) string {
	if r == caucion.RoleLender {
		return "lender (colocadora)"
	}
	return "borrower (tomadora)"
}

// FormatAlert renders a priced trade as a plain-text alert.
func FormatAlert(t arbitrage.Trade) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Settlement arbitrage opportunity\n\n")
	fmt.Fprintf(&sb, "Ticker: %s\n\n", t.Ticker)
	fmt.Fprintf(&sb, "1. Sell %s: $%.2f\n", t.Sell.Tenor, t.Sell.Price)
	fmt.Fprintf(&sb, "2. Buy %s: $%.2f\n", t.Buy.Tenor, t.Buy.Price)
	fmt.Fprintf(&sb, "3. Caucion %s: %d day(s)\n\n", roleLabel(t.FinancingRole()), t.AbsDays())
	fmt.Fprintf(&sb, "Spread: %.4f%%\n", t.QuotedSpreadPct)
	fmt.Fprintf(&sb, "Spread annualized: %.2f%%\n", t.SpreadAnnualized)
	fmt.Fprintf(&sb, "Caucion rate: %.2f%%\n", t.Financing.AnnualRate)
	fmt.Fprintf(&sb, "Spread - caucion: %.2f%%\n\n", t.SpreadNetOfFinancing)
	fmt.Fprintf(&sb, "P&L: $%s\n", money(t.ProfitLoss))
	fmt.Fprintf(&sb, "Return: %.3f%%\n\n", t.ProfitLossPct)
	fmt.Fprintf(&sb, "Size: %s\n", whole(t.Size))
	fmt.Fprintf(&sb, "Sell total: $%s\n", money(t.Sell.Net))
	fmt.Fprintf(&sb, "Buy total: $%s\n", money(t.Buy.Net))
	fmt.Fprintf(&sb, "Caucion net interest: $%s", money(t.Financing.NetInterest))
	return sb.String()
}

// StartupInfo is what the scanner reports when it starts.
type StartupInfo struct {
	Instruments  int
	Symbols      int
	AnnualRate   float64
	FarTenorDays int
	MinReturn    string
	CooldownSecs int
}

func FormatStartup(i StartupInfo) string {
	return fmt.Sprintf("Settlement arbitrage scanner started\n\n"+
		"Instruments: %d\n"+
		"Caucion rate: %g%% TNA\n"+
		"Far tenor days: %d\n"+
		"Minimum return: %s\n"+
		"Alert cooldown: %ds\n\n"+
		"Monitoring %d symbols...",
		i.Instruments, i.AnnualRate, i.FarTenorDays, i.MinReturn, i.CooldownSecs, i.Symbols)
}

func FormatSubscribed(products int, minReturn string) string {
	return fmt.Sprintf("Subscription active\n\nMonitoring %d instruments.\n"+
		"Alerts are sent for opportunities above %s.", products, minReturn)
}

func FormatStopped(opportunities, alerts int64) string {
	return fmt.Sprintf("Scanner stopped\n\nOpportunities detected: %d\nAlerts sent: %d",
		opportunities, alerts)
}

const (
	MsgReconnecting    = "Feed disconnected, reconnecting..."
	MsgReconnected     = "Feed reconnected"
	MsgConnectionError = "Connection error: could not connect to the OMS WebSocket."
)
