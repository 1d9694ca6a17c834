package main

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gregtusar/termarb/internal/config"
	"github.com/gregtusar/termarb/pkg/arbitrage"
	"github.com/gregtusar/termarb/pkg/caucion"
	"github.com/gregtusar/termarb/pkg/instrument"
	"github.com/gregtusar/termarb/pkg/models"
	"github.com/gregtusar/termarb/pkg/scanner"
)

func buildRegistry(c *config.Config, l *logrus.Logger) *instrument.Registry {
	reg := instrument.NewRegistry(instrument.Options{
		MarketID:       c.OMS.MarketID,
		CommissionRate: c.Trading.CommissionRate,
		MarketFeeRates: c.Trading.FeeRates(),
	}, l)
	reg.LoadFile(c.Trading.TickersFile)
	return reg
}

func newEvaluator() *arbitrage.Evaluator {
	return arbitrage.NewEvaluator(caucion.NewCalculator(models.BYMASchedule()))
}

func scanOptions(t config.TradingConfig) arbitrage.ScanOptions {
	return arbitrage.ScanOptions{
		Pricing:   t.Pricing(),
		TradeSize: t.TradeSize,
		MinReturn: t.Threshold(),
		Owned:     ownedFilter(t.OwnedTickers),
	}
}

// ownedFilter returns nil when no holdings are configured, leaving both
// directions open for every ticker.
func ownedFilter(tickers []string) func(string) bool {
	if len(tickers) == 0 {
		return nil
	}
	owned := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		owned[strings.ToUpper(strings.TrimSpace(t))] = struct{}{}
	}
	return func(ticker string) bool {
		_, ok := owned[strings.ToUpper(ticker)]
		return ok
	}
}

func serviceOptions(c *config.Config) scanner.Options {
	return scanner.Options{
		Scan:              scanOptions(c.Trading),
		MarketID:          c.OMS.MarketID,
		TopN:              c.Alerts.TopN,
		Cooldown:          time.Duration(c.Alerts.CooldownSeconds) * time.Second,
		ScanInterval:      time.Duration(c.Trading.ScanInterval) * time.Second,
		ReconnectInterval: time.Duration(c.OMS.ReconnectInterval) * time.Second,
		StoreRawMessages:  c.Storage.RawMessages,
		Retention:         time.Duration(c.Storage.RetentionDays) * 24 * time.Hour,
	}
}
