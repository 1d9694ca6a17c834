package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregtusar/termarb/internal/config"
	"github.com/gregtusar/termarb/pkg/arbitrage"
	"github.com/gregtusar/termarb/pkg/models"
)

const al30Book = `{"marketData":[
	{"symbol":"MERV - XMEV - AL30 - CI","entries":[{"type":"BI","price":99.9,"size":500},{"type":"OF","price":100,"size":2000}]},
	{"symbol":"MERV - XMEV - AL30 - 24hs","entries":[{"type":"BI","price":100.2,"size":3000},{"type":"OF","price":100.4,"size":500}]}
]}`

// writeFixture lays out a config file, a tickers file and a market data file
// in a temp dir and returns the config path.
func writeFixture(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	tickers := filepath.Join(dir, "tickers.csv")
	require.NoError(t, os.WriteFile(tickers, []byte("AL30\nGD30\n"), 0o644))

	book := filepath.Join(dir, "book.json")
	require.NoError(t, os.WriteFile(book, []byte(al30Book), 0o644))

	cfgPath := filepath.Join(dir, "config.yaml")
	yaml := "trading:\n" +
		"  tickers_file: " + tickers + "\n" +
		"  caucion_rate: 36.5\n" +
		"  commission_rate: 0\n" +
		"  min_return: -100\n" +
		"logging:\n" +
		"  level: error\n" +
		"  format: text\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o644))
	return cfgPath, book
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func TestScanCommand(t *testing.T) {
	cfgPath, book := writeFixture(t)
	out := execute(t, "--config", cfgPath, "scan", "--snapshots", book)
	assert.Contains(t, out, "AL30")
	assert.NotContains(t, out, "GD30")
}

func TestCaucionCommand(t *testing.T) {
	cfgPath, _ := writeFixture(t)
	out := execute(t, "--config", cfgPath, "caucion", "--days", "7", "--rate", "35", "--amount", "100000")
	assert.Contains(t, out, "tomadora")
	assert.Contains(t, out, "$671.23")

	out = execute(t, "--config", cfgPath, "caucion", "--days=-7", "--amount", "100000")
	assert.Contains(t, out, "colocadora")
	assert.Contains(t, out, "36.50%")
}

func TestSymbolsCommand(t *testing.T) {
	cfgPath, _ := writeFixture(t)
	out := execute(t, "--config", cfgPath, "symbols")
	assert.Contains(t, out, "MERV - XMEV - AL30 - CI\n")
	assert.Contains(t, out, "MERV - XMEV - GD30 - 24hs\n")

	out = execute(t, "--config", cfgPath, "symbols", "--json")
	assert.Contains(t, out, `"type": "smd"`)
	assert.Contains(t, out, `"marketId": "ROFX"`)
}

func TestOwnedFilter(t *testing.T) {
	assert.Nil(t, ownedFilter(nil))

	owned := ownedFilter([]string{" al30 ", "GD30"})
	assert.True(t, owned("AL30"))
	assert.True(t, owned("gd30"))
	assert.False(t, owned("AE38"))
}

func TestServiceOptions(t *testing.T) {
	c := &config.Config{
		OMS: config.OMSConfig{MarketID: "ROFX", ReconnectInterval: 60},
		Trading: config.TradingConfig{
			CaucionRate:   35,
			FarTenorDays:  1,
			MinReturn:     500,
			MinReturnKind: "absolute",
			ScanInterval:  10,
		},
		Alerts:  config.AlertsConfig{TopN: 5, CooldownSeconds: 300},
		Storage: config.StorageConfig{RawMessages: true, RetentionDays: 2},
	}
	opts := serviceOptions(c)
	assert.Equal(t, 5*time.Minute, opts.Cooldown)
	assert.Equal(t, 10*time.Second, opts.ScanInterval)
	assert.Equal(t, time.Minute, opts.ReconnectInterval)
	assert.Equal(t, 48*time.Hour, opts.Retention)
	assert.Equal(t, arbitrage.Threshold{Kind: arbitrage.ThresholdAbsolute, Value: 500}, opts.Scan.MinReturn)
	assert.Equal(t, 35.0, opts.Scan.AnnualRate)
	assert.Nil(t, opts.Scan.Owned)
}

func TestNewLogger(t *testing.T) {
	l, err := newLogger(config.LoggingConfig{Level: "nonsense", Format: "json"})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)

	file := filepath.Join(t.TempDir(), "scanner.log")
	l, err = newLogger(config.LoggingConfig{Level: "debug", Format: "text", File: file})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	l.Debug("hello")
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestBuildRegistry_MarketFeeRates(t *testing.T) {
	tickers := filepath.Join(t.TempDir(), "tickers.csv")
	require.NoError(t, os.WriteFile(tickers, []byte("AL30\nSPY\n"), 0o644))

	c := &config.Config{Trading: config.TradingConfig{
		TickersFile:    tickers,
		CommissionRate: 0.1,
		MarketFeeRates: map[string]float64{"bond": 0.5},
	}}
	l := logrus.New()
	l.SetOutput(io.Discard)
	reg := buildRegistry(c, l)

	al30, ok := reg.Instrument("AL30")
	require.True(t, ok)
	assert.Equal(t, 0.5, al30.Near.Fees().MarketFeeRate)

	spy, ok := reg.Instrument("SPY")
	require.True(t, ok)
	assert.Equal(t, models.CedearMarketFeeRate, spy.Far.Fees().MarketFeeRate)
}
