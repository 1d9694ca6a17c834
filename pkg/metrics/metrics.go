// Package metrics exposes scanner instrumentation to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	MessagesTotal       *prometheus.CounterVec
	SnapshotsApplied    prometheus.Counter
	ScansTotal          *prometheus.CounterVec
	ScanDuration        prometheus.Histogram
	Candidates          prometheus.Gauge
	Opportunities       prometheus.Gauge
	BestReturnPct       prometheus.Gauge
	AlertsTotal         *prometheus.CounterVec
	FeedConnected       prometheus.Gauge
	ReconnectsTotal     prometheus.Counter
	InstrumentsWithData *prometheus.GaugeVec
}

// New registers every metric on its own registry, together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		MessagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "termarb_feed_messages_total",
			Help: "Market data messages received, by parse outcome",
		}, []string{"outcome"}),

		SnapshotsApplied: f.NewCounter(prometheus.CounterOpts{
			Name: "termarb_snapshots_applied_total",
			Help: "Snapshots applied to a registered leg",
		}),

		ScansTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "termarb_scans_total",
			Help: "Scan passes, by trigger",
		}, []string{"trigger"}),

		ScanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "termarb_scan_duration_seconds",
			Help:    "Time to screen, price and rank every candidate",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}),

		Candidates: f.NewGauge(prometheus.GaugeOpts{
			Name: "termarb_candidates",
			Help: "Candidates that passed screening in the last scan",
		}),

		Opportunities: f.NewGauge(prometheus.GaugeOpts{
			Name: "termarb_opportunities",
			Help: "Trades that passed the return threshold in the last scan",
		}),

		BestReturnPct: f.NewGauge(prometheus.GaugeOpts{
			Name: "termarb_best_return_pct",
			Help: "Return of the best trade in the last scan, percent",
		}),

		AlertsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "termarb_alerts_total",
			Help: "Alerts by outcome (sent, cooldown, failed)",
		}, []string{"outcome"}),

		FeedConnected: f.NewGauge(prometheus.GaugeOpts{
			Name: "termarb_feed_connected",
			Help: "1 while the market data feed is connected",
		}),

		ReconnectsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "termarb_feed_reconnects_total",
			Help: "Successful feed reconnections",
		}),

		InstrumentsWithData: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "termarb_instruments_with_data",
			Help: "Instruments with a snapshot on the tenor",
		}, []string{"tenor"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordMessage(outcome string) {
	m.MessagesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordScan(trigger string, seconds float64, candidates, opportunities int, bestPct float64) {
	m.ScansTotal.WithLabelValues(trigger).Inc()
	m.ScanDuration.Observe(seconds)
	m.Candidates.Set(float64(candidates))
	m.Opportunities.Set(float64(opportunities))
	m.BestReturnPct.Set(bestPct)
}

func (m *Metrics) RecordAlert(outcome string) {
	m.AlertsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetConnected(connected bool) {
	if connected {
		m.FeedConnected.Set(1)
		return
	}
	m.FeedConnected.Set(0)
}
