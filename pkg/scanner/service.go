// Package scanner hosts the arbitrage engine: it feeds market data into the
// registry, scans after every update, keeps the latest ranking and fans
// alerts out to notifiers.
package scanner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gregtusar/termarb/pkg/arbitrage"
	"github.com/gregtusar/termarb/pkg/cooldown"
	"github.com/gregtusar/termarb/pkg/instrument"
	"github.com/gregtusar/termarb/pkg/metrics"
	"github.com/gregtusar/termarb/pkg/models"
	"github.com/gregtusar/termarb/pkg/notify"
	"github.com/gregtusar/termarb/pkg/oms"
	"github.com/gregtusar/termarb/pkg/store"
)

// Scan triggers.
const (
	TriggerUpdate = "update"
	TriggerTimer  = "timer"
	TriggerManual = "manual"
)

const alertQueueSize = 64

// Feed is the market data session.
type Feed interface {
	SetToken(token string)
	SetHandler(h oms.MessageHandler)
	Connect(ctx context.Context) error
	Subscribe(subs []oms.Subscription) error
	IsConnected() bool
	Close() error
}

// TokenSource hands out the feed's session token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// History persists raw messages and scan results.
type History interface {
	AppendMessage(ctx context.Context, raw []byte, at time.Time) error
	SaveScan(ctx context.Context, scan store.Scan, trades []arbitrage.Trade) (string, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

type Options struct {
	Scan     arbitrage.ScanOptions
	MarketID string
	// TopN ranked trades are alerted per scan; 0 disables alerts.
	TopN     int
	Cooldown time.Duration
	// ScanInterval adds timer-driven scans; 0 scans on updates only.
	ScanInterval      time.Duration
	ReconnectInterval time.Duration
	StoreRawMessages  bool
	// Retention prunes history older than this; 0 keeps everything.
	Retention time.Duration
}

// Deps are the collaborators. Only Registry is required.
type Deps struct {
	Registry  *instrument.Registry
	Evaluator *arbitrage.Evaluator
	Feed      Feed
	Tokens    TokenSource
	History   History
	Notifier  notify.Notifier
	Cooldown  cooldown.Store
	Metrics   *metrics.Metrics
	Logger    *logrus.Logger
}

// Status is the service summary served by the API.
type Status struct {
	Connected             bool             `json:"connected"`
	Registry              instrument.Stats `json:"registry"`
	Scans                 int64            `json:"scans"`
	OpportunitiesDetected int64            `json:"opportunities_detected"`
	AlertsSent            int64            `json:"alerts_sent"`
	LastScanID            string           `json:"last_scan_id,omitempty"`
	LastScanAt            time.Time        `json:"last_scan_at,omitempty"`
	LastOpportunities     int              `json:"last_opportunities"`
	StartedAt             time.Time        `json:"started_at,omitempty"`
}

type Service struct {
	opts      Options
	registry  *instrument.Registry
	processor *arbitrage.Processor
	feed      Feed
	tokens    TokenSource
	history   History
	notifier  notify.Notifier
	cooldown  cooldown.Store
	metrics   *metrics.Metrics
	logger    *logrus.Logger

	// mu serializes every registry read and write.
	mu sync.Mutex

	stateMu    sync.RWMutex
	last       []arbitrage.Trade
	lastScanID string
	lastScanAt time.Time
	startedAt  time.Time

	scans         atomic.Int64
	opportunities atomic.Int64
	alertsSent    atomic.Int64

	alerts chan arbitrage.Trade
}

func New(opts Options, deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Cooldown == nil {
		deps.Cooldown = cooldown.NewMemory()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if opts.MarketID == "" {
		opts.MarketID = instrument.DefaultMarketID
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = time.Minute
	}
	return &Service{
		opts:      opts,
		registry:  deps.Registry,
		processor: arbitrage.NewProcessor(deps.Registry, deps.Evaluator),
		feed:      deps.Feed,
		tokens:    deps.Tokens,
		history:   deps.History,
		notifier:  deps.Notifier,
		cooldown:  deps.Cooldown,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		alerts:    make(chan arbitrage.Trade, alertQueueSize),
	}
}

// Run starts the service and blocks until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	go s.alertLoop(ctx)

	if err := s.Start(ctx); err != nil {
		return err
	}

	var scanC <-chan time.Time
	if s.opts.ScanInterval > 0 {
		t := time.NewTicker(s.opts.ScanInterval)
		defer t.Stop()
		scanC = t.C
	}
	watch := time.NewTicker(s.opts.ReconnectInterval)
	defer watch.Stop()
	prune := time.NewTicker(24 * time.Hour)
	defer prune.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case <-scanC:
			s.Scan(ctx, TriggerTimer)
		case <-watch.C:
			s.checkFeed(ctx)
		case <-prune.C:
			s.prune(ctx)
		}
	}
}

// Start announces the service, connects the feed and subscribes every
// registered symbol.
func (s *Service) Start(ctx context.Context) error {
	s.stateMu.Lock()
	s.startedAt = time.Now()
	s.stateMu.Unlock()

	stats := s.RegistryStats()
	s.logger.WithFields(logrus.Fields{
		"instruments": stats.TotalInstruments,
		"symbols":     stats.TotalSymbols,
		"rate":        s.opts.Scan.AnnualRate,
		"far_days":    s.opts.Scan.FarTenorDays,
	}).Info("Starting settlement arbitrage scanner")

	s.notice(ctx, notify.FormatStartup(notify.StartupInfo{
		Instruments:  stats.TotalInstruments,
		Symbols:      stats.TotalSymbols,
		AnnualRate:   s.opts.Scan.AnnualRate,
		FarTenorDays: s.opts.Scan.FarTenorDays,
		MinReturn:    thresholdLabel(s.opts.Scan.MinReturn),
		CooldownSecs: int(s.opts.Cooldown / time.Second),
	}))
	s.prune(ctx)

	if s.feed == nil {
		s.logger.Warn("No market data feed configured")
		return nil
	}
	s.feed.SetHandler(func(raw []byte) { s.HandleMessage(ctx, raw) })

	if err := s.connect(ctx); err != nil {
		s.notice(ctx, notify.MsgConnectionError)
		return fmt.Errorf("connect feed: %w", err)
	}
	s.notice(ctx, notify.FormatSubscribed(stats.TotalSymbols, thresholdLabel(s.opts.Scan.MinReturn)))
	return nil
}

func (s *Service) connect(ctx context.Context) error {
	if s.tokens != nil {
		token, err := s.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}
		s.feed.SetToken(token)
	}
	if err := s.feed.Connect(ctx); err != nil {
		return err
	}

	subs := s.Subscriptions()
	if err := s.feed.Subscribe(subs); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.metrics.SetConnected(true)
	s.logger.WithField("messages", len(subs)).Info("Subscribed to market data")
	return nil
}

func (s *Service) checkFeed(ctx context.Context) {
	if s.feed == nil {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"scans":         s.scans.Load(),
		"opportunities": s.opportunities.Load(),
		"alerts":        s.alertsSent.Load(),
	}).Info("Scanner stats")

	if s.feed.IsConnected() {
		s.metrics.SetConnected(true)
		return
	}
	s.metrics.SetConnected(false)
	s.logger.Warn("Feed disconnected, reconnecting")
	s.notice(ctx, notify.MsgReconnecting)

	if err := s.connect(ctx); err != nil {
		s.logger.WithError(err).Error("Reconnect failed")
		return
	}
	s.metrics.ReconnectsTotal.Inc()
	s.notice(ctx, notify.MsgReconnected)
}

func (s *Service) shutdown() {
	s.logger.Info("Stopping scanner")
	if s.feed != nil {
		if err := s.feed.Close(); err != nil {
			s.logger.WithError(err).Warn("Failed to close feed")
		}
		s.metrics.SetConnected(false)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.notice(ctx, notify.FormatStopped(s.opportunities.Load(), s.alertsSent.Load()))
}

func (s *Service) prune(ctx context.Context) {
	if s.history == nil || s.opts.Retention <= 0 {
		return
	}
	n, err := s.history.Prune(ctx, time.Now().Add(-s.opts.Retention))
	if err != nil {
		s.logger.WithError(err).Warn("Failed to prune history")
		return
	}
	if n > 0 {
		s.logger.WithField("rows", n).Info("Pruned history")
	}
}

// HandleMessage persists, parses and applies one feed message, then scans
// if any registered leg changed.
func (s *Service) HandleMessage(ctx context.Context, raw []byte) {
	now := time.Now()
	if s.history != nil && s.opts.StoreRawMessages {
		if err := s.history.AppendMessage(ctx, raw, now); err != nil {
			s.logger.WithError(err).Warn("Failed to store raw message")
		}
	}

	snaps, err := oms.ParseMarketData(raw, now)
	if err != nil {
		s.metrics.RecordMessage("invalid")
		s.logger.WithError(err).Debug("Discarding malformed message")
		return
	}
	if len(snaps) == 0 {
		s.metrics.RecordMessage("ignored")
		return
	}
	s.metrics.RecordMessage("parsed")

	if s.Apply(snaps) == 0 {
		return
	}
	s.Scan(ctx, TriggerUpdate)
}

// Apply stores snapshots on their legs and returns how many matched a
// registered symbol.
func (s *Service) Apply(snaps []models.Snapshot) int {
	s.mu.Lock()
	applied := 0
	for _, snap := range snaps {
		if s.registry.ApplySnapshot(snap.Symbol, snap) {
			applied++
		}
	}
	stats := s.registry.Stats()
	s.mu.Unlock()

	if applied > 0 {
		s.metrics.SnapshotsApplied.Add(float64(applied))
		s.metrics.InstrumentsWithData.WithLabelValues(string(models.TenorNear)).Set(float64(stats.WithNearData))
		s.metrics.InstrumentsWithData.WithLabelValues(string(models.TenorFar)).Set(float64(stats.WithFarData))
	}
	return applied
}

// Scan runs one pass over the registry, records it and queues alerts for
// the best trades. It returns the ranked trades that met the threshold.
func (s *Service) Scan(ctx context.Context, trigger string) []arbitrage.Trade {
	start := time.Now()

	s.mu.Lock()
	// at orders scans by the registry state they read.
	at := time.Now()
	cands := s.processor.Candidates(s.opts.Scan)
	priced := s.processor.PriceAll(cands, s.opts.Scan)
	s.mu.Unlock()

	trades := arbitrage.Select(priced, s.opts.Scan)

	var best float64
	if len(trades) > 0 {
		best = trades[0].ProfitLossPct
	}
	s.metrics.RecordScan(trigger, time.Since(start).Seconds(), len(cands), len(trades), best)
	s.scans.Add(1)
	s.opportunities.Add(int64(len(trades)))

	scanID := uuid.NewString()
	s.stateMu.Lock()
	if at.Before(s.lastScanAt) {
		s.stateMu.Unlock()
		s.logger.WithField("trigger", trigger).Debug("Discarding scan superseded by a newer one")
		return trades
	}
	s.last = trades
	s.lastScanID = scanID
	s.lastScanAt = at
	s.stateMu.Unlock()

	if len(trades) == 0 {
		return trades
	}

	s.logger.WithFields(logrus.Fields{
		"scan_id":       scanID,
		"trigger":       trigger,
		"candidates":    len(cands),
		"opportunities": len(trades),
		"best_ticker":   trades[0].Ticker,
		"best_pct":      best,
	}).Info("Opportunities detected")

	if s.history != nil {
		if _, err := s.history.SaveScan(ctx, store.Scan{ID: scanID, At: at, Candidates: len(cands)}, trades); err != nil {
			s.logger.WithError(err).Warn("Failed to save scan")
		}
	}

	s.dispatch(ctx, trades)
	return trades
}

// dispatch queues the top trades whose ticker is outside its cooldown.
func (s *Service) dispatch(ctx context.Context, trades []arbitrage.Trade) {
	if s.notifier == nil || s.opts.TopN <= 0 {
		return
	}
	n := min(s.opts.TopN, len(trades))
	for _, t := range trades[:n] {
		ok, err := s.cooldown.Acquire(ctx, t.Ticker, s.opts.Cooldown)
		if err != nil {
			s.metrics.RecordAlert("error")
			s.logger.WithError(err).WithField("ticker", t.Ticker).Warn("Cooldown check failed")
			continue
		}
		if !ok {
			s.metrics.RecordAlert("cooldown")
			s.logger.WithField("ticker", t.Ticker).Debug("Alert in cooldown")
			continue
		}
		select {
		case s.alerts <- t:
		default:
			s.metrics.RecordAlert("dropped")
			s.logger.WithField("ticker", t.Ticker).Warn("Alert queue full, dropping alert")
		}
	}
}

func (s *Service) alertLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.alerts:
			s.sendAlert(ctx, t)
		}
	}
}

func (s *Service) sendAlert(ctx context.Context, t arbitrage.Trade) {
	if err := s.notifier.Send(ctx, notify.FormatAlert(t)); err != nil {
		s.metrics.RecordAlert("failed")
		s.logger.WithError(err).WithField("ticker", t.Ticker).Error("Failed to send alert")
		return
	}
	s.alertsSent.Add(1)
	s.metrics.RecordAlert("sent")
	s.logger.WithFields(logrus.Fields{
		"ticker": t.Ticker,
		"pct":    t.ProfitLossPct,
	}).Info("Alert sent")
}

func (s *Service) notice(ctx context.Context, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, text); err != nil {
		s.logger.WithError(err).Warn("Failed to send notice")
	}
}

// Opportunities returns the ranking from the last scan.
func (s *Service) Opportunities() []arbitrage.Trade {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	out := make([]arbitrage.Trade, len(s.last))
	copy(out, s.last)
	return out
}

func (s *Service) RegistryStats() instrument.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Stats()
}

func (s *Service) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.AllSymbols()
}

// Subscriptions is the subscription manifest for every registered symbol.
func (s *Service) Subscriptions() []oms.Subscription {
	return oms.BuildSubscriptions(s.Symbols(), s.opts.MarketID, nil, 0)
}

func (s *Service) Status() Status {
	st := Status{
		Registry:              s.RegistryStats(),
		Scans:                 s.scans.Load(),
		OpportunitiesDetected: s.opportunities.Load(),
		AlertsSent:            s.alertsSent.Load(),
	}
	if s.feed != nil {
		st.Connected = s.feed.IsConnected()
	}

	s.stateMu.RLock()
	st.LastScanID = s.lastScanID
	st.LastScanAt = s.lastScanAt
	st.LastOpportunities = len(s.last)
	st.StartedAt = s.startedAt
	s.stateMu.RUnlock()
	return st
}

func thresholdLabel(th arbitrage.Threshold) string {
	if th.Kind == arbitrage.ThresholdAbsolute {
		return fmt.Sprintf("$%g", th.Value)
	}
	return fmt.Sprintf("%g%%", th.Value)
}
