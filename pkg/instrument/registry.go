package instrument

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gregtusar/termarb/pkg/models"
	"github.com/sirupsen/logrus"
)

// Registry owns the tracked instruments. It is not safe for concurrent use;
// callers serialize updates and scans.
type Registry struct {
	opts        Options
	instruments []*Instrument
	byTicker    map[string]*Instrument
	bySymbol    map[string]*Instrument
	logger      *logrus.Logger
}

// Stats summarizes how much of the registry has market data.
type Stats struct {
	TotalInstruments int `json:"total_instruments"`
	WithNearData     int `json:"with_ci_data"`
	WithFarData      int `json:"with_24hs_data"`
	TotalSymbols     int `json:"total_symbols"`
}

func NewRegistry(opts Options, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Registry{
		opts:     opts.withDefaults(),
		byTicker: make(map[string]*Instrument),
		bySymbol: make(map[string]*Instrument),
		logger:   logger,
	}
}

// Add registers ticker. A ticker already present is left untouched and
// reported as not added.
func (r *Registry) Add(ticker string) (*Instrument, bool) {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" || strings.HasPrefix(ticker, "#") {
		return nil, false
	}
	if inst, ok := r.byTicker[ticker]; ok {
		return inst, false
	}

	inst := NewInstrument(ticker, r.opts)
	r.instruments = append(r.instruments, inst)
	r.byTicker[ticker] = inst
	for _, sym := range inst.Symbols() {
		r.bySymbol[sym] = inst
	}
	return inst, true
}

// Load registers every usable ticker and returns how many were added.
func (r *Registry) Load(tickers []string) int {
	added := 0
	for _, t := range tickers {
		if _, ok := r.Add(t); ok {
			added++
		}
	}
	return added
}

// LoadFile loads tickers from a CSV file. A missing or unreadable file is
// logged and leaves the registry as it was.
func (r *Registry) LoadFile(path string) int {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.logger.WithField("file", path).Warn("Tickers file not found")
		} else {
			r.logger.WithError(err).WithField("file", path).Error("Failed to open tickers file")
		}
		return 0
	}
	defer f.Close()

	tickers, err := ReadTickers(f, r.logger)
	if err != nil {
		r.logger.WithError(err).WithField("file", path).Error("Failed to read tickers file")
	}
	added := r.Load(tickers)
	r.logger.WithFields(logrus.Fields{
		"file":    path,
		"tickers": added,
	}).Info("Loaded tickers")
	return added
}

// ReadTickers reads the first column of each CSV row. Blank rows, comment
// rows and rows that fail to parse are skipped. The returned error only
// reports a failure of the underlying reader; tickers read so far are kept.
func ReadTickers(src io.Reader, logger *logrus.Logger) ([]string, error) {
	var tickers []string
	scanner := bufio.NewScanner(src)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		row, err := csv.NewReader(strings.NewReader(text)).Read()
		if err != nil {
			if logger != nil {
				logger.WithError(err).WithField("line", line).Warn("Skipping malformed ticker row")
			}
			continue
		}
		if len(row) == 0 {
			continue
		}
		ticker := strings.TrimSpace(row[0])
		if ticker == "" || strings.HasPrefix(ticker, "#") {
			continue
		}
		tickers = append(tickers, ticker)
	}
	if err := scanner.Err(); err != nil {
		return tickers, fmt.Errorf("read tickers: %w", err)
	}
	return tickers, nil
}

// ApplySnapshot routes snap to the leg with the given symbol and reports
// whether one matched.
func (r *Registry) ApplySnapshot(symbol string, snap models.Snapshot) bool {
	inst, ok := r.bySymbol[symbol]
	if !ok {
		return false
	}
	return inst.Apply(symbol, snap)
}

// AllSymbols returns every leg symbol in registration order.
func (r *Registry) AllSymbols() []string {
	symbols := make([]string, 0, len(r.instruments)*2)
	for _, inst := range r.instruments {
		symbols = append(symbols, inst.Symbols()...)
	}
	return symbols
}

// Instruments returns the tracked instruments in registration order.
func (r *Registry) Instruments() []*Instrument {
	out := make([]*Instrument, len(r.instruments))
	copy(out, r.instruments)
	return out
}

func (r *Registry) Instrument(ticker string) (*Instrument, bool) {
	inst, ok := r.byTicker[ticker]
	return inst, ok
}

func (r *Registry) Len() int {
	return len(r.instruments)
}

func (r *Registry) Stats() Stats {
	s := Stats{TotalInstruments: len(r.instruments)}
	for _, inst := range r.instruments {
		if inst.Near.HasData() {
			s.WithNearData++
		}
		if inst.Far.HasData() {
			s.WithFarData++
		}
	}
	s.TotalSymbols = 2 * len(r.instruments)
	return s
}
