package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/gregtusar/termarb/pkg/arbitrage"
	"github.com/gregtusar/termarb/pkg/caucion"
	"github.com/gregtusar/termarb/pkg/scanner"
	"github.com/gregtusar/termarb/pkg/store"
)

// Scanner is the read side of the scanner service.
type Scanner interface {
	Opportunities() []arbitrage.Trade
	Status() scanner.Status
	Symbols() []string
}

type HistoryReader interface {
	History(ctx context.Context, from, to time.Time, limit int) ([]store.Record, error)
}

type Server struct {
	scanner Scanner
	history HistoryReader
	metrics http.Handler
	logger  *logrus.Logger
	port    string
	router  chi.Router
}

// NewServer builds the router. history and metrics may be nil.
func NewServer(sc Scanner, history HistoryReader, metrics http.Handler, logger *logrus.Logger, port string) *Server {
	s := &Server{
		scanner: sc,
		history: history,
		metrics: metrics,
		logger:  logger,
		port:    port,
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx ends, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Starting API server on port %s", s.port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("Shutting down API server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/opportunities", s.handleOpportunities)
		r.Get("/stats", s.handleStats)
		r.Get("/symbols", s.handleSymbols)
		r.Get("/history", s.handleHistory)
		r.Get("/caucion", s.handleCaucion)
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.scanner.Status()
	status := "healthy"
	if !st.Connected {
		status = "degraded"
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"connected": st.Connected,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	trades := s.scanner.Opportunities()
	if limit, ok := intParam(r, "limit"); ok && limit >= 0 && limit < len(trades) {
		trades = trades[:limit]
	}
	s.writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.scanner.Status())
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.scanner.Symbols())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "history is not enabled")
		return
	}
	hours, ok := intParam(r, "hours")
	if !ok || hours <= 0 {
		hours = 24
	}
	limit, ok := intParam(r, "limit")
	if !ok {
		limit = 100
	}

	to := time.Now()
	records, err := s.history.History(r.Context(), to.Add(-time.Duration(hours)*time.Hour), to, limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to read history")
		s.writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

// handleCaucion prices a financing leg: ?days=&rate=&amount=[&fee=].
func (s *Server) handleCaucion(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days, err := strconv.Atoi(q.Get("days"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "days must be an integer")
		return
	}
	rate, err1 := strconv.ParseFloat(q.Get("rate"), 64)
	amount, err2 := strconv.ParseFloat(q.Get("amount"), 64)
	if err1 != nil || err2 != nil {
		s.writeError(w, http.StatusBadRequest, "rate and amount must be numbers")
		return
	}
	fee := 10.0
	if v := q.Get("fee"); v != "" {
		if fee, err = strconv.ParseFloat(v, 64); err != nil {
			s.writeError(w, http.StatusBadRequest, "fee must be a number")
			return
		}
	}

	res, err := caucion.Calculate(caucion.Params{
		Days: days, AnnualRate: rate, Notional: amount, BorrowerFeeRate: fee, LenderFeeRate: fee,
	})
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func intParam(r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}
