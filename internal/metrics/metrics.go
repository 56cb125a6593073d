// Package metrics exposes Prometheus instrumentation for puzzle work.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "timelock"

// Interruption reasons for SolveInterruptions.
const (
	ReasonCancelled  = "cancelled"
	ReasonCheckpoint = "checkpoint_failed"
)

// Metrics provides all application metrics.
type Metrics struct {
	PuzzlesGenerated    prometheus.Counter
	CalibrationRate     prometheus.Gauge
	SquaringsCompleted  prometheus.Counter
	SolveDuration       prometheus.Histogram
	SolveInterruptions  *prometheus.CounterVec
	RemainingIterations prometheus.Gauge
}

// New creates a Metrics instance registered on reg. A nil reg leaves the
// collectors unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		PuzzlesGenerated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "puzzles_generated_total",
			Help:      "Total number of puzzles generated",
		}),
		CalibrationRate: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calibration_rate_squarings_per_second",
			Help:      "Most recently measured squaring rate",
		}),
		SquaringsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "squarings_completed_total",
			Help:      "Total number of modular squarings performed while solving",
		}),
		SolveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solve_duration_seconds",
			Help:      "Wall time of solve sessions that ran to completion",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		SolveInterruptions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solve_interruptions_total",
			Help:      "Total number of solve sessions stopped before completion",
		}, []string{"reason"}),
		RemainingIterations: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "remaining_iterations",
			Help:      "Squarings left on the puzzle being solved",
		}),
	}
}

// RecordGenerated increments the puzzles generated counter.
func (m *Metrics) RecordGenerated() {
	m.PuzzlesGenerated.Inc()
}

// SetCalibrationRate sets the calibration gauge.
func (m *Metrics) SetCalibrationRate(rate uint64) {
	m.CalibrationRate.Set(float64(rate))
}

// AddSquarings adds n squarings to the completed counter.
func (m *Metrics) AddSquarings(n uint64) {
	m.SquaringsCompleted.Add(float64(n))
}

// SetRemaining sets the remaining iterations gauge.
func (m *Metrics) SetRemaining(remaining uint64) {
	m.RemainingIterations.Set(float64(remaining))
}

// ObserveSolveDuration records the duration of a completed solve.
func (m *Metrics) ObserveSolveDuration(d time.Duration) {
	m.SolveDuration.Observe(d.Seconds())
}

// RecordInterruption increments the interruptions counter with reason.
func (m *Metrics) RecordInterruption(reason string) {
	m.SolveInterruptions.WithLabelValues(reason).Inc()
}

// Server provides an HTTP server for Prometheus metrics.
type Server struct {
	httpServer *http.Server
	address    string
}

// NewServer creates a metrics HTTP server exposing the collectors in g.
func NewServer(address string, g prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              address,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		address: address,
	}
}

// Start blocks serving metrics until the server is shut down.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the metrics HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.address
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
