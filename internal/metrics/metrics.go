package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Accounting metrics
	UsageMinutesConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wifimeter_usage_minutes_consumed_total",
			Help: "Total usage minutes accrued per connection",
		},
		[]string{"connection"},
	)

	TrackingActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wifimeter_tracking_active",
			Help: "Whether a connection is currently being tracked (0 or 1)",
		},
	)

	ResetsApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wifimeter_resets_applied_total",
			Help: "Total monthly resets applied",
		},
	)

	// Notification metrics
	AlertsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wifimeter_alerts_sent_total",
			Help: "Total alerts sent",
		},
		[]string{"kind"},
	)

	// Portal metrics
	ScrapesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wifimeter_scrapes_total",
			Help: "Total portal scrape attempts",
		},
		[]string{"result"},
	)

	// Storage metrics
	StorageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wifimeter_storage_errors_total",
			Help: "Total storage operation failures",
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(
		UsageMinutesConsumed,
		TrackingActive,
		ResetsApplied,
		AlertsSent,
		ScrapesTotal,
		StorageErrors,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
