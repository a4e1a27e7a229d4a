// Package metrics exposes backend health as Prometheus series.
//
// Series (namespace "meshview"):
//
//	blocks_received_total   counter  headers delivered by the node
//	best_block              gauge    number of the latest header
//	backend_connected       gauge    1 while a subscription is live
//	backend_restarts_total  counter  reconnect attempts
//	backend_errors_total    counter  sessions that ended with an error
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "meshview"

type Metrics struct {
	blocksReceived prometheus.Counter
	bestBlock      prometheus.Gauge
	connected      prometheus.Gauge
	restarts       prometheus.Counter
	errors         prometheus.Counter

	registry *prometheus.Registry
}

// New registers the series on reg, or on a fresh registry when reg is nil.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		blocksReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_received_total",
			Help:      "Block headers received from the node.",
		}),
		bestBlock: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_block",
			Help:      "Number of the most recent block header.",
		}),
		connected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_connected",
			Help:      "1 while the backend holds a live subscription.",
		}),
		restarts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_restarts_total",
			Help:      "Backend reconnect attempts.",
		}),
		errors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Backend sessions that ended with an error.",
		}),
		registry: reg,
	}
}

func (m *Metrics) ObserveBlock(number uint32) {
	if m == nil {
		return
	}
	m.blocksReceived.Inc()
	m.bestBlock.Set(float64(number))
}

func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

func (m *Metrics) IncRestart() {
	if m == nil {
		return
	}
	m.restarts.Inc()
}

func (m *Metrics) IncError() {
	if m == nil {
		return
	}
	m.errors.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done. An empty addr is a no-op.
func Serve(ctx context.Context, addr string, m *Metrics, log zerolog.Logger) error {
	if addr == "" || m == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
