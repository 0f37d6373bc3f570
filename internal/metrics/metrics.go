// Package metrics exposes Prometheus metrics for the referee server.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ptcgai/referee-server-go/internal/game/rules"
)

const namespace = "ptcg_referee"

// Metrics holds every collector of the server on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	matchesStarted  prometheus.Counter
	matchesFinished *prometheus.CounterVec
	activeMatches   prometheus.Gauge

	actions        *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec

	events *prometheus.CounterVec

	rpcRequests *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec

	feedConnections prometheus.Gauge
}

// New creates and registers the collectors. The Go runtime and process
// collectors are included.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		matchesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_started_total",
			Help:      "Total number of matches set up",
		}),
		matchesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_finished_total",
			Help:      "Total number of matches that ended, by reason",
		}, []string{"reason"}),
		activeMatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_matches",
			Help:      "Number of matches currently in progress",
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Total number of handled requests, by action and result",
		}, []string{"action", "result"}),
		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Time spent handling a request, by action",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}, []string{"action"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of match events published, by type",
		}, []string{"type"}),
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "Total number of gRPC requests, by method and status code",
		}, []string{"method", "code"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "gRPC request latency, by method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		feedConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_connections",
			Help:      "Number of open WebSocket feed connections",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.matchesStarted,
		m.matchesFinished,
		m.activeMatches,
		m.actions,
		m.actionDuration,
		m.events,
		m.rpcRequests,
		m.rpcDuration,
		m.feedConnections,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MatchStarted implements game.Hooks.
func (m *Metrics) MatchStarted(string) {
	m.matchesStarted.Inc()
	m.activeMatches.Inc()
}

// MatchEnded implements game.Hooks.
func (m *Metrics) MatchEnded(_, _, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.matchesFinished.WithLabelValues(reason).Inc()
	m.activeMatches.Dec()
}

// ActionHandled implements game.Hooks.
func (m *Metrics) ActionHandled(action string, success bool, elapsed time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.actions.WithLabelValues(action, result).Inc()
	m.actionDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// ObserveEvent counts one published match event.
func (m *Metrics) ObserveEvent(e rules.Event) {
	m.events.WithLabelValues(string(e.Type)).Inc()
}

// Watch counts every event published on bus. The returned handle
// unsubscribes.
func (m *Metrics) Watch(bus *rules.EventBus) int {
	return bus.Subscribe(m.ObserveEvent)
}

// RecordRPC records one finished gRPC call.
func (m *Metrics) RecordRPC(method, code string, elapsed time.Duration) {
	m.rpcRequests.WithLabelValues(method, code).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// FeedConnected tracks an opened feed connection.
func (m *Metrics) FeedConnected() { m.feedConnections.Inc() }

// FeedDisconnected tracks a closed feed connection.
func (m *Metrics) FeedDisconnected() { m.feedConnections.Dec() }

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve exposes /metrics on address until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, address string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("starting metrics server", zap.String("address", address))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
