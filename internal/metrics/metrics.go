// Package metrics exposes Prometheus collectors for sync passes and rule
// changes.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/imamik/sgsync/internal/secgroup"
)

const namespace = "sgsync"

// Pass results.
const (
	ResultSuccess     = "success"
	ResultPartial     = "partial"
	ResultSkipped     = "skipped"
	ResultInterrupted = "interrupted"
)

// Metrics holds the collectors registered for one process.
type Metrics struct {
	passesTotal      *prometheus.CounterVec
	passDuration     prometheus.Histogram
	lastSuccess      prometheus.Gauge
	desiredListSize  prometheus.Gauge
	ruleChangesTotal *prometheus.CounterVec
	targetsTotal     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		passesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pass",
				Name:      "total",
				Help:      "Total number of sync passes by result",
			},
			[]string{"result"},
		),
		passDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pass",
				Name:      "duration_seconds",
				Help:      "Duration of sync passes in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4min
			},
		),
		lastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pass",
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last pass that converged every target",
			},
		),
		desiredListSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "iplist",
				Name:      "entries",
				Help:      "Number of CIDRs in the last fetched list",
			},
		),
		ruleChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rules",
				Name:      "changes_total",
				Help:      "Total number of rule changes by target, action and status",
			},
			[]string{"target", "action", "status"},
		),
		targetsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "targets",
				Name:      "total",
				Help:      "Total number of target reconciliations by target and result",
			},
			[]string{"target", "result"},
		),
	}
	reg.MustRegister(
		m.passesTotal,
		m.passDuration,
		m.lastSuccess,
		m.desiredListSize,
		m.ruleChangesTotal,
		m.targetsTotal,
	)
	return m
}

// RuleChange counts one revoke or authorize call.
func (m *Metrics) RuleChange(target secgroup.Target, action string, status secgroup.Status) {
	m.ruleChangesTotal.WithLabelValues(target.String(), action, status.String()).Inc()
}

// TargetDone counts one target reconciliation.
func (m *Metrics) TargetDone(target secgroup.Target, result string) {
	m.targetsTotal.WithLabelValues(target.String(), result).Inc()
}

// ListFetched records the size of the desired list.
func (m *Metrics) ListFetched(entries int) {
	m.desiredListSize.Set(float64(entries))
}

// PassDone records a finished pass. Successful passes also move the last
// success timestamp to finished.
func (m *Metrics) PassDone(result string, duration time.Duration, finished time.Time) {
	m.passesTotal.WithLabelValues(result).Inc()
	m.passDuration.Observe(duration.Seconds())
	if result == ResultSuccess {
		m.lastSuccess.Set(float64(finished.Unix()))
	}
}

// Serve exposes the metrics of g on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, log zerolog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return serve(ctx, ln, g, log)
}

func serve(ctx context.Context, ln net.Listener, g prometheus.Gatherer, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}()

	log.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-done
		return nil
	}
	return fmt.Errorf("metrics server failed: %w", err)
}
