// Package metrics exposes the Prometheus collectors shared by the
// orchestration pipeline, the dispatch processor and the REST server.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jarvis_tasks_total",
		Help: "Tasks executed by the execution manager, by agent and outcome.",
	}, []string{"agent", "outcome"})

	policyDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jarvis_policy_denials_total",
		Help: "Policy engine denials by reason.",
	}, []string{"reason"})

	routerDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jarvis_router_decisions_total",
		Help: "Router outcomes by kind.",
	}, []string{"kind"})

	confirmations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jarvis_confirmations_total",
		Help: "Confirmation coordinator outcomes by status.",
	}, []string{"status"})

	eventAppends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jarvis_eventlog_appends_total",
		Help: "Envelopes appended to the durable event log.",
	})

	eventSyncFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jarvis_eventlog_sync_failures_total",
		Help: "fsync failures swallowed by the event log write path.",
	})

	approvalSyncFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jarvis_approval_journal_sync_failures_total",
		Help: "fsync failures swallowed by the approval file journal.",
	})

	dispatchTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jarvis_dispatch_requests_total",
		Help: "Intent requests reaching a status in the dispatch processor.",
	}, []string{"status"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jarvis_http_requests_total",
		Help: "HTTP requests served by the REST API.",
	}, []string{"route", "method", "code"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jarvis_http_request_duration_seconds",
		Help:    "Latency of REST API requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
)

// ObserveTask records one execution manager result.
func ObserveTask(agent, outcome string) {
	tasksTotal.WithLabelValues(agent, outcome).Inc()
}

// ObservePolicyDenial records a denied policy decision.
func ObservePolicyDenial(reason string) {
	policyDenials.WithLabelValues(reason).Inc()
}

// ObserveRouterDecision records a router outcome.
func ObserveRouterDecision(kind string) {
	routerDecisions.WithLabelValues(kind).Inc()
}

// ObserveConfirmation records a confirmation coordinator outcome.
func ObserveConfirmation(status string) {
	confirmations.WithLabelValues(status).Inc()
}

// ObserveEventAppend counts a successful envelope append.
func ObserveEventAppend() {
	eventAppends.Inc()
}

// ObserveEventSyncFailure counts an fsync failure on the event log.
func ObserveEventSyncFailure() {
	eventSyncFailures.Inc()
}

// ObserveApprovalSyncFailure counts an fsync failure on the approval journal.
func ObserveApprovalSyncFailure() {
	approvalSyncFailures.Inc()
}

// ObserveDispatch records a dispatch request reaching status.
func ObserveDispatch(status string) {
	dispatchTransitions.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(route, method string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpLatency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
