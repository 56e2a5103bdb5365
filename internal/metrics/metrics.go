// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shoplist"

type Metrics struct {
	PropagationRuns     *prometheus.CounterVec
	ListsScanned        *prometheus.CounterVec
	ListsRewritten      *prometheus.CounterVec
	ConcurrentConflicts *prometheus.CounterVec
	ListMutations       *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PropagationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "propagation_runs_total",
			Help:      "Catalog propagation passes over all shopping lists, by operation.",
		}, []string{"operation"}),
		ListsScanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "propagation_lists_scanned_total",
			Help:      "Shopping lists loaded by catalog propagation, by operation.",
		}, []string{"operation"}),
		ListsRewritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "propagation_lists_rewritten_total",
			Help:      "Shopping lists persisted by catalog propagation, by operation.",
		}, []string{"operation"}),
		ConcurrentConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "concurrent_modification_total",
			Help:      "Optimistic concurrency conflicts observed on save, by service.",
		}, []string{"service"}),
		ListMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "list_mutations_total",
			Help:      "Shopping list item mutations, by operation and whether the list changed.",
		}, []string{"operation", "changed"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
	}
	reg.MustRegister(
		m.PropagationRuns,
		m.ListsScanned,
		m.ListsRewritten,
		m.ConcurrentConflicts,
		m.ListMutations,
		m.HTTPRequests,
	)
	return m
}

// ObservePropagation records one propagation pass.
func (m *Metrics) ObservePropagation(operation string, scanned, rewritten int) {
	m.PropagationRuns.WithLabelValues(operation).Inc()
	m.ListsScanned.WithLabelValues(operation).Add(float64(scanned))
	m.ListsRewritten.WithLabelValues(operation).Add(float64(rewritten))
}

func (m *Metrics) ObserveListMutation(operation string, changed bool) {
	m.ListMutations.WithLabelValues(operation, strconv.FormatBool(changed)).Inc()
}

func (m *Metrics) ObserveConflict(service string) {
	m.ConcurrentConflicts.WithLabelValues(service).Inc()
}

func (m *Metrics) ObserveHTTP(method string, status int) {
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}
