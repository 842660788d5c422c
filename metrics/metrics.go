package metrics

import (
	"time"

	"github.com/meghashyamc/omnisearch/services/search"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "omnisearch"

// Metrics holds the service's prometheus collectors. It implements the
// observer interfaces of the search scheduler, the change tracker and the
// item cache.
type Metrics struct {
	searches       *prometheus.CounterVec
	searchDuration prometheus.Histogram
	providerPolls  *prometheus.CounterVec
	providerErrors *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	trackerChanges *prometheus.CounterVec

	reg prometheus.Registerer
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Searches run to completion, by outcome",
		}, []string{"status"}),

		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Time from dispatch until a search finished or was cancelled",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		providerPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_polls_total",
			Help:      "Provider handle polls, by reported state",
		}, []string{"provider", "state"}),

		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider faults recorded on searches",
		}, []string{"provider"}),

		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "itemcache_total",
			Help:      "Derived data cache lookups, by result",
		}, []string{"result"}),

		trackerChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracker_changes_total",
			Help:      "Identities reported changed, by kind",
		}, []string{"kind"}),

		reg: reg,
	}

	reg.MustRegister(
		m.searches, m.searchDuration,
		m.providerPolls, m.providerErrors,
		m.cacheLookups, m.trackerChanges,
	)

	return m
}

func (m *Metrics) ObservePoll(provider string, state search.State) {
	m.providerPolls.WithLabelValues(provider, state.String()).Inc()
}

func (m *Metrics) ObserveProviderError(provider string) {
	m.providerErrors.WithLabelValues(provider).Inc()
}

func (m *Metrics) ObserveSearch(status string, elapsed time.Duration) {
	m.searches.WithLabelValues(status).Inc()
	m.searchDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveChange(kind string, count int) {
	if count <= 0 {
		return
	}
	m.trackerChanges.WithLabelValues(kind).Add(float64(count))
}

// WatchCache exports the number of identities held by the item cache.
func (m *Metrics) WatchCache(size func() int) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "itemcache_entries",
		Help:      "Identities with derived data in the item cache",
	}, func() float64 { return float64(size()) }))
}

// ObserveCacheLookup is passed to itemcache.WithObserver.
func (m *Metrics) ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
