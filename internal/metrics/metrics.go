// Package metrics defines the prometheus counters exposed at /metrics
// (spec §7: "Metrics increment cache_hits{type=secret|key} and
// cache_miss{type=secret|key} on every lookup path").
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_hits",
		Help: "Count of secret lookups served from the in-memory cache.",
	}, []string{"type"})

	cacheMiss = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_miss",
		Help: "Count of secret lookups that required an on-demand upstream fetch or failed.",
	}, []string{"type"})

	pacerCrashed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pacer_crashed",
		Help: "1 if the request pacer worker has crashed, 0 otherwise.",
	})

	refreshErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refresh_errors_total",
		Help: "Count of refresh loop errors by classified kind.",
	}, []string{"kind"})

	cacheSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cache_size",
		Help: "Current cache entry count per tenant, by type.",
	}, []string{"type", "tenant"})

	numClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "num_clients",
		Help: "Number of tenants currently registered.",
	})
)

// RecordHit increments cache_hits for the given lookup type ("secret" or
// "key").
func RecordHit(lookupType string) {
	cacheHits.WithLabelValues(lookupType).Inc()
}

// RecordMiss increments cache_miss for the given lookup type.
func RecordMiss(lookupType string) {
	cacheMiss.WithLabelValues(lookupType).Inc()
}

// SetPacerCrashed sets the pacer_crashed gauge.
func SetPacerCrashed(crashed bool) {
	if crashed {
		pacerCrashed.Set(1)
		return
	}
	pacerCrashed.Set(0)
}

// RecordRefreshError increments refresh_errors_total for a classified
// error kind.
func RecordRefreshError(kind string) {
	refreshErrors.WithLabelValues(kind).Inc()
}

// SetCacheSize reports one tenant's current cache sizes, mirrored from
// the /stats snapshot (spec §9, grounded on the original's per-client
// cache_size gauge).
func SetCacheSize(tenant string, secretCount, keymapCount int) {
	cacheSize.WithLabelValues("secret", tenant).Set(float64(secretCount))
	cacheSize.WithLabelValues("keymap", tenant).Set(float64(keymapCount))
}

// SetNumClients reports the registry's current tenant count.
func SetNumClients(n int) {
	numClients.Set(float64(n))
}
