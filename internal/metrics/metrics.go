// Package metrics holds the typed Prometheus counters incremented by the
// store, the zone authority, and the HTTP/DNS front ends.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StorePacketsInserted counts signed packets written for a key with no
	// prior row.
	StorePacketsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pkarrdns_store_packets_inserted_total",
		Help: "Total number of signed packets inserted into the store for a new key",
	})

	// StorePacketsUpdated counts signed packets that replaced an older row
	// for the same key.
	StorePacketsUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pkarrdns_store_packets_updated_total",
		Help: "Total number of signed packets that replaced an older row for the same key",
	})

	// StorePacketsRemoved counts successful store.Remove calls.
	StorePacketsRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pkarrdns_store_packets_removed_total",
		Help: "Total number of signed packets removed from the store",
	})

	// PkarrPublishUpdate counts accepted PUTs that changed a zone.
	PkarrPublishUpdate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pkarrdns_pkarr_publish_update_total",
		Help: "Total number of publish requests that updated the in-memory zone",
	})

	// PkarrPublishNoop counts accepted-but-stale PUTs.
	PkarrPublishNoop = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pkarrdns_pkarr_publish_noop_total",
		Help: "Total number of publish requests rejected as stale (older or equal timestamp)",
	})

	// PkarrPublishError counts publish requests that failed for any other reason.
	PkarrPublishError = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pkarrdns_pkarr_publish_error_total",
		Help: "Total number of publish requests that failed decode, verification, or storage",
	})

	// DNSQueriesTotal tracks DNS queries processed by the authoritative server.
	DNSQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pkarrdns_dns_queries_total",
		Help: "Total number of DNS queries processed",
	}, []string{"qtype", "rcode", "protocol"})

	// DNSQueryDuration tracks DNS query processing latency.
	DNSQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pkarrdns_dns_query_duration_seconds",
		Help:    "Histogram of DNS query processing duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"protocol"})

	// HTTPRequestsTotal tracks HTTP relay requests by route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pkarrdns_http_requests_total",
		Help: "Total number of HTTP relay requests",
	}, []string{"route", "method", "status"})

	// HTTPRequestDuration tracks HTTP relay request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pkarrdns_http_request_duration_seconds",
		Help:    "Histogram of HTTP relay request duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// RateLimitRejections counts requests rejected by the rate limiter.
	RateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pkarrdns_rate_limit_rejections_total",
		Help: "Total number of requests rejected by the PUT rate limiter",
	})

	// ZonesLRUEvictions counts the bounded zones map evicting a key.
	ZonesLRUEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pkarrdns_zones_lru_evictions_total",
		Help: "Total number of keys evicted from the bounded in-memory zones cache",
	})

	// ZonesLRURehydrations counts a lookup re-loading an evicted zone from the store.
	ZonesLRURehydrations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pkarrdns_zones_lru_rehydrations_total",
		Help: "Total number of zone lookups that re-hydrated a key evicted from the in-memory cache",
	})

	// AnycastAnnounced tracks the BGP announcement state.
	AnycastAnnounced = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pkarrdns_anycast_announced",
		Help: "Binary indicator of anycast VIP announcement status (1 = announcing, 0 = withdrawn)",
	})
)
