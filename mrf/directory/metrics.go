package directory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var userCacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "mrf_directory_cache_hits",
	Help: "Number of cache hits for actor lookups",
})

var userCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "mrf_directory_cache_misses",
	Help: "Number of cache misses for actor lookups",
})

var userRequestsCoalesced = promauto.NewCounter(prometheus.CounterOpts{
	Name: "mrf_directory_requests_coalesced",
	Help: "Number of actor lookups coalesced into an in-flight request",
})

var actorFetches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mrf_directory_actor_fetches",
	Help: "Number of remote actor document fetches, by status",
}, []string{"status"})

var actorFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "mrf_directory_actor_fetch_duration",
	Help:    "Time to fetch a remote actor document",
	Buckets: prometheus.ExponentialBucketsRange(0.001, 30, 20),
}, []string{"status"})
