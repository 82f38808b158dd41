package nsfwapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var classifierDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "mrf_nsfwapi_duration_sec",
	Help:    "Duration of NSFW classifier requests",
	Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
})

var classifierCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mrf_nsfwapi_count",
	Help: "Number of NSFW classifier requests, by HTTP status code",
}, []string{"status"})

var classifierCacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "mrf_nsfwapi_cache_hits",
	Help: "Number of media classifications served from the score cache",
})

var classifierFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mrf_nsfwapi_failures",
	Help: "Number of media classifications which failed open, by cause",
}, []string{"cause"})

var verdicts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mrf_nsfwapi_verdicts",
	Help: "Number of activities classified, by verdict",
}, []string{"verdict"})
