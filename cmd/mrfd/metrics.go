package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var configUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mrfd_config_updates",
	Help: "Number of MRF configuration replacements through the admin API, by result",
}, []string{"result"})

var filterRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mrfd_filter_requests",
	Help: "Number of filter API requests, by outcome",
}, []string{"outcome"})
