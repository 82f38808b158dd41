package mrf

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var pipelineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "mrf_pipeline_duration_sec",
	Help: "Total duration of MRF pipeline runs, by result",
}, []string{"result"})

var activitiesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mrf_activities_processed",
	Help: "Number of activities run through the MRF pipeline, by result",
}, []string{"result"})

var policyResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mrf_policy_results",
	Help: "Number of MRF policy invocations, by policy and result",
}, []string{"policy", "result"})

var notificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mrf_notifications_sent",
	Help: "Number of reject notifications sent, by service and status",
}, []string{"service", "status"})
