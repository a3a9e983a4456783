package repository

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "classroom_repository_events_published_total",
	Help: "The total number of change events published by a repository",
}, []string{"repository", "kind"})

var refetches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "classroom_repository_refetches_total",
	Help: "The total number of coalesced full re-fetches executed by subscriptions",
}, []string{"repository"})

var valuesEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "classroom_repository_values_emitted_total",
	Help: "The total number of values delivered to subscribers",
}, []string{"repository"})

var valuesSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "classroom_repository_values_suppressed_total",
	Help: "The total number of values withheld because they repeated the previous delivery",
}, []string{"repository"})

var streamFetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "classroom_repository_stream_fetch_failures_total",
	Help: "The total number of fetches inside ObserveAll that failed and were swallowed",
}, []string{"repository"})

var updatesDowngraded = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "classroom_repository_updates_downgraded_total",
	Help: "The total number of update events that overflowed a subscriber buffer and became a re-fetch signal",
}, []string{"repository"})

var subscriptionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "classroom_repository_subscriptions_active",
	Help: "The number of live ObserveAll subscriptions",
}, []string{"repository"})
