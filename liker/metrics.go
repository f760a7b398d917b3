package liker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var itemsViewed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "feedpilot_items_viewed_total",
	Help: "Number of feed items evaluated",
})

var actionsTaken = promauto.NewCounter(prometheus.CounterOpts{
	Name: "feedpilot_actions_total",
	Help: "Number of actions performed",
})

var actionErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "feedpilot_action_errors_total",
	Help: "Number of actions aborted by a dispatch failure",
})

var passesRun = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "feedpilot_passes_total",
	Help: "Number of processing passes, by trigger source",
}, []string{"source"})

var decisionsMade = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "feedpilot_decisions_total",
	Help: "Number of decisions, by verdict",
}, []string{"verdict"})

var rateLimited = promauto.NewCounter(prometheus.CounterOpts{
	Name: "feedpilot_rate_limited_total",
	Help: "Number of actions skipped by the hourly ceiling",
})

var suspensions = promauto.NewCounter(prometheus.CounterOpts{
	Name: "feedpilot_suspensions_total",
	Help: "Number of engines suspended by context invalidation",
})

var reinits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "feedpilot_reinits_total",
	Help: "Number of engine reinitializations, by reason",
}, []string{"reason"})

var viewedToday = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "feedpilot_items_viewed_today",
	Help: "Items viewed today, as last reported by the engine",
})

var actedToday = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "feedpilot_actions_taken_today",
	Help: "Actions taken today, as last reported by the engine",
})
