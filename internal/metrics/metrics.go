// Package metrics provides the centralized Prometheus metrics registry for race control.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	RegistrationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "race_control",
		Name:      "registrations_total",
		Help:      "Total number of rider registrations",
	})
	RacesStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "race_control",
		Name:      "races_started_total",
		Help:      "Total number of races started",
	})
	RacesFinishedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "race_control",
		Name:      "races_finished_total",
		Help:      "Total number of races finished",
	})
	RidersStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "race_control",
		Name:      "riders_started_total",
		Help:      "Total number of riders started across all mass starts",
	})
	RidersFinishedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "race_control",
		Name:      "riders_finished_total",
		Help:      "Total number of individual rider finishes",
	})
	StatusOverridesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "race_control",
		Name:      "status_overrides_total",
		Help:      "Total number of administrative result status overrides",
	}, []string{"status"})
	WeatherRefreshesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "race_control",
		Name:      "weather_refreshes_total",
		Help:      "Total number of weather snapshot refreshes",
	})
	WeatherRefreshErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "race_control",
		Name:      "weather_refresh_errors_total",
		Help:      "Total number of failed weather snapshot refreshes",
	})
)

// Gauge metrics
var (
	RacesInProgress = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "race_control",
		Name:      "races_in_progress",
		Help:      "Number of races currently in progress",
	})
	StandingsWatchers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "race_control",
		Name:      "standings_watchers",
		Help:      "Number of connected live standings watchers",
	})
)

// Histogram metrics
var (
	PositionRecomputeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "race_control",
		Name:      "position_recompute_duration_seconds",
		Help:      "Duration of full position recomputations in seconds",
		Buckets:   prometheus.DefBuckets,
	})
	StandingsQueryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "race_control",
		Name:      "standings_query_duration_seconds",
		Help:      "Duration of live standings reads in seconds",
		Buckets:   prometheus.DefBuckets,
	})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(RegistrationsTotal)
		registry.MustRegister(RacesStartedTotal)
		registry.MustRegister(RacesFinishedTotal)
		registry.MustRegister(RidersStartedTotal)
		registry.MustRegister(RidersFinishedTotal)
		registry.MustRegister(StatusOverridesTotal)
		registry.MustRegister(WeatherRefreshesTotal)
		registry.MustRegister(WeatherRefreshErrorsTotal)

		registry.MustRegister(RacesInProgress)
		registry.MustRegister(StandingsWatchers)

		registry.MustRegister(PositionRecomputeDuration)
		registry.MustRegister(StandingsQueryDuration)
	})
	return registry
}

// Handler returns an HTTP handler serving the registry
func Handler() http.Handler {
	return promhttp.HandlerFor(InitRegistry(), promhttp.HandlerOpts{})
}
