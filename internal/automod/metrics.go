package automod

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventProcessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "automod_event_duration_sec",
	Help: "Total duration of automod message processing",
}, []string{"type"})

var eventProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_event_processed",
	Help: "Number of message events processed",
}, []string{"type"})

var verdictCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_verdicts",
	Help: "Number of positive rule verdicts",
}, []string{"rule"})

var enforcementCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_enforcements",
	Help: "Number of enforcement actions attempted",
}, []string{"rule", "action"})

var suppressedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_suppressed",
	Help: "Number of verdicts suppressed by exemption or cooldown",
}, []string{"rule"})

var configCacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_config_cache_hits",
	Help: "Number of guild settings served from cache",
})

var configCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_config_cache_misses",
	Help: "Number of guild settings loaded from the database",
})
