package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventProcessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "modbot_event_duration_sec",
	Help: "Total duration of inbound event processing",
}, []string{"context"})

var eventProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_event_processed",
	Help: "Number of events processed",
}, []string{"context"})

var eventErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_event_errors",
	Help: "Number of events which failed processing",
}, []string{"context"})

var sessionStartCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_sessions_started",
	Help: "Number of dialogue sessions started",
}, []string{"flow"})

var sessionEndCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_sessions_ended",
	Help: "Number of dialogue sessions which reached a terminal state",
}, []string{"flow", "state"})

var sessionAbandonedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_sessions_abandoned",
	Help: "Number of in-flight handlers which found their session replaced or removed",
}, []string{"flow"})

var reportRegisteredCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_reports_registered",
	Help: "Number of reports registered, by origin",
}, []string{"origin"})

var notificationSuppressedCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "modbot_notifications_suppressed",
	Help: "Number of notifications dropped because the guild has no moderation channel",
})

var reviewActionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_review_actions",
	Help: "Number of moderation actions taken after review",
}, []string{"action", "result"})
