package visual

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("modbot/visual")

var classifierAPIDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "modbot_classifier_api_duration_sec",
	Help: "Duration of image classifier API calls",
}, []string{"backend"})

var classifierAPICount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_classifier_api_count",
	Help: "Number of image classifier API calls, by HTTP status code",
}, []string{"backend", "status"})

var attachmentDownloadCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_attachment_downloads",
	Help: "Number of attachments downloaded, by HTTP status code",
}, []string{"status"})

var attachmentDownloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "modbot_attachment_download_duration_sec",
	Help: "Duration of attachment download attempts",
})

var triageVerdictCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_triage_verdicts",
	Help: "Number of triage evaluations, by outcome",
}, []string{"outcome"})

var triageScores = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "modbot_triage_scores",
	Help:    "Distribution of classifier probabilities",
	Buckets: prometheus.LinearBuckets(0, 0.1, 11),
})

var scoreCacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "modbot_score_cache_hits",
	Help: "Number of classifications answered from the score cache",
})
