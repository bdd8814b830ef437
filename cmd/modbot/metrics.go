package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var guildsJoined = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "modbot_guilds_joined",
	Help: "Number of guilds the bot is a member of",
})

var activeReportSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "modbot_active_report_sessions",
	Help: "Number of in-progress report dialogues",
})

var activeReviewSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "modbot_active_review_sessions",
	Help: "Number of in-progress review dialogues",
})
