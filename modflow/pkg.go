package modflow

import (
	"github.com/groupmod/modbot/modflow/countstore"
	"github.com/groupmod/modbot/modflow/engine"
	"github.com/groupmod/modbot/modflow/report"
)

type Dispatcher = engine.Dispatcher
type DispatcherConfig = engine.DispatcherConfig
type Event = engine.Event
type Transport = engine.Transport
type Triager = engine.Triager

type Notifier = engine.Notifier
type SlackNotifier = engine.SlackNotifier

type Report = report.Report
type Taxonomy = report.Taxonomy

var (
	NewDispatcher    = engine.NewDispatcher
	NewSlackNotifier = engine.NewSlackNotifier
	LoadTaxonomyFile = report.LoadTaxonomyFile

	PeriodTotal = countstore.PeriodTotal
	PeriodDay   = countstore.PeriodDay
	PeriodHour  = countstore.PeriodHour
)
