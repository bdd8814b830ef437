package countstore

import (
	"context"
	"strings"
	"time"
)

const (
	PeriodTotal = "total"
	PeriodDay   = "day" // current UTC calendar day
	PeriodHour  = "hour"
)

// Counter namespace for reports registered against a flagged author.
const FlaggedAuthor = "flagged-author"

type CountStore interface {
	// unknown periods read as zero
	GetCount(ctx context.Context, name, val, period string) (int, error)
	// increments the counter for every period at once
	Increment(ctx context.Context, name, val string) error
}

type periodSpec struct {
	name string
	// time layout of the bucket suffix; empty for a single bucket
	layout string
	// how long a bucket needs to stay readable; zero means forever
	retain time.Duration
}

var periods = []periodSpec{
	{name: PeriodHour, layout: "2006-01-02T15", retain: 2 * time.Hour},
	{name: PeriodDay, layout: time.DateOnly, retain: 48 * time.Hour},
	{name: PeriodTotal},
}

func lookupPeriod(period string) (periodSpec, bool) {
	for _, p := range periods {
		if p.name == period {
			return p, true
		}
	}
	return periodSpec{}, false
}

func (p periodSpec) key(name, val string, now time.Time) string {
	parts := []string{name, val}
	if p.layout != "" {
		parts = append(parts, now.UTC().Format(p.layout))
	}
	return strings.Join(parts, "/")
}
