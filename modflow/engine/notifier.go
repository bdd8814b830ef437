package engine

import (
	"context"

	"github.com/groupmod/modbot/modflow/report"
)

// Interface for a type that mirrors registered reports somewhere outside the moderation channel
type Notifier interface {
	SendReport(ctx context.Context, r *report.Report) error
}
