package flagstore

import (
	"context"
	"errors"

	"github.com/groupmod/modbot/modflow/report"
)

var (
	ErrNotFound          = errors.New("no report registered with that id")
	ErrAlreadyRegistered = errors.New("a report is already registered with that id")
)

// Correlation table from moderation notification id to the flagged report.
//
// Append-only: there is no way to remove or replace an entry once registered. Implementations must be safe for concurrent readers.
type FlagStore interface {
	Register(ctx context.Context, id string, r *report.Report) error
	Lookup(ctx context.Context, id string) (*report.Report, error)
}
