package flagstore

import (
	"context"
	"fmt"

	"github.com/groupmod/modbot/modflow/report"

	"github.com/puzpuzpuz/xsync/v3"
)

type MemFlagStore struct {
	Data *xsync.MapOf[string, *report.Report]
}

var _ FlagStore = (*MemFlagStore)(nil)

func NewMemFlagStore() *MemFlagStore {
	return &MemFlagStore{
		Data: xsync.NewMapOf[string, *report.Report](),
	}
}

// Stores the report under id, and stamps the report with that id. Fails if the id is already taken; the existing entry is left as-is.
func (s *MemFlagStore) Register(ctx context.Context, id string, r *report.Report) error {
	if id == "" {
		return fmt.Errorf("registering report: empty id")
	}
	if r == nil {
		return fmt.Errorf("registering report %s: nil report", id)
	}
	// stamp a copy, so the caller's pointer never aliases a registry entry
	entry := *r
	entry.ID = id
	if _, loaded := s.Data.LoadOrStore(id, &entry); loaded {
		return fmt.Errorf("registering report %s: %w", id, ErrAlreadyRegistered)
	}
	r.ID = id
	return nil
}

// Returns a copy of the registered report, so callers can't mutate the entry.
func (s *MemFlagStore) Lookup(ctx context.Context, id string) (*report.Report, error) {
	v, ok := s.Data.Load(id)
	if !ok {
		return nil, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	out := *v
	return &out, nil
}

func (s *MemFlagStore) Len() int {
	return s.Data.Size()
}
