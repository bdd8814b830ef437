package countstore

import (
	"context"
	"sync"
	"time"
)

// Process-local counters. Old hour and day buckets are never pruned, which is fine for the volume a single community produces.
type MemCountStore struct {
	lk     sync.Mutex
	Counts map[string]int
}

var _ CountStore = (*MemCountStore)(nil)

func NewMemCountStore() *MemCountStore {
	return &MemCountStore{
		Counts: make(map[string]int),
	}
}

func (s *MemCountStore) GetCount(ctx context.Context, name, val, period string) (int, error) {
	p, ok := lookupPeriod(period)
	if !ok {
		return 0, nil
	}
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.Counts[p.key(name, val, time.Now())], nil
}

func (s *MemCountStore) Increment(ctx context.Context, name, val string) error {
	now := time.Now()
	s.lk.Lock()
	defer s.lk.Unlock()
	for _, p := range periods {
		s.Counts[p.key(name, val, now)]++
	}
	return nil
}
