package engine

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Active dialogue sessions, keyed by participant id. At most one session per participant.
type SessionStore[S any] struct {
	data *xsync.MapOf[string, *S]
}

func NewSessionStore[S any]() *SessionStore[S] {
	return &SessionStore[S]{
		data: xsync.NewMapOf[string, *S](),
	}
}

func (s *SessionStore[S]) Get(id string) (*S, bool) {
	return s.data.Load(id)
}

// Stores the session, replacing (and discarding) any existing one for the participant.
func (s *SessionStore[S]) Put(id string, sess *S) {
	s.data.Store(id, sess)
}

// Reports whether sess is still the session stored for the participant.
func (s *SessionStore[S]) Current(id string, sess *S) bool {
	cur, ok := s.data.Load(id)
	return ok && cur == sess
}

// Removes the participant's session, but only if it is still sess. Returns true if it was removed.
func (s *SessionStore[S]) Remove(id string, sess *S) bool {
	removed := false
	s.data.Compute(id, func(cur *S, loaded bool) (*S, bool) {
		if loaded && cur == sess {
			removed = true
			return nil, true
		}
		return cur, !loaded
	})
	return removed
}

func (s *SessionStore[S]) Len() int {
	return s.data.Size()
}
