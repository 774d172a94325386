package bot

import (
	"sync"
	"time"
)

// Mode is the per-user conversation state.
type Mode int

const (
	// ModeNormal answers questions.
	ModeNormal Mode = iota
	// ModeAwaitingCorrection treats the next message as the expected
	// answer for the user's last logged turn.
	ModeAwaitingCorrection
)

// Session is the mutable per-user state. Turn handling locks mu for the
// whole turn so concurrent entry points (poll batches, MCP) never
// interleave within one user's turn; ordering within a poll batch comes
// from the engine handling a user's updates sequentially.
type Session struct {
	mu sync.Mutex

	ThreadID string
	Mode     Mode
	// LastConversationID is the log row a pending correction refers to.
	LastConversationID int64

	lastSeen time.Time
}

// Lock serializes turn handling for one user.
func (s *Session) Lock() { s.mu.Lock() }

func (s *Session) Unlock() { s.mu.Unlock() }

// Sessions holds per-user sessions with idle expiry.
type Sessions struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[int64]*Session
}

func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[int64]*Session),
	}
}

// Get returns the user's session, creating one in ModeNormal if absent
// or expired. The last-seen time is refreshed on every call.
func (s *Sessions) Get(userID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if ok && s.now().Sub(sess.lastSeen) > s.ttl {
		ok = false
	}
	if !ok {
		sess = &Session{}
		s.sessions[userID] = sess
	}
	sess.lastSeen = s.now()
	return sess
}

// Evict drops sessions idle longer than the TTL. Sessions mid-turn are
// skipped and collected on a later sweep.
func (s *Sessions) Evict() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	cutoff := s.now().Add(-s.ttl)
	for userID, sess := range s.sessions {
		if !sess.lastSeen.Before(cutoff) {
			continue
		}
		if !sess.mu.TryLock() {
			continue
		}
		sess.mu.Unlock()
		delete(s.sessions, userID)
		evicted++
	}
	return evicted
}

// Janitor sweeps expired sessions until stop is closed.
func (s *Sessions) Janitor(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Evict()
		}
	}
}

// Len reports the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
