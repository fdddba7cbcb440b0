package worker

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// replyState tracks in-flight replies per session and one limiter per owner.
type replyState struct {
	mu       sync.RWMutex
	inflight map[string]int
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
}

func newReplyState() *replyState {
	return &replyState{
		inflight: make(map[string]int),
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
	}
}

func (s *replyState) begin(key string) {
	s.mu.Lock()
	s.inflight[key]++
	s.mu.Unlock()
}

func (s *replyState) end(key string) {
	s.mu.Lock()
	if s.inflight[key] <= 1 {
		delete(s.inflight, key)
	} else {
		s.inflight[key]--
	}
	s.mu.Unlock()
}

func (s *replyState) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.inflight {
		n += c
	}
	return n
}

func (s *replyState) limiter(ownerID string, limit rate.Limit, burst int) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen[ownerID] = time.Now()
	if l, ok := s.limiters[ownerID]; ok {
		return l
	}
	l := rate.NewLimiter(limit, burst)
	s.limiters[ownerID] = l
	return l
}

func (s *replyState) pruneLimiters(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for owner, seen := range s.lastSeen {
		if seen.Before(cutoff) {
			delete(s.lastSeen, owner)
			delete(s.limiters, owner)
			n++
		}
	}
	return n
}
