package service

import (
	"hash/fnv"
	"sync"
	"time"

	"callintake_backend/internal/calls/transport"
	"callintake_backend/internal/events"

	"github.com/google/uuid"
)

// Session is the mutable state of one in-flight call. All mutation happens
// under the session mutex so events for the same call apply serially no
// matter which webhook goroutine delivers them.
type Session struct {
	mu sync.Mutex

	CallID       string
	CompanyID    uuid.UUID
	From         string
	To           string
	State        transport.CallState
	IsEmergency  bool
	MatchedText  string
	CallType     string
	ServiceTypes []string
	Sentiment    string
	Transcript   []events.TranscriptTurn
	StartedAt    time.Time
	EndedAt      time.Time
}

// Lock acquires the session mutex.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session mutex.
func (s *Session) Unlock() { s.mu.Unlock() }

// Duration derives the call duration: live sessions measure against now,
// ended sessions are frozen at their end instant.
func (s *Session) Duration(now time.Time) time.Duration {
	if !s.EndedAt.IsZero() {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}

// View projects the session for the dashboard. Callers must hold the lock.
func (s *Session) View(now time.Time) transport.SessionView {
	transcript := make([]events.TranscriptTurn, len(s.Transcript))
	copy(transcript, s.Transcript)

	return transport.SessionView{
		CallID:       s.CallID,
		CompanyID:    s.CompanyID,
		From:         s.From,
		To:           s.To,
		State:        s.State,
		IsEmergency:  s.IsEmergency,
		CallType:     s.CallType,
		ServiceTypes: append([]string(nil), s.ServiceTypes...),
		Sentiment:    s.Sentiment,
		StartedAt:    s.StartedAt,
		DurationSec:  int(s.Duration(now).Seconds()),
		Transcript:   transcript,
	}
}

const shardCount = 16

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// Registry is a sharded concurrent session store keyed by the provider call
// ID. Sharding keeps webhook bursts for unrelated calls off a single lock.
type Registry struct {
	shards [shardCount]shard
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].sessions = make(map[string]*Session)
	}
	return r
}

func (r *Registry) shardFor(callID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(callID))
	return &r.shards[h.Sum32()%shardCount]
}

// Get returns the live session for a call ID, if any.
func (r *Registry) Get(callID string) (*Session, bool) {
	sh := r.shardFor(callID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.sessions[callID]
	return s, ok
}

// GetOrCreate returns the session for a call ID, creating it with the given
// initializer when absent. The second return reports whether it was created.
func (r *Registry) GetOrCreate(callID string, create func() *Session) (*Session, bool) {
	sh := r.shardFor(callID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if s, ok := sh.sessions[callID]; ok {
		return s, false
	}
	s := create()
	sh.sessions[callID] = s
	return s, true
}

// Delete evicts a session. Returns false when the ID is already gone.
func (r *Registry) Delete(callID string) bool {
	sh := r.shardFor(callID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.sessions[callID]; !ok {
		return false
	}
	delete(sh.sessions, callID)
	return true
}

// Snapshot returns the current sessions without holding any shard lock during
// iteration by the caller. Session pointers stay live; lock each before use.
func (r *Registry) Snapshot() []*Session {
	var out []*Session
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		for _, s := range sh.sessions {
			out = append(out, s)
		}
		sh.mu.RUnlock()
	}
	return out
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}
