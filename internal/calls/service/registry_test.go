package service

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestRegistryGetOrCreateConcurrent(t *testing.T) {
	r := NewRegistry()

	const calls = 64
	var wg sync.WaitGroup
	created := make([]int, calls)

	for i := 0; i < calls; i++ {
		callID := fmt.Sprintf("call-%d", i%8)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, isNew := r.GetOrCreate(callID, func() *Session {
				return &Session{CallID: callID, StartedAt: time.Now()}
			})
			if isNew {
				created[i] = 1
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for _, c := range created {
		total += c
	}
	if total != 8 {
		t.Errorf("created %d sessions for 8 distinct IDs", total)
	}
	if r.Len() != 8 {
		t.Errorf("registry holds %d sessions, want 8", r.Len())
	}
}

func TestRegistryDeleteIdempotent(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate("call-x", func() *Session { return &Session{CallID: "call-x"} })

	if !r.Delete("call-x") {
		t.Error("first delete should report true")
	}
	if r.Delete("call-x") {
		t.Error("second delete should report false")
	}
}

func TestSessionDurationDerived(t *testing.T) {
	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	s := &Session{StartedAt: start}

	if got := s.Duration(start.Add(45 * time.Second)); got != 45*time.Second {
		t.Errorf("live duration = %s, want 45s", got)
	}

	s.EndedAt = start.Add(90 * time.Second)
	if got := s.Duration(start.Add(10 * time.Minute)); got != 90*time.Second {
		t.Errorf("frozen duration = %s, want 90s", got)
	}
}
