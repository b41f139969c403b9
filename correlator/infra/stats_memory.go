package infra

import (
	"context"
	"sync"

	"click-reply-correlator/correlator/domain"
)

// MemoryStatsStore conta decisões em memória. É o padrão quando não há Redis.
//
// Não expira nada; serve para /status e testes.
type MemoryStatsStore struct {
	mu        sync.Mutex
	byOutcome map[domain.Outcome]int64
	byKind    map[string]int64
	total     int64
}

func NewMemoryStatsStore() *MemoryStatsStore {
	return &MemoryStatsStore{
		byOutcome: make(map[domain.Outcome]int64),
		byKind:    make(map[string]int64),
	}
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.byOutcome[ev.Outcome]++
	if ev.Kind != "" {
		s.byKind[ev.Kind+":"+string(ev.Outcome)]++
	}
	return nil
}

func (s *MemoryStatsStore) Total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) Count(o domain.Outcome) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byOutcome[o]
}

func (s *MemoryStatsStore) ByOutcome() map[domain.Outcome]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Outcome]int64, len(s.byOutcome))
	for k, v := range s.byOutcome {
		out[k] = v
	}
	return out
}

// ByKind agrupa por "tipo:resultado" (ex.: "webhook:sent").
func (s *MemoryStatsStore) ByKind() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.byKind))
	for k, v := range s.byKind {
		out[k] = v
	}
	return out
}
