package infra

import (
	"context"
	"sync"

	"meshboard-maps/mapsurface/domain"
)

// Counters conta decisões do agendador por tipo de evento.
type Counters map[domain.EventKind]int64

func (c Counters) clone() Counters {
	out := make(Counters, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// MemoryStatsStore guarda estatísticas de admissão em memória.
// Útil para testes, desenvolvimento e para o endpoint /api/map/stats.
//
// Não faz expiração; com WithTrackOwners a cardinalidade cresce com o número
// de widgets.
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   Counters
	byOwner map[domain.OwnerID]Counters

	trackOwners bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackOwners(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackOwners = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		total:   make(Counters),
		byOwner: make(map[domain.OwnerID]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total[ev.Kind]++
	if s.trackOwners && ev.Owner != "" {
		c := s.byOwner[ev.Owner]
		if c == nil {
			c = make(Counters)
			s.byOwner[ev.Owner] = c
		}
		c[ev.Kind]++
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total.clone()
}

func (s *MemoryStatsStore) ByOwner() map[domain.OwnerID]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.OwnerID]Counters, len(s.byOwner))
	for k, v := range s.byOwner {
		out[k] = v.clone()
	}
	return out
}
