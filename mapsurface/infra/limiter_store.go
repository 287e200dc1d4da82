package infra

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/time/rate"

	"meshboard-maps/mapsurface/domain"
)

const defaultMaxClients = 4096

// LimiterStore guarda um token bucket (x/time/rate) por cliente do endpoint
// de snapshot. Os clientes ficam num LRU limitado a maxClients: o menos
// recente sai primeiro, e o janitor descarta quem passou de idleTTL sem
// pedir snapshot.
type LimiterStore struct {
	mu           sync.Mutex
	clients      *lru.Cache
	rps          rate.Limit
	burst        int
	maxClients   int
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type clientLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type LimiterOption func(*LimiterStore)

func WithIdleTTL(d time.Duration) LimiterOption {
	return func(s *LimiterStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) LimiterOption {
	return func(s *LimiterStore) { s.cleanupEvery = d }
}

// WithMaxClients limita quantos clientes têm bucket próprio. Um cliente
// despejado volta com o bucket cheio.
func WithMaxClients(n int) LimiterOption {
	return func(s *LimiterStore) { s.maxClients = n }
}

// NewLimiterStore cria o store; cada cliente pode pedir rps snapshots por
// segundo com rajadas de até burst.
func NewLimiterStore(rps float64, burst int, opts ...LimiterOption) *LimiterStore {
	s := &LimiterStore{
		rps:          rate.Limit(rps),
		burst:        burst,
		maxClients:   defaultMaxClients,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxClients <= 0 {
		s.maxClients = defaultMaxClients
	}
	// lru.New só falha com tamanho <= 0
	s.clients, _ = lru.New(s.maxClients)
	return s
}

func (s *LimiterStore) RPS() float64 { return float64(s.rps) }
func (s *LimiterStore) Burst() int   { return s.burst }

// Get implementa domain.LimiterStore.
func (s *LimiterStore) Get(key domain.Key) domain.Limiter {
	return s.limiter(key, time.Now())
}

func (s *LimiterStore) limiter(key domain.Key, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.clients.Get(key); ok {
		c := v.(*clientLimiter)
		c.lastSeen = now
		return c.lim
	}

	lim := rate.NewLimiter(s.rps, s.burst)
	s.clients.Add(key, &clientLimiter{lim: lim, lastSeen: now})
	return lim
}

// Len é o número de clientes rastreados.
func (s *LimiterStore) Len() int {
	return s.clients.Len()
}

// Cleanup descarta clientes sem atividade há mais de idleTTL.
func (s *LimiterStore) Cleanup() {
	s.cleanupBefore(time.Now().Add(-s.idleTTL))
}

// cleanupBefore percorre do menos recente para o mais recente e para no
// primeiro cliente ativo depois de cutoff.
func (s *LimiterStore) cleanupBefore(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range s.clients.Keys() {
		v, ok := s.clients.Peek(k)
		if !ok {
			continue
		}
		if !v.(*clientLimiter).lastSeen.Before(cutoff) {
			return
		}
		s.clients.Remove(k)
	}
}

// StartJanitor limpa clientes inativos periodicamente até ctx encerrar.
func (s *LimiterStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
