package infra

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"click-reply-correlator/correlator/domain"
)

// ClientLimits é um token bucket (x/time/rate) por cliente de entrada (IP ou
// header), protegendo os endpoints de clique e webhook contra rajadas.
//
// O relógio é injetável (WithClientClock). Cleanup devolve quantos clientes
// saíram; o janitor recebe um context.Context e registra as podas.
//
// Clientes sem atividade há mais de idleTTL são descartados pelo janitor.
type ClientLimits struct {
	mu           sync.Mutex
	clients      map[string]*clientEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
	log          *zap.Logger
}

type clientEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type ClientLimitsOption func(*ClientLimits)

func WithIdleTTL(d time.Duration) ClientLimitsOption {
	return func(s *ClientLimits) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) ClientLimitsOption {
	return func(s *ClientLimits) { s.cleanupEvery = d }
}

func WithClientClock(now func() time.Time) ClientLimitsOption {
	return func(s *ClientLimits) {
		if now != nil {
			s.now = now
		}
	}
}

func WithClientLimitsLogger(log *zap.Logger) ClientLimitsOption {
	return func(s *ClientLimits) {
		if log != nil {
			s.log = log
		}
	}
}

func NewClientLimits(rps float64, burst int, opts ...ClientLimitsOption) *ClientLimits {
	s := &ClientLimits{
		clients:      make(map[string]*clientEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ClientLimits) RPS() float64 { return float64(s.rps) }
func (s *ClientLimits) Burst() int   { return s.burst }

// Get implementa domain.LimiterStore.
func (s *ClientLimits) Get(key domain.Key) domain.Limiter {
	return s.limiter(string(key))
}

func (s *ClientLimits) limiter(key string) *rate.Limiter {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.clients[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(s.rps, s.burst)
	s.clients[key] = &clientEntry{lim: lim, lastSeen: now}
	return lim
}

// Cleanup remove clientes ociosos e devolve quantos saíram.
func (s *ClientLimits) Cleanup() int {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, ent := range s.clients {
		if ent.lastSeen.Before(cutoff) {
			delete(s.clients, k)
			n++
		}
	}
	return n
}

func (s *ClientLimits) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// StartJanitor limpa clientes ociosos periodicamente. Pare cancelando o ctx.
func (s *ClientLimits) StartJanitor(ctx context.Context) {
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
				if n := s.Cleanup(); n > 0 {
					s.log.Debug("Dropped idle clients", zap.Int("dropped", n), zap.Int("remaining", s.Len()))
				}
			}
		}
	}()
}
