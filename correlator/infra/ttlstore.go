package infra

import (
	"sync"
	"time"
)

type ttlEntry[V any] struct {
	value     V
	createdAt time.Time
}

// TTLStore é um map chave→valor em memória onde cada entrada expira ttl depois
// da última escrita.
//
// A poda é preguiçosa: roda a cada Put/Upsert, não existe goroutine de limpeza.
// Get e Take conferem a expiração antes de devolver, então um valor vencido
// nunca é servido mesmo entre podas.
type TTLStore[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]ttlEntry[V]
	ttl     time.Duration
	now     func() time.Time
}

// NewTTLStore cria uma tabela. ttl <= 0 desliga a expiração; now nil usa time.Now.
func NewTTLStore[K comparable, V any](ttl time.Duration, now func() time.Time) *TTLStore[K, V] {
	if now == nil {
		now = time.Now
	}
	return &TTLStore[K, V]{
		entries: make(map[K]ttlEntry[V]),
		ttl:     ttl,
		now:     now,
	}
}

func (s *TTLStore[K, V]) TTL() time.Duration { return s.ttl }

func (s *TTLStore[K, V]) expired(e ttlEntry[V], now time.Time) bool {
	return s.ttl > 0 && !now.Before(e.createdAt.Add(s.ttl))
}

// Put insere ou substitui e devolve quantas entradas vencidas foram podadas.
func (s *TTLStore[K, V]) Put(key K, value V) int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = ttlEntry[V]{value: value, createdAt: now}
	return s.pruneLocked(now)
}

// Upsert grava fn(antigo) sob o mesmo lock. found=false quando não havia
// entrada viva para a chave.
func (s *TTLStore[K, V]) Upsert(key K, fn func(old V, found bool) V) (V, int) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var old V
	ent, found := s.entries[key]
	if found && !s.expired(ent, now) {
		old = ent.value
	} else {
		found = false
	}

	v := fn(old, found)
	s.entries[key] = ttlEntry[V]{value: v, createdAt: now}
	return v, s.pruneLocked(now)
}

func (s *TTLStore[K, V]) Get(key K) (V, bool) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if s.expired(ent, now) {
		delete(s.entries, key)
		var zero V
		return zero, false
	}
	return ent.value, true
}

// Take é Get + Delete atômico. Só um chamador consome a entrada.
func (s *TTLStore[K, V]) Take(key K) (V, bool) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	delete(s.entries, key)
	if s.expired(ent, now) {
		var zero V
		return zero, false
	}
	return ent.value, true
}

func (s *TTLStore[K, V]) Delete(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// FindKey procura a primeira chave viva que satisfaz match.
func (s *TTLStore[K, V]) FindKey(match func(K) bool) (K, bool) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if s.expired(ent, now) {
			continue
		}
		if match(k) {
			return k, true
		}
	}
	var zero K
	return zero, false
}

// PruneExpired remove tudo que venceu até now e devolve a quantidade.
func (s *TTLStore[K, V]) PruneExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneLocked(now)
}

func (s *TTLStore[K, V]) pruneLocked(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	n := 0
	for k, ent := range s.entries {
		if s.expired(ent, now) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// Len inclui entradas vencidas ainda não podadas.
func (s *TTLStore[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
