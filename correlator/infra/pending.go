package infra

import (
	"time"

	"click-reply-correlator/correlator/domain"
)

// PendingStore guarda, por identidade, os webhooks que chegaram antes do clique.
//
// Cada item expira pelo próprio ArrivedAt. A lista inteira também expira pela
// TTLStore quando ninguém escreve nela por mais de ttl.
// Não há limite de itens por identidade: uma rajada de webhooks para a mesma
// pessoa cresce até a poda.
type PendingStore struct {
	table *TTLStore[domain.Identity, []domain.PendingWebhook]
	ttl   time.Duration
	now   func() time.Time
}

func NewPendingStore(ttl time.Duration, now func() time.Time) *PendingStore {
	if now == nil {
		now = time.Now
	}
	return &PendingStore{
		table: NewTTLStore[domain.Identity, []domain.PendingWebhook](ttl, now),
		ttl:   ttl,
		now:   now,
	}
}

func (p *PendingStore) fresh(list []domain.PendingWebhook, now time.Time) []domain.PendingWebhook {
	if p.ttl <= 0 {
		return list
	}
	out := list[:0:0]
	for _, pw := range list {
		if now.Before(pw.ArrivedAt.Add(p.ttl)) {
			out = append(out, pw)
		}
	}
	return out
}

// Add enfileira o webhook e devolve quantos estão pendentes para a identidade
// e quantas identidades foram podadas.
func (p *PendingStore) Add(id domain.Identity, pw domain.PendingWebhook) (queued int, pruned int) {
	if pw.ArrivedAt.IsZero() {
		pw.ArrivedAt = p.now()
	}
	now := p.now()
	list, pruned := p.table.Upsert(id, func(old []domain.PendingWebhook, _ bool) []domain.PendingWebhook {
		return append(p.fresh(old, now), pw)
	})
	return len(list), pruned
}

// Drain remove e devolve os pendentes ainda válidos da identidade, do mais
// antigo para o mais novo.
func (p *PendingStore) Drain(id domain.Identity) []domain.PendingWebhook {
	list, ok := p.table.Take(id)
	if !ok {
		return nil
	}
	return p.fresh(list, p.now())
}

// PruneExpired poda identidades sem escrita há mais de ttl.
func (p *PendingStore) PruneExpired(now time.Time) int {
	return p.table.PruneExpired(now)
}

func (p *PendingStore) Len() int { return p.table.Len() }
