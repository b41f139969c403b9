package domain

import (
	"context"
	"time"
)

// StatsEvent registra uma decisão do correlacionador.
//
// Cuidado com cardinalidade: guardar Identity por chave pode explodir o número
// de chaves no Redis.
type StatsEvent struct {
	Identity Identity
	Kind     string // "click" | "webhook" | "retry"
	Outcome  Outcome
	At       time.Time
}

// StatsStore é a estratégia de persistência das estatísticas.
//
// Quem chama trata erro como best-effort (não derruba o fluxo).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
