package domain

// Contratos da admissão de entrada (limite por cliente e concorrência) que
// protegem os endpoints de clique e webhook.

import (
	"context"
	"time"
)

type Key string

// Limiter decide se uma ação é permitida agora.
type Limiter interface {
	Allow() bool
}

// LimiterStore obtém um limiter por chave (IP, header, ...).
type LimiterStore interface {
	Get(Key) Limiter
}

type AdmissionDecision struct {
	Allowed bool
	// RetryAfter vai no header Retry-After quando bloquear. Se 0, sem recomendação.
	RetryAfter time.Duration
}

// SlotPool representa um recurso com capacidade finita (requisições simultâneas).
//
// Acquire bloqueia até conseguir vaga ou até o ctx encerrar. O release
// devolvido deve ser chamado exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
