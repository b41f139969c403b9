package application

import (
	"context"
	"time"

	"click-reply-correlator/correlator/domain"
)

// Admission junta as duas travas da entrada HTTP: token bucket por cliente e
// vaga de concorrência com timeout. Não sabe nada de HTTP.
type Admission struct {
	Limits     domain.LimiterStore
	Pool       domain.SlotPool
	RetryAfter time.Duration
	// AcquireTimeout <= 0 espera a vaga até o ctx encerrar.
	AcquireTimeout time.Duration
}

// Decide aplica só o limite por cliente.
func (a Admission) Decide(key domain.Key) domain.AdmissionDecision {
	if a.Limits == nil {
		return domain.AdmissionDecision{Allowed: true}
	}
	retryAfter := a.RetryAfter
	if retryAfter <= 0 {
		retryAfter = time.Second
	}

	lim := a.Limits.Get(key)
	if lim == nil || lim.Allow() {
		return domain.AdmissionDecision{Allowed: true}
	}
	return domain.AdmissionDecision{Allowed: false, RetryAfter: retryAfter}
}

// Acquire pega uma vaga de concorrência. ok=false quando não conseguiu a tempo.
func (a Admission) Acquire(ctx context.Context) (func(), bool) {
	if a.Pool == nil {
		return func() {}, true
	}
	if a.AcquireTimeout <= 0 {
		return a.Pool.Acquire(ctx)
	}

	acqCtx, cancel := context.WithTimeout(ctx, a.AcquireTimeout)
	defer cancel()
	return a.Pool.Acquire(acqCtx)
}
