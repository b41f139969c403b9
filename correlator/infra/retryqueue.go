package infra

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"click-reply-correlator/correlator/domain"
)

// RetryQueue é a fila FIFO limitada de buscas adiadas por throttling.
//
// Enqueue nunca bloqueia: com a fila cheia o item novo é descartado e contado.
type RetryQueue struct {
	items   chan domain.ResolveRequest
	dropped atomic.Int64
	log     *zap.Logger
}

func NewRetryQueue(capacity int, log *zap.Logger) *RetryQueue {
	if capacity <= 0 {
		capacity = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RetryQueue{
		items: make(chan domain.ResolveRequest, capacity),
		log:   log,
	}
}

func (q *RetryQueue) Enqueue(req domain.ResolveRequest) error {
	select {
	case q.items <- req:
		return nil
	default:
		n := q.dropped.Add(1)
		q.log.Warn("Retry queue full, dropping lookup",
			zap.String("identity", req.Identity.String()),
			zap.String("account", req.Account),
			zap.Int("queue_len", len(q.items)),
			zap.Int64("dropped_total", n))
		return domain.ErrQueueFull
	}
}

// Next espera até idle por um item. ok=false em timeout ou ctx encerrado;
// timeout é um ciclo normal de polling, não erro.
func (q *RetryQueue) Next(ctx context.Context, idle time.Duration) (domain.ResolveRequest, bool) {
	t := time.NewTimer(idle)
	defer t.Stop()
	select {
	case req := <-q.items:
		return req, true
	case <-t.C:
		return domain.ResolveRequest{}, false
	case <-ctx.Done():
		return domain.ResolveRequest{}, false
	}
}

func (q *RetryQueue) Len() int       { return len(q.items) }
func (q *RetryQueue) Cap() int       { return cap(q.items) }
func (q *RetryQueue) Dropped() int64 { return q.dropped.Load() }
