package infra

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SlidingWindow limita a no máximo `limit` aquisições em qualquer janela
// deslizante de `window`. É o recurso compartilhado por todas as chamadas à
// API externa.
//
// A vaga é registrada sob o mesmo lock que confere a ocupação, então duas
// goroutines acordando juntas na borda da janela não estouram o limite.
type SlidingWindow struct {
	mu     sync.Mutex
	stamps []time.Time
	limit  int
	window time.Duration
	margin time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	log   *zap.Logger
}

type WindowOption func(*SlidingWindow)

// WithWindowClock injeta relógio e sleep (testes usam relógio falso).
func WithWindowClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) WindowOption {
	return func(w *SlidingWindow) {
		if now != nil {
			w.now = now
		}
		if sleep != nil {
			w.sleep = sleep
		}
	}
}

// WithSafetyMargin soma d à espera calculada (padrão 1s).
func WithSafetyMargin(d time.Duration) WindowOption {
	return func(w *SlidingWindow) { w.margin = d }
}

func WithWindowLogger(l *zap.Logger) WindowOption {
	return func(w *SlidingWindow) {
		if l != nil {
			w.log = l
		}
	}
}

func NewSlidingWindow(limit int, window time.Duration, opts ...WindowOption) *SlidingWindow {
	if limit <= 0 {
		limit = 1
	}
	w := &SlidingWindow{
		stamps: make([]time.Time, 0, limit),
		limit:  limit,
		window: window,
		margin: time.Second,
		now:    time.Now,
		sleep:  SleepContext,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *SlidingWindow) Limit() int            { return w.limit }
func (w *SlidingWindow) Window() time.Duration { return w.window }

// Acquire bloqueia até existir vaga na janela ou até o ctx encerrar.
func (w *SlidingWindow) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		w.mu.Lock()
		now := w.now()
		w.evictLocked(now)
		if len(w.stamps) < w.limit {
			w.stamps = append(w.stamps, now)
			w.mu.Unlock()
			return nil
		}
		wait := w.stamps[0].Add(w.window).Sub(now) + w.margin
		w.mu.Unlock()

		w.log.Info("Rate limit reached, waiting for a slot",
			zap.Duration("wait", wait),
			zap.Int("limit", w.limit))

		// a espera pode acordar cedo demais se outro chamador pegou a vaga; o loop reconfere.
		if err := w.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// InWindow devolve quantas aquisições ainda contam na janela atual.
func (w *SlidingWindow) InWindow() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictLocked(w.now())
	return len(w.stamps)
}

func (w *SlidingWindow) evictLocked(now time.Time) {
	i := 0
	for i < len(w.stamps) && now.Sub(w.stamps[i]) >= w.window {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// SleepContext dorme d ou até o ctx encerrar.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
