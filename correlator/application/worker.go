package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"click-reply-correlator/correlator/domain"
)

// RetrySource entrega buscas adiadas; ok=false num ciclo ocioso.
type RetrySource interface {
	Next(ctx context.Context, idle time.Duration) (domain.ResolveRequest, bool)
}

// Refresher refaz uma busca adiada (Resolver.Refresh).
type Refresher interface {
	Refresh(ctx context.Context, req domain.ResolveRequest) error
}

type WorkerConfig struct {
	Queue     RetrySource
	Refresher Refresher
	Stats     domain.StatsStore
	// Idle é quanto esperar por um item antes de considerar um ciclo vazio (padrão 60s).
	Idle time.Duration
	// ErrorPause depois de cada erro (padrão 5s); StormPause depois de
	// MaxConsecutiveErrors erros seguidos (padrão 10s / 10).
	ErrorPause           time.Duration
	StormPause           time.Duration
	MaxConsecutiveErrors int
	Sleep                func(ctx context.Context, d time.Duration) error
	// Now carimba os eventos de stats (padrão time.Now).
	Now func() time.Time
	Log *zap.Logger
}

// Worker é o único loop que drena a fila de retentativas. O limite de taxa é
// aplicado pelo Refresher, igual às chamadas em primeiro plano.
type Worker struct {
	queue      RetrySource
	refresher  Refresher
	stats      domain.StatsStore
	idle       time.Duration
	errorPause time.Duration
	stormPause time.Duration
	maxErrors  int
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
	log        *zap.Logger
}

func NewWorker(cfg WorkerConfig) *Worker {
	w := &Worker{
		queue:      cfg.Queue,
		refresher:  cfg.Refresher,
		stats:      cfg.Stats,
		idle:       cfg.Idle,
		errorPause: cfg.ErrorPause,
		stormPause: cfg.StormPause,
		maxErrors:  cfg.MaxConsecutiveErrors,
		sleep:      cfg.Sleep,
		now:        cfg.Now,
		log:        cfg.Log,
	}
	if w.idle <= 0 {
		w.idle = 60 * time.Second
	}
	if w.errorPause <= 0 {
		w.errorPause = 5 * time.Second
	}
	if w.stormPause <= 0 {
		w.stormPause = 10 * time.Second
	}
	if w.maxErrors <= 0 {
		w.maxErrors = 10
	}
	if w.sleep == nil {
		w.sleep = sleepContext
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.log == nil {
		w.log = zap.NewNop()
	}
	return w
}

// Run bloqueia até o ctx encerrar. Erros nunca derrubam o loop: cada erro
// pausa ErrorPause e uma sequência longa pausa StormPause e zera a contagem.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Retry worker started", zap.Duration("idle", w.idle))
	defer w.log.Info("Retry worker stopped")

	consecutive := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		req, ok := w.queue.Next(ctx, w.idle)
		if !ok {
			consecutive = 0
			continue
		}

		err := w.process(ctx, req)
		if err == nil || errors.Is(err, domain.ErrNotResolved) {
			consecutive = 0
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		consecutive++
		pause := w.errorPause
		if consecutive >= w.maxErrors {
			w.log.Warn("Too many consecutive retry errors, pausing",
				zap.Int("consecutive_errors", consecutive),
				zap.Duration("pause", w.stormPause))
			pause = w.stormPause
			consecutive = 0
		} else {
			w.log.Error("Retry lookup failed",
				zap.Error(err),
				zap.String("identity", req.Identity.String()),
				zap.Int("consecutive_errors", consecutive))
		}
		if err := w.sleep(ctx, pause); err != nil {
			return nil
		}
	}
}

func (w *Worker) process(ctx context.Context, req domain.ResolveRequest) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("retry lookup panic: %v", p)
		}
		w.record(ctx, req, err)
	}()

	w.log.Info("Processing queued lookup", zap.String("identity", req.Identity.String()))
	return w.refresher.Refresh(ctx, req)
}

func (w *Worker) record(ctx context.Context, req domain.ResolveRequest, err error) {
	if w.stats == nil {
		return
	}
	outcome := domain.OutcomeRecorded
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotResolved):
		outcome = domain.OutcomeUnresolved
	default:
		outcome = domain.OutcomeFailed
	}
	_ = w.stats.Record(ctx, domain.StatsEvent{Identity: req.Identity, Kind: "retry", Outcome: outcome, At: w.now()})
}
