package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"click-reply-correlator/correlator/domain"
)

// ResolutionCache memoriza alvos resolvidos pela chave composta.
type ResolutionCache interface {
	Get(domain.ResolveRequest) (domain.Resolution, bool)
	Put(domain.ResolveRequest, domain.Resolution) int
}

// RetryEnqueuer recebe buscas adiadas. Não bloqueia; fila cheia devolve erro.
type RetryEnqueuer interface {
	Enqueue(domain.ResolveRequest) error
}

type ResolverConfig struct {
	Cache   ResolutionCache
	Limiter domain.SlotAcquirer
	Lookup  domain.LookupClient
	Retries RetryEnqueuer
	// Backoff antes da única retentativa síncrona depois de um 429 (padrão 5s).
	Backoff time.Duration
	Sleep   func(ctx context.Context, d time.Duration) error
	Log     *zap.Logger
}

// Resolver transforma (identidade, conta, campanha, step) no id do e-mail a
// responder e no assunto original.
type Resolver struct {
	cache   ResolutionCache
	limiter domain.SlotAcquirer
	lookup  domain.LookupClient
	retries RetryEnqueuer
	backoff time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	log     *zap.Logger

	group singleflight.Group
}

func NewResolver(cfg ResolverConfig) *Resolver {
	r := &Resolver{
		cache:   cfg.Cache,
		limiter: cfg.Limiter,
		lookup:  cfg.Lookup,
		retries: cfg.Retries,
		backoff: cfg.Backoff,
		sleep:   cfg.Sleep,
		log:     cfg.Log,
	}
	if r.backoff <= 0 {
		r.backoff = 5 * time.Second
	}
	if r.sleep == nil {
		r.sleep = sleepContext
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	return r
}

// Resolve devolve o alvo da resposta. Acerto no cache não toca no limitador.
//
// Num 429 a busca vai para a fila de retentativas e, além disso, é refeita uma
// vez aqui depois do backoff. Se falhar de novo, devolve ErrNotResolved.
func (r *Resolver) Resolve(ctx context.Context, req domain.ResolveRequest) (domain.Resolution, error) {
	if res, ok := r.cache.Get(req); ok {
		r.log.Debug("Resolution cache hit", zap.String("identity", req.Identity.String()))
		return res, nil
	}

	// buscas idênticas e simultâneas viram uma só chamada externa
	v, err, shared := r.group.Do(req.String(), func() (any, error) {
		if res, ok := r.cache.Get(req); ok {
			return res, nil
		}
		return r.lookupAndCache(ctx, req)
	})
	if err != nil {
		return domain.Resolution{}, err
	}
	if shared {
		r.log.Debug("Resolution shared with concurrent caller", zap.String("identity", req.Identity.String()))
	}
	return v.(domain.Resolution), nil
}

func (r *Resolver) lookupAndCache(ctx context.Context, req domain.ResolveRequest) (domain.Resolution, error) {
	cands, err := r.fetch(ctx, req)
	if errors.Is(err, domain.ErrThrottled) {
		r.log.Warn("Lookup throttled, queuing for retry and retrying once",
			zap.String("identity", req.Identity.String()),
			zap.Duration("backoff", r.backoff))
		if r.retries != nil {
			_ = r.retries.Enqueue(req)
		}
		if err := r.sleep(ctx, r.backoff); err != nil {
			return domain.Resolution{}, err
		}
		cands, err = r.fetch(ctx, req)
	}
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("%w: %w", domain.ErrNotResolved, err)
	}
	return r.store(req, cands)
}

// Refresh é o caminho do worker: uma tentativa, sem backoff local. Num novo
// 429 a busca volta para a fila.
func (r *Resolver) Refresh(ctx context.Context, req domain.ResolveRequest) error {
	if _, ok := r.cache.Get(req); ok {
		return nil
	}
	cands, err := r.fetch(ctx, req)
	if errors.Is(err, domain.ErrThrottled) && r.retries != nil {
		if qerr := r.retries.Enqueue(req); qerr != nil {
			return fmt.Errorf("requeue lookup: %w", qerr)
		}
	}
	if err != nil {
		return err
	}
	_, err = r.store(req, cands)
	return err
}

func (r *Resolver) fetch(ctx context.Context, req domain.ResolveRequest) ([]domain.Candidate, error) {
	if err := r.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("acquire lookup slot: %w", err)
	}
	return r.lookup.ListEmails(ctx, req)
}

func (r *Resolver) store(req domain.ResolveRequest, cands []domain.Candidate) (domain.Resolution, error) {
	res, ok := SelectCandidate(cands, req)
	if !ok {
		r.log.Warn("No usable email found for lead",
			zap.String("identity", req.Identity.String()),
			zap.String("account", req.Account),
			zap.Int("results", len(cands)))
		return domain.Resolution{}, domain.ErrNotResolved
	}
	r.cache.Put(req, res)
	r.log.Info("Reply target resolved",
		zap.String("identity", req.Identity.String()),
		zap.String("target_id", res.TargetID),
		zap.Int("step", req.Step))
	return res, nil
}

// Validate confere se o id embutido no webhook pertence mesmo à identidade e
// traz o assunto correto. ok=false quando pertence a outro lead.
func (r *Resolver) Validate(ctx context.Context, targetID, account string, id domain.Identity) (domain.Resolution, bool, error) {
	if targetID == "" {
		return domain.Resolution{}, false, nil
	}
	if err := r.limiter.Acquire(ctx); err != nil {
		return domain.Resolution{}, false, fmt.Errorf("acquire lookup slot: %w", err)
	}
	cand, err := r.lookup.GetEmail(ctx, targetID, account)
	if err != nil {
		return domain.Resolution{}, false, err
	}
	if domain.NormalizeIdentity(cand.Lead) != id {
		r.log.Warn("Embedded target belongs to another lead",
			zap.String("target_id", targetID),
			zap.String("identity", id.String()),
			zap.String("lead", cand.Lead))
		return domain.Resolution{}, false, nil
	}
	return domain.Resolution{TargetID: targetID, Subject: subjectOrFallback(cand.Subject)}, true, nil
}

// Remember grava no cache um alvo obtido fora da busca (ex.: embutido no webhook).
func (r *Resolver) Remember(req domain.ResolveRequest, res domain.Resolution) {
	r.cache.Put(req, res)
}

// SelectCandidate aplica, em ordem: filtro por step, filtro por campanha e
// recência. Um filtro que não casa nada é ignorado (volta ao conjunto anterior).
func SelectCandidate(cands []domain.Candidate, req domain.ResolveRequest) (domain.Resolution, bool) {
	if len(cands) == 0 {
		return domain.Resolution{}, false
	}

	set := cands
	if req.HasStep() {
		if f := filterCandidates(set, func(c domain.Candidate) bool { return c.Step == req.Step }); len(f) > 0 {
			set = f
		}
	}
	if req.Campaign != "" {
		if f := filterCandidates(set, func(c domain.Candidate) bool { return c.CampaignID == req.Campaign }); len(f) > 0 {
			set = f
		}
	}

	sorted := make([]domain.Candidate, len(set))
	copy(sorted, set)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })

	best := sorted[0]
	if strings.TrimSpace(best.ID) == "" {
		return domain.Resolution{}, false
	}
	return domain.Resolution{TargetID: best.ID, Subject: subjectOrFallback(best.Subject)}, true
}

func filterCandidates(in []domain.Candidate, keep func(domain.Candidate) bool) []domain.Candidate {
	var out []domain.Candidate
	for _, c := range in {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

func subjectOrFallback(s string) string {
	if strings.TrimSpace(s) == "" {
		return domain.FallbackSubject
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
