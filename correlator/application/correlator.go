package application

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"click-reply-correlator/correlator/domain"
)

// ClickStore guarda no máximo um clique vivo por identidade.
type ClickStore interface {
	Put(domain.Identity, domain.ClickRecord) int
	Take(domain.Identity) (domain.ClickRecord, bool)
	FindKey(match func(domain.Identity) bool) (domain.Identity, bool)
	Len() int
}

// PendingTable guarda webhooks que chegaram antes do clique.
type PendingTable interface {
	Add(domain.Identity, domain.PendingWebhook) (queued int, pruned int)
	Drain(domain.Identity) []domain.PendingWebhook
	PruneExpired(now time.Time) int
	Len() int
}

// TargetResolver é o que o Correlator precisa do Resolver.
type TargetResolver interface {
	Resolve(ctx context.Context, req domain.ResolveRequest) (domain.Resolution, error)
	Validate(ctx context.Context, targetID, account string, id domain.Identity) (domain.Resolution, bool, error)
	Remember(req domain.ResolveRequest, res domain.Resolution)
}

type CorrelatorConfig struct {
	Clicks   ClickStore
	Pending  PendingTable
	Resolver TargetResolver
	Sender   domain.ReplySender
	Renderer domain.ReplyRenderer
	// Limiter é o mesmo limitador das buscas: o envio consome a mesma cota da conta.
	Limiter domain.SlotAcquirer
	Stats   domain.StatsStore
	// DefaultAccount é usada quando o webhook não traz email_account.
	DefaultAccount string
	Now            func() time.Time
	Log            *zap.Logger
	// Synchronous executa o trabalho de fundo inline (testes).
	Synchronous bool
}

// Correlator decide, por identidade, o que fazer com cada clique e webhook:
//
//	Idle -> ClickRecorded -> Matched
//	Idle -> WebhookPending -> Matched
//
// Matched envia a resposta uma única vez; Unresolved desiste e registra.
type Correlator struct {
	clicks   ClickStore
	pending  PendingTable
	resolver TargetResolver
	sender   domain.ReplySender
	renderer domain.ReplyRenderer
	limiter  domain.SlotAcquirer
	stats    domain.StatsStore

	defaultAccount string
	now            func() time.Time
	log            *zap.Logger
	synchronous    bool

	wg sync.WaitGroup
}

func NewCorrelator(cfg CorrelatorConfig) *Correlator {
	c := &Correlator{
		clicks:         cfg.Clicks,
		pending:        cfg.Pending,
		resolver:       cfg.Resolver,
		sender:         cfg.Sender,
		renderer:       cfg.Renderer,
		limiter:        cfg.Limiter,
		stats:          cfg.Stats,
		defaultAccount: cfg.DefaultAccount,
		now:            cfg.Now,
		log:            cfg.Log,
		synchronous:    cfg.Synchronous,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

// RecordClick guarda o clique (último clique vence) e, se havia webhooks
// pendentes para a identidade, os reprocessa em segundo plano, do mais recente
// para o mais antigo.
func (c *Correlator) RecordClick(ctx context.Context, ev domain.ClickEvent) domain.Decision {
	id := domain.NormalizeIdentity(ev.Identity)
	if id.Empty() || !ev.Choice.Valid() {
		c.log.Warn("Dropping malformed click",
			zap.String("identity", ev.Identity),
			zap.String("choice", string(ev.Choice)))
		return c.decide(ctx, "click", id, domain.Decision{Outcome: domain.OutcomeDropped, Reason: domain.ErrMalformed.Error()})
	}

	now := c.now()
	pruned := c.clicks.Put(id, domain.ClickRecord{
		Identity:  id,
		Choice:    ev.Choice,
		SourceIP:  ev.SourceIP,
		CreatedAt: now,
	})
	prunedPending := c.pending.PruneExpired(now)
	c.log.Info("Click stored",
		zap.String("identity", id.String()),
		zap.String("choice", string(ev.Choice)),
		zap.String("source_ip", ev.SourceIP),
		zap.Int("pruned_clicks", pruned),
		zap.Int("pruned_pending", prunedPending))

	dec := domain.Decision{Outcome: domain.OutcomeRecorded, Choice: ev.Choice}

	drained := c.pending.Drain(id)
	if len(drained) > 0 {
		dec.Replayed = len(drained)
		c.log.Info("Replaying webhooks that arrived before the click",
			zap.String("identity", id.String()),
			zap.Int("pending", len(drained)))
		c.spawn(ctx, func(ctx context.Context) {
			c.replay(ctx, drained)
		})
	}

	return c.decide(ctx, "click", id, dec)
}

// Submit processa o webhook em segundo plano; a camada HTTP responde na hora.
func (c *Correlator) Submit(ctx context.Context, ev domain.WebhookEvent) {
	c.spawn(ctx, func(ctx context.Context) {
		c.HandleWebhook(ctx, ev)
	})
}

// HandleWebhook tenta casar o webhook com um clique guardado. Sem clique, o
// webhook fica pendente até um clique chegar ou expirar.
func (c *Correlator) HandleWebhook(ctx context.Context, ev domain.WebhookEvent) domain.Decision {
	arrived := ev.ReceivedAt
	if arrived.IsZero() {
		arrived = c.now()
	}
	return c.handleWebhook(ctx, ev, arrived)
}

func (c *Correlator) handleWebhook(ctx context.Context, ev domain.WebhookEvent, arrived time.Time) domain.Decision {
	id := domain.NormalizeIdentity(ev.Identity)
	log := c.log.With(zap.String("event_id", ev.ID), zap.String("identity", id.String()))

	if !ev.IsClick() {
		log.Debug("Ignoring non-click webhook", zap.String("event_type", ev.EventType))
		return c.decide(ctx, "webhook", id, domain.Decision{Outcome: domain.OutcomeIgnored, Reason: "event type " + ev.EventType})
	}
	if id.Empty() {
		log.Warn("Dropping webhook without lead email")
		return c.decide(ctx, "webhook", id, domain.Decision{Outcome: domain.OutcomeDropped, Reason: domain.ErrMalformed.Error()})
	}
	if strings.TrimSpace(ev.Account) == "" {
		ev.Account = c.defaultAccount
	}

	click, ok := c.takeClick(id)
	if !ok {
		queued, _ := c.pending.Add(id, domain.PendingWebhook{Event: ev, ArrivedAt: arrived})
		if c.hasClick(id) {
			// o clique entrou entre a busca e o Add; quem drenar primeiro responde
			if drained := c.pending.Drain(id); len(drained) > 0 {
				log.Info("Click arrived while storing webhook, replaying pending", zap.Int("pending", len(drained)))
				return c.replay(ctx, drained)
			}
		}
		log.Info("Webhook arrived before click, stored as pending", zap.Int("pending", queued))
		return c.decide(ctx, "webhook", id, domain.Decision{Outcome: domain.OutcomeDeferred, Reason: "no click yet"})
	}

	log.Info("Webhook matched click",
		zap.String("choice", string(click.Choice)),
		zap.Duration("click_age", c.now().Sub(click.CreatedAt)))
	return c.decide(ctx, "webhook", id, c.reply(ctx, log, ev, id, click))
}

// replay reprocessa os pendentes do mais recente para o mais antigo. Só o
// primeiro a achar o clique responde; os demais voltam a ficar pendentes.
// Devolve a decisão do mais recente.
func (c *Correlator) replay(ctx context.Context, drained []domain.PendingWebhook) domain.Decision {
	var first domain.Decision
	for i := len(drained) - 1; i >= 0; i-- {
		dec := c.handleWebhook(ctx, drained[i].Event, drained[i].ArrivedAt)
		if i == len(drained)-1 {
			first = dec
		}
	}
	return first
}

func (c *Correlator) hasClick(id domain.Identity) bool {
	_, ok := c.clicks.FindKey(func(k domain.Identity) bool {
		return strings.EqualFold(string(k), string(id))
	})
	return ok
}

// takeClick consome o clique pela chave exata e, se não achar, por uma
// varredura sem diferenciar maiúsculas.
func (c *Correlator) takeClick(id domain.Identity) (domain.ClickRecord, bool) {
	if rec, ok := c.clicks.Take(id); ok {
		return rec, true
	}
	key, ok := c.clicks.FindKey(func(k domain.Identity) bool {
		return strings.EqualFold(string(k), string(id))
	})
	if !ok {
		return domain.ClickRecord{}, false
	}
	return c.clicks.Take(key)
}

func (c *Correlator) reply(ctx context.Context, log *zap.Logger, ev domain.WebhookEvent, id domain.Identity, click domain.ClickRecord) domain.Decision {
	req := ev.ResolveRequest()
	req.Identity = id

	res, err := c.target(ctx, log, ev, req)
	if err != nil {
		log.Error("Reply target not resolved, giving up", zap.Error(err))
		return domain.Decision{Outcome: domain.OutcomeUnresolved, Reason: err.Error(), Choice: click.Choice}
	}

	body, err := c.renderer.Render(click.Choice, id)
	if err != nil {
		log.Error("Failed to render reply", zap.Error(err))
		return domain.Decision{Outcome: domain.OutcomeFailed, Reason: err.Error(), Choice: click.Choice}
	}

	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx); err != nil {
			log.Error("Failed to acquire reply slot", zap.Error(err))
			return domain.Decision{Outcome: domain.OutcomeFailed, Reason: err.Error(), Choice: click.Choice}
		}
	}

	err = c.sender.SendReply(ctx, domain.Reply{
		Account:   ev.Account,
		TargetID:  res.TargetID,
		Subject:   res.Subject,
		Body:      body,
		Recipient: id.String(),
	})
	if err != nil {
		log.Error("Reply failed",
			zap.Error(err),
			zap.String("choice", string(click.Choice)),
			zap.String("target_id", res.TargetID))
		return domain.Decision{Outcome: domain.OutcomeFailed, Reason: err.Error(), Choice: click.Choice}
	}

	log.Info("Reply sent",
		zap.String("choice", string(click.Choice)),
		zap.String("target_id", res.TargetID),
		zap.String("subject", res.Subject))
	return domain.Decision{Outcome: domain.OutcomeSent, Choice: click.Choice}
}

// target usa o id embutido no webhook quando existe (validado se possível);
// senão resolve pelo cache/busca.
func (c *Correlator) target(ctx context.Context, log *zap.Logger, ev domain.WebhookEvent, req domain.ResolveRequest) (domain.Resolution, error) {
	if ev.EmbeddedTargetID == "" {
		return c.resolver.Resolve(ctx, req)
	}

	res := domain.Resolution{TargetID: ev.EmbeddedTargetID, Subject: subjectOrFallback(ev.EmbeddedSubject)}
	validated, ok, err := c.resolver.Validate(ctx, ev.EmbeddedTargetID, ev.Account, req.Identity)
	switch {
	case err != nil:
		log.Warn("Embedded target validation failed, using it anyway", zap.Error(err))
	case !ok:
		log.Warn("Embedded target not confirmed for lead, using it anyway")
	default:
		res = validated
	}
	c.resolver.Remember(req, res)
	return res, nil
}

func (c *Correlator) decide(ctx context.Context, kind string, id domain.Identity, dec domain.Decision) domain.Decision {
	if c.stats != nil {
		err := c.stats.Record(ctx, domain.StatsEvent{
			Identity: id,
			Kind:     kind,
			Outcome:  dec.Outcome,
			At:       c.now(),
		})
		if err != nil {
			c.log.Debug("Failed to record stats", zap.Error(err))
		}
	}
	return dec
}

func (c *Correlator) spawn(ctx context.Context, fn func(context.Context)) {
	// o trabalho de fundo não morre junto com a requisição HTTP
	bg := context.WithoutCancel(ctx)
	if c.synchronous {
		fn(bg)
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(bg)
	}()
}

// Wait espera o trabalho de fundo terminar ou o ctx encerrar.
func (c *Correlator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sizes devolve o tamanho das tabelas (inclui vencidos ainda não podados).
func (c *Correlator) Sizes() (clicks, pending int) {
	return c.clicks.Len(), c.pending.Len()
}
