package domain

import (
	"strings"
	"time"
)

// ClickEvent chega de forma síncrona quando o destinatário abre um link do e-mail.
type ClickEvent struct {
	Identity string
	Choice   Choice
	SourceIP string
}

// WebhookEvent é a notificação assíncrona do fornecedor descrevendo o mesmo clique.
//
// Step <= 0 significa "sem step".
type WebhookEvent struct {
	ID               string
	Identity         string
	EventType        string
	RawPayload       map[string]any
	EmbeddedTargetID string
	EmbeddedSubject  string
	Account          string
	Campaign         string
	Step             int
	ReceivedAt       time.Time
}

// IsClick diz se o tipo do evento descreve um clique de link.
func (e WebhookEvent) IsClick() bool {
	return strings.Contains(strings.ToLower(e.EventType), "click")
}

// ResolveRequest monta a chave composta de resolução a partir do webhook.
func (e WebhookEvent) ResolveRequest() ResolveRequest {
	return ResolveRequest{
		Identity: NormalizeIdentity(e.Identity),
		Account:  e.Account,
		Campaign: e.Campaign,
		Step:     e.Step,
	}
}

// ClickRecord é o clique guardado à espera do webhook correspondente.
// Só existe um por identidade: um clique novo substitui o anterior.
type ClickRecord struct {
	Identity  Identity
	Choice    Choice
	SourceIP  string
	CreatedAt time.Time
}

// PendingWebhook é um webhook que chegou antes do clique.
type PendingWebhook struct {
	Event     WebhookEvent
	ArrivedAt time.Time
}
