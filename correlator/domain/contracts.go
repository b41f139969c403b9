package domain

import "context"

// LookupClient é a API externa (lenta e com limite de taxa) que resolve o alvo.
//
// Implementações devem devolver ErrThrottled quando o serviço sinalizar 429.
type LookupClient interface {
	ListEmails(ctx context.Context, req ResolveRequest) ([]Candidate, error)
	GetEmail(ctx context.Context, id, account string) (Candidate, error)
}

// ReplySender envia a resposta. É best-effort: o núcleo não reenvia.
type ReplySender interface {
	SendReply(ctx context.Context, r Reply) error
}

// ReplyRenderer monta o corpo HTML da resposta.
type ReplyRenderer interface {
	Render(choice Choice, recipient Identity) (string, error)
}

// SlotAcquirer bloqueia até existir vaga para uma chamada externa.
type SlotAcquirer interface {
	Acquire(ctx context.Context) error
}
