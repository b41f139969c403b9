package domain

import (
	"fmt"
	"time"
)

// FallbackSubject é usado quando a resolução não traz assunto. A resposta
// precisa de assunto não vazio para entrar na thread.
const FallbackSubject = "Loan Update"

// ResolveRequest identifica um e-mail lógico: (identidade, conta, campanha, step).
//
// É comparável e serve direto como chave de map, sem concatenação de strings.
type ResolveRequest struct {
	Identity Identity
	Account  string
	Campaign string
	Step     int
}

// HasStep diz se o step deve ser usado como filtro.
func (r ResolveRequest) HasStep() bool { return r.Step > 0 }

// String gera uma forma textual sem colisão de delimitador (campos com %q).
func (r ResolveRequest) String() string {
	return fmt.Sprintf("%q|%q|%q|%d", r.Identity, r.Account, r.Campaign, r.Step)
}

// Resolution é o alvo da resposta (id do e-mail original) e o assunto.
type Resolution struct {
	TargetID string
	Subject  string
}

// Candidate é um e-mail devolvido pela API de busca.
type Candidate struct {
	ID         string
	Lead       string
	Subject    string
	Step       int
	CampaignID string
	CreatedAt  time.Time
}

// Reply é a resposta a ser enviada na thread do e-mail original.
type Reply struct {
	Account   string
	TargetID  string
	Subject   string
	Body      string
	Recipient string
}
