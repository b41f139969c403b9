package domain

// Outcome é o resultado final do tratamento de um evento.
type Outcome string

const (
	OutcomeRecorded   Outcome = "recorded"   // clique guardado
	OutcomeSent       Outcome = "sent"       // resposta enviada
	OutcomeDeferred   Outcome = "deferred"   // webhook guardado como pendente
	OutcomeDropped    Outcome = "dropped"    // entrada inválida
	OutcomeIgnored    Outcome = "ignored"    // evento que não é de clique
	OutcomeUnresolved Outcome = "unresolved" // alvo não encontrado, desistiu
	OutcomeFailed     Outcome = "failed"     // envio falhou (terminal)
)

// Decision é o que o núcleo devolve para a camada HTTP.
type Decision struct {
	Outcome Outcome
	Reason  string
	Choice  Choice
	// Replayed conta quantos webhooks pendentes foram reprocessados por um clique.
	Replayed int
}
