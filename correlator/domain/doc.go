// Package domain define os tipos e contratos da correlação clique/webhook.
//
// Este pacote não depende de net/http nem de implementações concretas.
// Tudo que é infraestrutura (HTTP da Instantly, Redis, relógio) entra por
// interface ou por função injetada, o que mantém os casos de uso testáveis
// com relógio falso.
package domain
