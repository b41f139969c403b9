// Package infra contém implementações concretas (infraestrutura) para os
// contratos definidos no pacote domain.
//
// Exemplos:
//   - TTLStore: map genérico com expiração absoluta e poda preguiçosa na escrita
//   - SlidingWindow: limite de chamadas externas por janela deslizante
//   - RetryQueue: fila limitada de buscas adiadas
//   - InstantlyClient: busca, validação e envio de resposta na API da Instantly
//   - ClientLimits: token bucket por cliente usando golang.org/x/time/rate
//   - ChanPool: semáforo simples para limite de concorrência
//   - MemoryStatsStore / RedisStatsStore: contadores de decisões
package infra
