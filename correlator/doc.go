// Package correlator expõe o núcleo de correlação por HTTP.
//
// Visão geral (camadas):
//
//   - domain: tipos e contratos (sem net/http)
//   - application: casos de uso (Correlator, Resolver, Worker, Admission)
//   - infra: TTLStore, janela deslizante, fila de retentativas, cliente Instantly, Redis
//   - correlator (este pacote): rotas gin + middlewares net/http de admissão
//
// Fluxo:
//
//  1. GET /{settle|close|never|time|human}?email=... grava o clique
//  2. POST /webhook/instantly valida o JSON, responde 200 na hora e processa em segundo plano
//  3. o Correlator casa clique e webhook e envia a resposta uma única vez
//
// Nenhum erro do núcleo chega ao remetente do webhook além de "accepted".
package correlator
