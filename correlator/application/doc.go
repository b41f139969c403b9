// Package application contém os casos de uso da correlação clique/webhook.
//
// Depende apenas do pacote domain (e de interfaces pequenas declaradas aqui);
// não conhece net/http nem a API da Instantly.
//   - Resolver: cache -> limite de taxa -> busca externa, com o caminho do 429
//   - Correlator: máquina de estados por identidade e envio único da resposta
//   - Worker: drena a fila de retentativas sob o mesmo limite
//   - Admission: decisão allow/deny e vaga de concorrência para a entrada HTTP
package application
