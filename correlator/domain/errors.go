package domain

import "errors"

var (
	// ErrThrottled indica que a API externa respondeu 429.
	ErrThrottled = errors.New("external api throttled")
	// ErrNotResolved indica que a busca não produziu alvo utilizável.
	ErrNotResolved = errors.New("reply target not resolved")
	// ErrMalformed indica evento incompleto ou ilegível.
	ErrMalformed = errors.New("malformed event")
	// ErrQueueFull indica que a fila de retentativas está cheia e o item foi descartado.
	ErrQueueFull = errors.New("retry queue full")
	// ErrReplyRejected indica que o fornecedor recusou a resposta (mesmo com HTTP 2xx).
	ErrReplyRejected = errors.New("reply rejected by vendor")
)
