package correlator

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"click-reply-correlator/correlator/application"
	"click-reply-correlator/correlator/domain"
)

type KeyFunc func(r *http.Request) string

// AdmissionOptions configura as travas de entrada: token bucket por cliente
// (Limits) e teto de requisições simultâneas (Pool).
type AdmissionOptions struct {
	Limits             domain.LimiterStore
	Pool               domain.SlotPool
	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool
	RetryAfter         time.Duration
	AcquireTimeout     time.Duration
	AddHeaders         bool
	Log                *zap.Logger
}

type rateInfo interface {
	RPS() float64
	Burst() int
}

// DefaultKeyFunc identifica o cliente: header configurado, depois o primeiro
// IP do X-Forwarded-For (se confiável), depois RemoteAddr.
func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// AdmissionMiddleware responde 429 quando o cliente estoura o token bucket e
// 503 quando não há vaga de concorrência a tempo.
func AdmissionMiddleware(opts AdmissionOptions) func(next http.Handler) http.Handler {
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	adm := application.Admission{
		Limits:         opts.Limits,
		Pool:           opts.Pool,
		RetryAfter:     opts.RetryAfter,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			if opts.AddHeaders {
				w.Header().Set("X-RateLimit-Key", key)
				if ri, ok := opts.Limits.(rateInfo); ok {
					w.Header().Set("X-RateLimit-RPS", strconv.FormatFloat(ri.RPS(), 'f', -1, 64))
					w.Header().Set("X-RateLimit-Burst", strconv.Itoa(ri.Burst()))
				}
			}

			dec := adm.Decide(domain.Key(key))
			if !dec.Allowed {
				opts.Log.Warn("Inbound request rate limited",
					zap.String("client", key),
					zap.String("path", r.URL.Path))
				w.Header().Set("Retry-After", strconv.Itoa(int(dec.RetryAfter.Seconds())))
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}

			release, ok := adm.Acquire(r.Context())
			if !ok {
				opts.Log.Warn("No concurrency slot for inbound request", zap.String("path", r.URL.Path))
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
