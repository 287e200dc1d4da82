package mapsurface

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"meshboard-maps/mapsurface/application"
	"meshboard-maps/mapsurface/domain"
	"meshboard-maps/mapsurface/infra"
)

type KeyFunc func(r *http.Request) string

// ThrottleOptions configura os limites aplicados à rota de snapshot.
type ThrottleOptions struct {
	Store              domain.LimiterStore
	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool
	RetryAfter         time.Duration
	AddHeaders         bool

	// MaxInFlight <= 0 desliga o limite de pedidos simultâneos.
	MaxInFlight    int
	AcquireTimeout time.Duration

	Logger *slog.Logger
}

type rateInfo interface {
	RPS() float64
	Burst() int
}

// DefaultKeyFunc identifica o cliente: header configurado, depois o primeiro
// IP do X-Forwarded-For (se confiável), depois o host de RemoteAddr.
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

func (o *ThrottleOptions) gate() application.SnapshotGate {
	g := application.SnapshotGate{
		Limiters:       o.Store,
		RetryAfter:     o.RetryAfter,
		AcquireTimeout: o.AcquireTimeout,
	}
	if o.MaxInFlight > 0 {
		g.Slots = infra.NewChanPool(o.MaxInFlight)
	}
	return g
}

// Throttle devolve o middleware que aplica, nesta ordem, o token bucket do
// cliente (429 + Retry-After) e o limite de pedidos simultâneos (503).
func Throttle(opts ThrottleOptions) func(next http.Handler) http.Handler {
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gate := opts.gate()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			if opts.AddHeaders {
				w.Header().Set("X-RateLimit-Key", key)
				if ri, ok := opts.Store.(rateInfo); ok {
					w.Header().Set("X-RateLimit-RPS", formatFloat(ri.RPS()))
					w.Header().Set("X-RateLimit-Burst", formatInt(ri.Burst()))
				}
			}

			dec := gate.Decide(domain.Key(key))
			if !dec.Allowed {
				logger.Debug("snapshot throttled", "client", key)
				w.Header().Set("Retry-After", formatInt(int(dec.RetryAfter.Seconds())))
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}

			release, ok := gate.Acquire(r.Context())
			if !ok {
				logger.Debug("snapshot rejected, too many in flight", "client", key)
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
