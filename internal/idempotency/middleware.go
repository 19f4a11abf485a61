package idempotency

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"time"

	apierrors "github.com/CedrosPay/cardcheckout/internal/errors"
	"github.com/CedrosPay/cardcheckout/internal/logger"
)

const (
	// HeaderKey carries the client-chosen idempotency key.
	HeaderKey = "Idempotency-Key"

	// HeaderReplay marks a response served from the cache.
	HeaderReplay = "X-Idempotency-Replay"

	DefaultTTL = 24 * time.Hour
)

type captureWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	body        bytes.Buffer
}

func (cw *captureWriter) WriteHeader(statusCode int) {
	if cw.wroteHeader {
		return
	}
	cw.wroteHeader = true
	cw.statusCode = statusCode
	cw.ResponseWriter.WriteHeader(statusCode)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	cw.body.Write(b)
	return cw.ResponseWriter.Write(b)
}

func (cw *captureWriter) headers() map[string]string {
	out := make(map[string]string, len(cw.Header()))
	for key := range cw.Header() {
		out[key] = cw.Header().Get(key)
	}
	return out
}

// Middleware replays the stored response for a repeated Idempotency-Key.
//
// Keys are scoped by method and path, so the same key on two sessions never
// collides. Responses below 500 are stored: a decline must not be charged
// again on a blind client retry, while a 5xx leaves the key free to retry.
// A second request arriving while the first is still running gets 409.
// A nil store disables the middleware.
func Middleware(store Store, ttl time.Duration) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	var inflight sync.Map

	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawKey := r.Header.Get(HeaderKey)
			if rawKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Method + ":" + r.URL.Path + ":" + rawKey

			if cached, ok := store.Get(r.Context(), key); ok {
				replay(w, cached)
				return
			}

			if _, busy := inflight.LoadOrStore(key, struct{}{}); busy {
				apierrors.WriteSimpleError(w, apierrors.ErrCodeCheckoutBusy, "A request with this idempotency key is already in progress")
				return
			}
			defer inflight.Delete(key)

			cw := &captureWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(cw, r)

			if cw.statusCode >= http.StatusInternalServerError {
				return
			}
			// Detached from the request so a client disconnect does not drop the record.
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
			defer cancel()
			err := store.Set(ctx, key, &Response{
				StatusCode: cw.statusCode,
				Headers:    cw.headers(),
				Body:       append([]byte(nil), cw.body.Bytes()...),
				CachedAt:   time.Now(),
			}, ttl)
			if err != nil {
				log := logger.FromContext(r.Context())
				log.Warn().
					Err(err).
					Str("path", r.URL.Path).
					Msg("idempotency.store_failed")
			}
		})
	}
}

func replay(w http.ResponseWriter, cached *Response) {
	for k, v := range cached.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set(HeaderReplay, "true")
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
}
