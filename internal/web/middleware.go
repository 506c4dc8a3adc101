package web

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-Id"

type ctxKey struct{}

type requestState struct {
	id    string
	mu    sync.Mutex
	attrs []any
}

func requestID(ctx context.Context) string {
	if st, ok := ctx.Value(ctxKey{}).(*requestState); ok {
		return st.id
	}
	return ""
}

// annotate adds key/value pairs to the request's log line.
func annotate(ctx context.Context, kv ...any) {
	st, ok := ctx.Value(ctxKey{}).(*requestState)
	if !ok {
		return
	}
	st.mu.Lock()
	st.attrs = append(st.attrs, kv...)
	st.mu.Unlock()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// withRequestLog assigns a request ID (honouring a valid inbound one) and
// emits one log line per request.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		st := &requestState{id: id}
		w.Header().Set(RequestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), ctxKey{}, st)))

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		attrs := []any{
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", rec.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		st.mu.Lock()
		attrs = append(attrs, st.attrs...)
		st.mu.Unlock()

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "request", attrs...)
	})
}

// withRateLimit applies the policy's per-client budget, keyed by remote IP.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := s.eng.Settings().Limits.Rate
		if !limit.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		res := s.limiter.Allow(clientKey(r), limit, time.Now())
		if res.Exceeded {
			annotate(r.Context(), "rate_limited", true)
			secs := int(math.Ceil(res.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
			writeError(w, r, http.StatusTooManyRequests, "rate_limited", res.Reason, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
