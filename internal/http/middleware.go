package httpapi

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/obs"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
)

// CallerHeader carries the address a mutating request acts as.
const CallerHeader = "X-Caller-Address"

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID).(string)
	return v
}

type statusRecorder struct {
	h  http.ResponseWriter
	st int
	n  int
}

func (w *statusRecorder) Header() http.Header { return w.h.Header() }
func (w *statusRecorder) WriteHeader(code int) {
	w.st = code
	w.h.WriteHeader(code)
}
func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.h.Write(b)
	w.n += n
	return n, err
}

// Hijack lets the event stream upgrade through the logging middleware.
func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.h.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("httpapi: response writer cannot hijack")
	}
	w.st = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, reqID)))
	})
}

func WithLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{h: w, st: 200}
		next.ServeHTTP(sr, r)
		lat := time.Since(start)
		obs.Logger.Info("http_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sr.st,
			"bytes", sr.n,
			"latency_ms", float64(lat.Microseconds())/1000.0,
			"caller", r.Header.Get(CallerHeader),
			"request_id", RequestIDFromContext(r.Context()),
		)
	})
}

// callerFrom reads and validates the caller header. It writes the error
// response itself and reports false when the header is unusable.
func callerFrom(w http.ResponseWriter, r *http.Request) (model.Address, bool) {
	raw := r.Header.Get(CallerHeader)
	if raw == "" {
		writeError(w, r, http.StatusBadRequest, "missing_caller", CallerHeader+" header is required")
		return "", false
	}
	a, err := model.ParseAddress(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_caller", err.Error())
		return "", false
	}
	return a, true
}
