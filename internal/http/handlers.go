package httpapi

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/config"
	httpopenapi "github.com/fairyhunter13/service-marketplace-ledger/internal/http/openapi"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/marketplace"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/notify"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/obs"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/queue"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/token"
)

type App struct {
	Cfg     config.Config
	Manager *queue.Manager
	Hub     *notify.Hub
	// Token is set when the payment token runs in this process; the token
	// routes are mounted only then.
	Token *token.Token

	closing atomic.Bool
	started time.Time
}

// committed is the reply to a successful mutation.
type committed struct {
	RequestID string            `json:"request_id"`
	At        model.Timestamp   `json:"at"`
	Events    []notify.Envelope `json:"events"`
}

func NewApp(cfg config.Config, m *queue.Manager, hub *notify.Hub, tok *token.Token) *App {
	return &App{Cfg: cfg, Manager: m, Hub: hub, Token: tok, started: time.Now()}
}

func (a *App) StartShutdown() {
	a.closing.Store(true)
	a.Manager.CloseIntake()
}

// submit runs op as the request's caller and writes the committed events.
func (a *App) submit(w http.ResponseWriter, r *http.Request, name string, status int, op queue.Op) {
	if a.closing.Load() || a.Manager.IsShuttingDown() {
		writeError(w, r, http.StatusServiceUnavailable, "shutting_down", "")
		return
	}
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	res, err := a.Manager.Submit(r.Context(), name, caller, op)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, status, committed{
		RequestID: RequestIDFromContext(r.Context()),
		At:        res.At,
		Events:    res.Events,
	})
}

// view runs fn under the executor's read lock and writes its result.
func (a *App) view(w http.ResponseWriter, r *http.Request, fn func(m *marketplace.Marketplace, now model.Timestamp) (any, error)) {
	var (
		out any
		err error
	)
	a.Manager.View(func(m *marketplace.Marketplace, now model.Timestamp) {
		out, err = fn(m, now)
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeError(w, r, http.StatusUnsupportedMediaType, "unsupported_media_type", "expected application/json")
		return false
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

func indexParam(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, key))
	if err != nil || n < 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_index", key+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func addressParam(w http.ResponseWriter, r *http.Request, key string) (model.Address, bool) {
	a, err := model.ParseAddress(chi.URLParam(r, key))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_address", err.Error())
		return "", false
	}
	return a, true
}

// amount accepts a token amount as a JSON number or a decimal string.
type amount struct{ *big.Int }

func (a *amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "null" {
		a.Int = nil
		return nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return fmt.Errorf("amount %q is not a non-negative integer", s)
	}
	a.Int = v
	return nil
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	if a.Manager.Failed() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "journal_failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) metricsHandler(w http.ResponseWriter, r *http.Request) {
	st := a.Manager.Stats()
	published, dropped, subscribers := a.Hub.Stats()
	m := map[string]any{
		"commands_enqueued":  st.Enqueued,
		"commands_processed": st.Processed,
		"commands_applied":   st.Applied,
		"commands_rejected":  st.Rejected,
		"backlog_size":       st.Backlog,
		"queue_depth":        st.Depth,
		"journal_seq":        st.JournalSeq,
		"last_time":          st.LastTime,
		"journal_failed":     st.Failed,
		"events_published":   published,
		"events_dropped":     dropped,
		"subscribers":        subscribers,
		"uptime_sec":         time.Since(a.started).Seconds(),
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *App) openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(httpopenapi.YAML)
}

const docsHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Marketplace Ledger API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>`

func (a *App) docsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(docsHTML))
}

func (a *App) notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "not_found", "")
}

func (a *App) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	obs.Logger.Debug("http_method_not_allowed", "method", r.Method, "path", r.URL.Path)
	writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "")
}
