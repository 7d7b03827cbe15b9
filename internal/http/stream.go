package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/obs"
)

const (
	streamBuffer    = 256
	streamPing      = 30 * time.Second
	streamWriteWait = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// eventStream pushes committed events to a websocket client as JSON
// envelopes. The kinds query parameter is a comma-separated filter.
func (a *App) eventStream(w http.ResponseWriter, r *http.Request) {
	var kinds []model.EventKind
	for _, k := range strings.Split(r.URL.Query().Get("kinds"), ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds = append(kinds, model.EventKind(k))
		}
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := a.Hub.Subscribe(streamBuffer, kinds...)
	defer sub.Close()
	reqID := RequestIDFromContext(r.Context())
	obs.Logger.Info("stream_opened", "request_id", reqID, "kinds", len(kinds))

	// The reader only notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPing)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			obs.Logger.Info("stream_closed", "request_id", reqID)
			return
		case env, ok := <-sub.C:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(streamWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(env); err != nil {
				obs.Logger.Warn("stream_write_failed", "request_id", reqID, "error", err.Error())
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}
