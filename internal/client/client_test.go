package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestErrorReply(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(CallerHeader) != "0xabc" {
			t.Errorf("caller header not sent")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"DUPLICATE_SID","details":"service's sid is already used","request_id":"r1"}`))
	}))
	defer ts.Close()

	_, err := New(ts.URL, "0xabc").CreateService(context.Background(), "svc")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Code != "DUPLICATE_SID" || apiErr.RequestID != "r1" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestNonJSONErrorReply(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer ts.Close()
	_, err := New(ts.URL, "").Service(context.Background(), "svc")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "Bad Gateway" || apiErr.Details != "bad gateway" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestDecodesSpans(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/services/svc/offers" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"sid":"svc","offers":[
			{"sid":"svc","index":0,"price":100000000000000000000,"duration":"forever","active":true,"create_time":5},
			{"sid":"svc","index":1,"price":2,"duration":3600,"active":false,"create_time":6}]}`))
	}))
	defer ts.Close()
	offers, err := New(ts.URL, "").Offers(context.Background(), "svc")
	if err != nil {
		t.Fatalf("offers: %v", err)
	}
	if len(offers) != 2 || !offers[0].Duration.Forever() || offers[1].Duration != "3600" {
		t.Fatalf("unexpected offers %+v", offers)
	}
	if offers[0].Price.String() != "100000000000000000000" {
		t.Fatalf("price lost precision: %s", offers[0].Price)
	}
}

func TestWatch(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("kinds") != "ServiceCreated,ServicePurchased" {
			t.Errorf("unexpected kinds %q", r.URL.RawQuery)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 1; i <= 3; i++ {
			_ = conn.WriteJSON(Envelope{Seq: uint64(i), Kind: "ServiceCreated", Event: json.RawMessage(`{"sid":"s"}`)})
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var got []uint64
	err := New(ts.URL, "").Watch(ctx, []string{"ServiceCreated", "ServicePurchased"}, func(env Envelope) error {
		got = append(got, env.Seq)
		return nil
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if len(got) != 3 || got[2] != 3 {
		t.Fatalf("unexpected envelopes %v", got)
	}
}
