package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"SignalTrack/internal/domain/models"
)

type chanSink chan models.PriceTick

func (c chanSink) Put(t models.PriceTick) { c <- t }

func TestDispatch(t *testing.T) {
	sink := make(chanSink, 4)
	s := NewStream("key", "ws://unused", nil, 0, 0, sink, nil)

	frame := `{"type":"trade","data":[
		{"s":"BINANCE:BTCUSDT","p":64012.5,"t":1709294400000},
		{"s":"AAPL","p":0,"t":1709294400000},
		{"s":"AAPL","p":182.25,"t":1709294401000}]}`
	if n := s.dispatch([]byte(frame)); n != 2 {
		t.Fatalf("dispatched %d, want 2", n)
	}
	first := <-sink
	if first.Instrument != "BTCUSDT" || !first.Price.Equal(decimal.RequireFromString("64012.5")) {
		t.Fatalf("first tick = %+v", first)
	}
	if !first.Timestamp.Equal(time.UnixMilli(1709294400000)) {
		t.Fatalf("timestamp = %v", first.Timestamp)
	}
	if second := <-sink; second.Instrument != "AAPL" {
		t.Fatalf("second tick = %+v", second)
	}

	for _, f := range []string{`{"type":"ping"}`, `not json`, `{"type":"error","msg":"bad token"}`} {
		if n := s.dispatch([]byte(f)); n != 0 {
			t.Fatalf("frame %q dispatched %d", f, n)
		}
	}
}

func TestStreamSubscribesAndForwards(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan string, 2)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 2; i++ {
			var sub map[string]string
			if err := conn.ReadJSON(&sub); err != nil {
				return
			}
			subscribed <- sub["symbol"]
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"trade","data":[{"s":"BINANCE:ETHUSDT","p":2034.1,"t":1709294400000}]}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sink := make(chanSink, 1)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	s := NewStream("key", wsURL, []string{"BINANCE:ETHUSDT", "AAPL"}, 10*time.Millisecond, time.Second, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	select {
	case got := <-sink:
		if got.Instrument != "ETHUSDT" {
			t.Fatalf("tick = %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no tick received")
	}
	if a, b := <-subscribed, <-subscribed; a != "BINANCE:ETHUSDT" || b != "AAPL" {
		t.Fatalf("subscriptions = %s, %s", a, b)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
