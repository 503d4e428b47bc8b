package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"SignalTrack/internal/domain/models"
	"SignalTrack/pkg/logger"
)

// TickSink receives streamed prices.
type TickSink interface {
	Put(models.PriceTick)
}

// Stream subscribes to Finnhub trades over WebSocket and forwards each trade
// to the sink. It reconnects until ctx is cancelled.
type Stream struct {
	apiKey         string
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	sink           TickSink
	log            *logger.Logger
	dialer         *websocket.Dialer
}

func NewStream(apiKey, websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration, sink TickSink, log *logger.Logger) *Stream {
	if log == nil {
		log = logger.Nop()
	}
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Stream{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		sink:           sink,
		log:            log.With(logger.String("component", "finnhub_stream")),
		dialer:         websocket.DefaultDialer,
	}
}

// Run blocks until ctx is done.
func (s *Stream) Run(ctx context.Context) {
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		s.log.Warn("stream disconnected", logger.Error(err), logger.Duration("retry_in", s.reconnectDelay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnectDelay):
		}
	}
}

type fhTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	T int64   `json:"t"` // ms
}

type fhMessage struct {
	Type string    `json:"type"`
	Data []fhTrade `json:"data"`
}

func (s *Stream) session(ctx context.Context) error {
	u := s.websocketURL + "?token=" + url.QueryEscape(s.apiKey)
	conn, _, err := s.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("finnhub connect: %w", err)
	}
	defer conn.Close()

	for _, sym := range s.symbols {
		if err := conn.WriteJSON(map[string]string{"type": "subscribe", "symbol": sym}); err != nil {
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}
	}
	s.log.Info("stream connected", logger.Strings("symbols", s.symbols))

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("finnhub read: %w", err)
		}
		n := s.dispatch(b)
		if n > 0 {
			s.log.Debug("stream trades", logger.Int("count", n))
		}
	}
}

// dispatch forwards the trades in one frame and returns how many it forwarded.
// Non-trade frames (ping, errors) are ignored.
func (s *Stream) dispatch(frame []byte) int {
	var m fhMessage
	if err := json.Unmarshal(frame, &m); err != nil || m.Type != "trade" {
		return 0
	}
	n := 0
	for _, d := range m.Data {
		if d.S == "" || d.P <= 0 {
			continue
		}
		s.sink.Put(models.PriceTick{
			Instrument: instrumentOf(d.S),
			Price:      decimal.NewFromFloat(d.P),
			Timestamp:  time.UnixMilli(d.T).UTC(),
		})
		n++
	}
	return n
}

// instrumentOf drops the exchange prefix finnhub puts on crypto symbols
// (BINANCE:BTCUSDT -> BTCUSDT).
func instrumentOf(symbol string) string {
	if i := strings.LastIndexByte(symbol, ':'); i >= 0 {
		return symbol[i+1:]
	}
	return symbol
}
