package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"SignalTrack/internal/domain/models"
	domrepo "SignalTrack/internal/domain/repository"
	xhttp "SignalTrack/pkg/http"
)

var cryptoQuotes = []string{"USDT", "USDC", "BUSD", "FDUSD"}

// IsCrypto reports whether an instrument is quoted on Binance. Pairs are either
// slash separated (BTC/USDT) or end with a stablecoin quote asset.
func IsCrypto(instrument string) bool {
	s := strings.ToUpper(instrument)
	if strings.Contains(s, "/") {
		return true
	}
	for _, q := range cryptoQuotes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return true
		}
	}
	return false
}

// QuoteProvider fetches the current price on demand: Binance ticker for crypto
// pairs, Finnhub quote for everything else. Every failure is reported as
// models.ErrDataUnavailable.
type QuoteProvider struct {
	binance *xhttp.Client
	finnhub *xhttp.Client
	apiKey  string
	now     func() time.Time
}

func NewQuoteProvider(binance, finnhub *xhttp.Client, finnhubAPIKey string) *QuoteProvider {
	return &QuoteProvider{binance: binance, finnhub: finnhub, apiKey: finnhubAPIKey, now: time.Now}
}

func (p *QuoteProvider) Ticks(ctx context.Context, instrument string, since time.Time) ([]models.PriceTick, error) {
	var (
		tick models.PriceTick
		err  error
	)
	if IsCrypto(instrument) {
		tick, err = p.binanceTicker(ctx, instrument)
	} else {
		tick, err = p.finnhubQuote(ctx, instrument)
	}
	if err != nil {
		return nil, &models.DataUnavailableError{Instrument: instrument, Err: err}
	}
	if !tick.Timestamp.After(since) {
		return nil, nil
	}
	return []models.PriceTick{tick}, nil
}

func (p *QuoteProvider) binanceTicker(ctx context.Context, instrument string) (models.PriceTick, error) {
	symbol := strings.ToUpper(strings.ReplaceAll(instrument, "/", ""))
	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := p.binance.GetJSON(ctx, "/api/v3/ticker/price", url.Values{"symbol": {symbol}}, &resp); err != nil {
		return models.PriceTick{}, err
	}
	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return models.PriceTick{}, fmt.Errorf("parse binance price %q: %w", resp.Price, err)
	}
	if !price.IsPositive() {
		return models.PriceTick{}, errors.New("binance returned non-positive price")
	}
	return models.PriceTick{Instrument: instrument, Price: price, Timestamp: p.now().UTC()}, nil
}

func (p *QuoteProvider) finnhubQuote(ctx context.Context, instrument string) (models.PriceTick, error) {
	if p.apiKey == "" {
		return models.PriceTick{}, errors.New("finnhub api key not configured")
	}
	var resp struct {
		Current float64 `json:"c"`
		Time    int64   `json:"t"`
	}
	q := url.Values{"symbol": {instrument}, "token": {p.apiKey}}
	if err := p.finnhub.GetJSON(ctx, "/quote", q, &resp); err != nil {
		return models.PriceTick{}, err
	}
	// finnhub answers unknown symbols with an all-zero quote
	if resp.Current <= 0 {
		return models.PriceTick{}, errors.New("finnhub returned empty quote")
	}
	ts := p.now().UTC()
	if resp.Time > 0 {
		ts = time.Unix(resp.Time, 0).UTC()
	}
	return models.PriceTick{Instrument: instrument, Price: decimal.NewFromFloat(resp.Current), Timestamp: ts}, nil
}

var _ domrepo.MarketData = (*QuoteProvider)(nil)
