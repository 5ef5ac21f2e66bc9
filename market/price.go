// Package market supplies spot prices to the autorun loop. The engine never
// fetches prices itself; a PriceSource is the only market-data contract.
package market

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"golang.org/x/time/rate"
)

// FetchTimeout bounds a single price lookup so a stuck source can never
// stall an autorun tick.
const FetchTimeout = 5 * time.Second

// PriceSource returns a positive finite USD price for an item
type PriceSource interface {
	Price(ctx context.Context, item string) (float64, error)
}

// BinanceSource fetches spot ticker prices from Binance
type BinanceSource struct {
	client  *binance.Client
	limiter *rate.Limiter
}

// NewBinanceSource creates a Binance price source. baseURL overrides the API
// endpoint (mirrors, tests); empty keeps the default.
func NewBinanceSource(baseURL string) *BinanceSource {
	client := binance.NewClient("", "")
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return &BinanceSource{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
}

// Price fetches the current price for an item. Items are plain asset symbols
// ("BTC"); they are quoted against USDT unless already a full pair.
func (b *BinanceSource) Price(ctx context.Context, item string) (float64, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	symbol := normalizeSymbol(item)
	prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance price %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("binance price %s: no data", symbol)
	}

	p, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("binance price %s: parse %q: %w", symbol, prices[0].Price, err)
	}
	if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, fmt.Errorf("binance price %s: invalid value %v", symbol, p)
	}
	return p, nil
}

func normalizeSymbol(item string) string {
	s := strings.ToUpper(strings.TrimSpace(item))
	if strings.HasSuffix(s, "USDT") || strings.HasSuffix(s, "USDC") || strings.HasSuffix(s, "BUSD") {
		return s
	}
	return s + "USDT"
}

// StaticSource serves prices from an in-memory map; used in tests and as a
// stand-in when no exchange is reachable.
type StaticSource struct {
	mu     sync.RWMutex
	prices map[string]float64
}

// NewStaticSource creates a static source with the given initial prices
func NewStaticSource(prices map[string]float64) *StaticSource {
	if prices == nil {
		prices = make(map[string]float64)
	}
	return &StaticSource{prices: prices}
}

// Set updates the price for an item
func (s *StaticSource) Set(item string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[item] = price
}

// Price returns the stored price for an item
func (s *StaticSource) Price(_ context.Context, item string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[item]
	if !ok {
		return 0, fmt.Errorf("no price for %s", item)
	}
	return p, nil
}
