package exchange

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptohunter/internal/config"
	"cryptohunter/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAggregatorClient_Tickers(t *testing.T) {
	var gotQuery, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tickers", r.URL.Path)
		gotQuery = r.URL.Query().Get("coin_ids") + "|" + r.URL.Query().Get("exchange_ids")
		gotKey = r.Header.Get("x-cg-pro-api-key")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"tickers":[
			{"coin_id":"bitcoin","target":"USDT","market":{"identifier":"binance"},"converted_last":{"usd":100.0}},
			{"coin_id":"bitcoin","target":"USD","market":{"identifier":"kraken"},"converted_last":{"usd":100.9}}
		]}`)
	}))
	defer srv.Close()

	c := NewAggregatorClient(discardLogger(), srv.URL+"/", "secret", 0)
	tickers, err := c.Tickers(context.Background(), []string{"bitcoin", "ethereum"}, []string{"binance", "kraken"})
	require.NoError(t, err)

	assert.Equal(t, "bitcoin,ethereum|binance,kraken", gotQuery)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, []Ticker{
		{Asset: "bitcoin", Exchange: "binance", Target: "USDT", PriceUSD: 100.0},
		{Asset: "bitcoin", Exchange: "kraken", Target: "USD", PriceUSD: 100.9},
	}, tickers)
}

func TestAggregatorClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"rate limited", http.StatusTooManyRequests, `{}`, ErrRateLimited},
		{"server error", http.StatusBadGateway, `{}`, ErrUnavailable},
		{"malformed body", http.StatusOK, `{"tickers":[`, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			c := NewAggregatorClient(discardLogger(), srv.URL, "", 0)
			_, err := c.Tickers(context.Background(), []string{"bitcoin"}, []string{"binance"})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("client error is not transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		c := NewAggregatorClient(discardLogger(), srv.URL, "", 0)
		_, err := c.Tickers(context.Background(), []string{"bitcoin"}, []string{"binance"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrRateLimited)
		assert.NotErrorIs(t, err, ErrUnavailable)
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		addr := srv.URL
		srv.Close()

		c := NewAggregatorClient(discardLogger(), addr, "", 0)
		_, err := c.Tickers(context.Background(), []string{"bitcoin"}, []string{"binance"})
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestSyntheticSource(t *testing.T) {
	baselines := map[string]float64{"Bitcoin": 68000}
	assets := []string{"bitcoin", "dogecoin"}
	exchanges := []string{"binance", "kraken", "kucoin"}

	a, err := NewSyntheticSource(baselines, 100, 1.5, 42).Tickers(context.Background(), assets, exchanges)
	require.NoError(t, err)
	b, err := NewSyntheticSource(baselines, 100, 1.5, 42).Tickers(context.Background(), assets, exchanges)
	require.NoError(t, err)

	assert.Equal(t, a, b, "same seed must produce the same prices")
	require.Len(t, a, 6)

	for i, tk := range a {
		assert.Equal(t, exchanges[i%3], tk.Exchange)
		assert.Equal(t, "USD", tk.Target)
		base := 68000.0
		if tk.Asset == "dogecoin" {
			base = 100
		}
		assert.InDelta(t, base, tk.PriceUSD, base*0.015+0.01)
	}
}

func TestNewPriceSource(t *testing.T) {
	src, err := NewPriceSource(discardLogger(), config.UpstreamConfig{Source: "aggregator"}, config.FallbackConfig{})
	require.NoError(t, err)
	assert.Equal(t, "aggregator", src.Name())
	assert.Equal(t, model.SourceLive, src.Source())

	src, err = NewPriceSource(discardLogger(), config.UpstreamConfig{Source: "synthetic"}, config.FallbackConfig{})
	require.NoError(t, err)
	assert.Equal(t, "synthetic", src.Name())
	assert.Equal(t, model.SourceSynthetic, src.Source())

	_, err = NewPriceSource(discardLogger(), config.UpstreamConfig{Source: "ccxt"}, config.FallbackConfig{})
	assert.Error(t, err)
}
